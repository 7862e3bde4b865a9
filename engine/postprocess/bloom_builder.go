package postprocess

import "go.uber.org/zap"

// BloomBuilderOption is a functional option used to configure a Bloom during construction.
type BloomBuilderOption func(*bloom)

// WithEnabled sets whether bloom starts enabled. The default is disabled.
func WithEnabled(enabled bool) BloomBuilderOption {
	return func(b *bloom) {
		b.enabled = enabled
	}
}

// WithThreshold sets the luminance above which pixels glow.
//
// Parameters:
//   - threshold: the cut-off in [0, 1], default 0.8
//
// Returns:
//   - BloomBuilderOption: a function that applies the threshold to a bloom
func WithThreshold(threshold float32) BloomBuilderOption {
	return func(b *bloom) {
		b.threshold = min(max(threshold, 0), 1)
	}
}

// WithIntensity sets the scale of the glow added over the frame, default 1.
func WithIntensity(intensity float32) BloomBuilderOption {
	return func(b *bloom) {
		b.intensity = max(intensity, 0)
	}
}

// WithRadius sets the Gaussian blur radius in downsampled pixels, default 4.
func WithRadius(radius float32) BloomBuilderOption {
	return func(b *bloom) {
		b.radius = max(radius, 0)
	}
}

// WithDownsample sets the factor the extract and blur buffers are reduced by.
//
// Parameters:
//   - factor: 1 keeps full resolution, default 2; values below 1 are ignored
//
// Returns:
//   - BloomBuilderOption: a function that applies the factor to a bloom
func WithDownsample(factor int) BloomBuilderOption {
	return func(b *bloom) {
		if factor >= 1 {
			b.downsample = factor
		}
	}
}

// WithLogger sets the logger of the bloom stage.
func WithLogger(log *zap.Logger) BloomBuilderOption {
	return func(b *bloom) {
		if log != nil {
			b.log = log.Named("bloom")
		}
	}
}
