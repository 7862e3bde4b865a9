package renderer

import "go.uber.org/zap"

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync, Uncapped or Mailbox)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, MSAA is off. The software backend ignores it.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff or MSAA4x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). It does not select BackendTypeSoftware.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithSurfaceSize sets the initial presentation surface size, overriding the surface's own size.
//
// Parameters:
//   - width, height: the size in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size to a renderer
func WithSurfaceSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		if width > 0 && height > 0 {
			r.surfaceWidth, r.surfaceHeight = width, height
		}
	}
}

// WithWorkers sets the number of workers the software backend spreads post-pass rows over.
// Zero picks one less than the CPU count.
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = n
	}
}

// WithLogger sets the logger of the renderer and its backend.
func WithLogger(log *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if log != nil {
			r.log = log.Named("renderer")
		}
	}
}

// WithBackend installs a ready-made backend instead of creating one for the backend type.
//
// Parameters:
//   - b: the backend to drive
//
// Returns:
//   - RendererBuilderOption: a function that installs the backend
func WithBackend(b RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = b
	}
}
