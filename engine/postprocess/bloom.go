// Package postprocess hosts the bloom stage that can wrap a frame's render pass.
package postprocess

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BloomState is the stage a bloom frame is in.
type BloomState int

const (
	// BloomDisabled is the resting state between frames, and the only state while bloom is off.
	BloomDisabled BloomState = iota

	// BloomCapturing routes the frame's render contexts into the capture buffer.
	BloomCapturing

	// BloomExtracting keeps the bright pixels of the capture buffer.
	BloomExtracting

	// BloomBlurring runs the separable Gaussian over the extracted pixels.
	BloomBlurring

	// BloomCompositing adds the blurred buffer over the capture and writes the surface.
	BloomCompositing
)

func (s BloomState) String() string {
	switch s {
	case BloomDisabled:
		return "disabled"
	case BloomCapturing:
		return "capturing"
	case BloomExtracting:
		return "extracting"
	case BloomBlurring:
		return "blurring"
	case BloomCompositing:
		return "compositing"
	default:
		return fmt.Sprintf("bloom_state(%d)", int(s))
	}
}

// bloom is the implementation of the Bloom interface.
type bloom struct {
	mu  *sync.Mutex
	log *zap.Logger
	r   renderer.Renderer

	enabled    bool
	state      BloomState
	threshold  float32
	intensity  float32
	radius     float32
	downsample int

	width, height int
	capture       renderer.RenderTarget
	extract       renderer.RenderTarget
	blurA         renderer.RenderTarget
	blurB         renderer.RenderTarget
}

// Bloom is a toggleable glow effect around a frame's render pass:
//
//	bloom.Capture()   // frame renders into the capture buffer
//	... render contexts ...
//	bloom.Render()    // extract, blur, composite onto the surface
//
// While disabled both calls are no-ops and the frame writes the surface directly.
// Toggling only takes effect at the next Capture.
type Bloom interface {
	// Enabled reports whether the next frame is captured.
	Enabled() bool

	// SetEnabled turns the effect on or off for the following frames.
	SetEnabled(enabled bool)

	// State returns the stage of the current frame.
	State() BloomState

	// Capture redirects the renderer to the capture buffer when bloom is enabled.
	// It must be called after Renderer.BeginFrame and before the frame's contexts.
	//
	// Returns:
	//   - error: an error if the render target could not be changed
	Capture() error

	// Render runs extract, blur and composite when the frame was captured. The
	// renderer's target is the presentation surface afterwards. If extract or blur
	// fails the capture is still copied to the surface, without glow.
	//
	// Returns:
	//   - error: the failing passes; the state is reset regardless
	Render() error

	// Abort drops a captured frame without compositing, restoring the surface target.
	Abort()

	// Resize reallocates the buffers for a new surface size.
	//
	// Parameters:
	//   - width, height: the new surface size in pixels
	//
	// Returns:
	//   - error: an error if the buffers could not be allocated
	Resize(width, height int) error

	// Threshold returns the luminance cut-off of the extract pass.
	Threshold() float32

	// SetThreshold sets the luminance cut-off, clamped to [0, 1].
	SetThreshold(threshold float32)

	// Intensity returns the scale applied to the glow when compositing.
	Intensity() float32

	// SetIntensity sets the glow scale; negative values are treated as 0.
	SetIntensity(intensity float32)

	// Radius returns the blur radius in downsampled pixels.
	Radius() float32

	// SetRadius sets the blur radius; negative values are treated as 0.
	SetRadius(radius float32)

	// Release frees the buffers.
	Release()
}

var _ Bloom = &bloom{}

// NewBloom creates a bloom stage over r with buffers sized to the renderer's surface.
// Bloom starts disabled unless WithEnabled says otherwise.
//
// Parameters:
//   - r: the renderer the passes run on
//   - options: variadic list of BloomBuilderOption functions
//
// Returns:
//   - Bloom: the bloom stage
//   - error: an error if the buffers could not be allocated
func NewBloom(r renderer.Renderer, options ...BloomBuilderOption) (Bloom, error) {
	b := &bloom{
		mu:         &sync.Mutex{},
		log:        zap.NewNop(),
		r:          r,
		threshold:  0.8,
		intensity:  1,
		radius:     4,
		downsample: 2,
	}
	for _, opt := range options {
		opt(b)
	}

	w, h := r.Size()
	if err := b.allocate(w, h); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *bloom) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *bloom) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled != enabled {
		b.log.Info("bloom toggled", zap.Bool("enabled", enabled))
	}
	b.enabled = enabled
}

func (b *bloom) State() BloomState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *bloom) Capture() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return nil
	}
	if b.state != BloomDisabled {
		return fmt.Errorf("bloom: capture while %s", b.state)
	}
	if err := b.r.SetRenderTarget(b.capture); err != nil {
		return fmt.Errorf("bloom: capture: %w", err)
	}
	b.setState(BloomCapturing)
	return nil
}

func (b *bloom) Render() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BloomCapturing {
		return nil
	}
	defer b.setState(BloomDisabled)

	if err := b.r.SetRenderTarget(nil); err != nil {
		return fmt.Errorf("bloom: %w", err)
	}

	if err := b.glow(); err != nil {
		// The surface has not been written this frame; show the capture without glow.
		b.setState(BloomCompositing)
		return multierr.Append(err, b.composite(0))
	}
	b.setState(BloomCompositing)
	return b.composite(b.intensity)
}

// glow runs the extract and blur passes into blurB. Caller must hold the mutex.
func (b *bloom) glow() error {
	b.setState(BloomExtracting)
	if err := b.r.RunPostPass(renderer.PostPassExtract,
		[]renderer.RenderTarget{b.capture}, b.extract,
		renderer.PassParams{Threshold: b.threshold},
	); err != nil {
		return fmt.Errorf("bloom: %w", err)
	}

	b.setState(BloomBlurring)
	kernel := GaussianKernel(b.radius)
	if err := b.r.RunPostPass(renderer.PostPassBlurHorizontal,
		[]renderer.RenderTarget{b.extract}, b.blurA,
		renderer.PassParams{Kernel: kernel},
	); err != nil {
		return fmt.Errorf("bloom: %w", err)
	}
	if err := b.r.RunPostPass(renderer.PostPassBlurVertical,
		[]renderer.RenderTarget{b.blurA}, b.blurB,
		renderer.PassParams{Kernel: kernel},
	); err != nil {
		return fmt.Errorf("bloom: %w", err)
	}
	return nil
}

// composite adds blurB scaled by intensity over the capture and writes the surface.
// At intensity 0 it is a plain copy of the capture. Caller must hold the mutex.
func (b *bloom) composite(intensity float32) error {
	if err := b.r.RunPostPass(renderer.PostPassComposite,
		[]renderer.RenderTarget{b.capture, b.blurB}, nil,
		renderer.PassParams{Intensity: intensity},
	); err != nil {
		return fmt.Errorf("bloom: %w", err)
	}
	return nil
}

func (b *bloom) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BloomDisabled {
		return
	}
	// Fails only while a context is still open; the next BeginFrame resets the target anyway.
	if err := b.r.SetRenderTarget(nil); err != nil {
		b.log.Warn("bloom abort could not restore the surface target", zap.Error(err))
	}
	b.setState(BloomDisabled)
}

func (b *bloom) Resize(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width == b.width && height == b.height {
		return nil
	}
	if b.state != BloomDisabled {
		return fmt.Errorf("bloom: resize while %s", b.state)
	}
	b.release()
	return b.allocate(width, height)
}

func (b *bloom) Threshold() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold
}

func (b *bloom) SetThreshold(threshold float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = min(max(threshold, 0), 1)
}

func (b *bloom) Intensity() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intensity
}

func (b *bloom) SetIntensity(intensity float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intensity = max(intensity, 0)
}

func (b *bloom) Radius() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.radius
}

func (b *bloom) SetRadius(radius float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.radius = max(radius, 0)
}

func (b *bloom) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
}

// allocate creates the capture buffer at full size and the extract and blur buffers
// at the downsampled size. Caller must hold the mutex.
func (b *bloom) allocate(width, height int) error {
	sw, sh := max(width/b.downsample, 1), max(height/b.downsample, 1)

	var err error
	create := func(label string, w, h int) renderer.RenderTarget {
		t, e := b.r.CreateTarget(label, w, h)
		err = multierr.Append(err, e)
		return t
	}
	b.capture = create("bloom_capture", width, height)
	b.extract = create("bloom_extract", sw, sh)
	b.blurA = create("bloom_blur_a", sw, sh)
	b.blurB = create("bloom_blur_b", sw, sh)
	if err != nil {
		b.release()
		return fmt.Errorf("bloom: allocate %dx%d: %w", width, height, err)
	}

	b.width, b.height = width, height
	b.log.Debug("bloom buffers allocated",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("downsampled_width", sw),
		zap.Int("downsampled_height", sh),
	)
	return nil
}

// release frees every buffer. Caller must hold the mutex.
func (b *bloom) release() {
	for _, t := range []*renderer.RenderTarget{&b.capture, &b.extract, &b.blurA, &b.blurB} {
		if *t != nil {
			b.r.ReleaseTarget(*t)
			*t = nil
		}
	}
	b.width, b.height = 0, 0
}

// setState moves to the next stage. Caller must hold the mutex.
func (b *bloom) setState(s BloomState) {
	b.log.Debug("bloom state", zap.Stringer("from", b.state), zap.Stringer("to", s))
	b.state = s
}
