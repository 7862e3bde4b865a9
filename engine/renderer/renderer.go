package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfaceSource supplies the platform surface the WGPU backend presents to,
// typically the engine window.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu  *sync.Mutex
	log *zap.Logger

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
	surfaceWidth         int
	surfaceHeight        int
	workers              int

	// Per-frame state
	frameActive   bool
	target        RenderTarget
	viewport      common.Viewport
	clearPending  bool
	clearColor    common.Color
	blend         BlendMode
	contextActive bool
	batchActive   bool
	viewProj      [16]float32
	stats         FrameStats
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API over a RendererBackend. It tracks the fixed-function state of the
// next render context (target, viewport, clear, blend), enforces the scoping of render contexts
// and model batches, routes post passes and counts the work done in the current frame.
type Renderer interface {
	// BackendType returns the backend in use.
	BackendType() RendererBackendType

	// Size returns the presentation surface size in pixels.
	Size() (width, height int)

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be reconfigured
	Resize(width, height int) error

	// SetPresentMode changes the present mode; it takes effect on the next Resize.
	SetPresentMode(mode PresentMode)

	// BeginFrame starts a frame: statistics are reset, the render target is the
	// presentation surface, the viewport covers it and blending is off.
	//
	// Returns:
	//   - error: an error if the surface could not be acquired
	BeginFrame() error

	// SetRenderTarget routes the next render contexts to t; nil is the presentation surface.
	//
	// Parameters:
	//   - t: a target created by CreateTarget, or nil
	//
	// Returns:
	//   - error: ErrContextActive if a context is open
	SetRenderTarget(t RenderTarget) error

	// RenderTarget returns the current render target, nil for the presentation surface.
	RenderTarget() RenderTarget

	// SetViewport sets the viewport of the next render context.
	SetViewport(v common.Viewport)

	// Viewport returns the viewport of the next render context.
	Viewport() common.Viewport

	// Clear requests that the next render context clears color to c and depth to the far plane.
	//
	// Parameters:
	//   - c: the clear color
	Clear(c common.Color)

	// SetBlending sets the blend mode of the next render context.
	SetBlending(mode BlendMode)

	// BeginContext opens a render context with the current target, viewport, clear and blend state.
	//
	// Returns:
	//   - error: ErrContextActive if one is already open, or the backend error; no context is open on error
	BeginContext() error

	// EndContext closes the open render context.
	//
	// Returns:
	//   - error: ErrNoContext if none is open, ErrBatchActive if a batch is still open
	EndContext() error

	// ContextActive reports whether a render context is open.
	ContextActive() bool

	// BeginBatch opens a model batch bound to a view-projection matrix.
	//
	// Parameters:
	//   - viewProj: column-major view-projection matrix applied to every draw of the batch
	//
	// Returns:
	//   - error: ErrNoContext without an open context, ErrBatchActive if a batch is open
	BeginBatch(viewProj [16]float32) error

	// Draw submits a node to the open batch. A node that fails validation or whose
	// resources cannot be prepared is skipped and counted in FrameStats.SkippedDraws.
	//
	// Parameters:
	//   - node: the node to draw
	//
	// Returns:
	//   - error: ErrNoBatch, ErrNilNode, or the reason the node was skipped
	Draw(node spatial.Node) error

	// EndBatch closes the open model batch.
	EndBatch() error

	// BatchActive reports whether a model batch is open.
	BatchActive() bool

	// CreateTarget allocates an offscreen render target.
	//
	// Parameters:
	//   - label: a debug label
	//   - width, height: the size in pixels, both positive
	//
	// Returns:
	//   - RenderTarget: the new target
	//   - error: an error if the size is invalid or allocation failed
	CreateTarget(label string, width, height int) (RenderTarget, error)

	// ReleaseTarget frees a target. If it is the current render target the
	// presentation surface becomes current.
	ReleaseTarget(t RenderTarget)

	// RunPostPass executes a full-screen pass. No render context may be open.
	//
	// Parameters:
	//   - kind: the pass to run
	//   - inputs: the sampled targets
	//   - output: the target written, nil for the presentation surface
	//   - params: the pass uniforms
	//
	// Returns:
	//   - error: an error if the pass is malformed or failed
	RunPostPass(kind PostPassKind, inputs []RenderTarget, output RenderTarget, params PassParams) error

	// Present submits the frame and shows the presentation surface.
	//
	// Returns:
	//   - error: ErrContextActive if a context is open, ErrNoFrame before BeginFrame, or the backend error
	Present() error

	// Stats returns the work counted since the last BeginFrame.
	Stats() FrameStats

	// Snapshot returns a copy of the last presented frame, where the backend supports it.
	Snapshot() (*image.RGBA, error)

	// ReleaseNode frees the backend resources cached for a node that will not be drawn again.
	ReleaseNode(node spatial.Node)

	// Release frees all backend resources.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type.
// The surface is required for the WGPU backend and ignored by the software backend,
// which takes its size from WithSurfaceSize or the surface when one is given.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - surface: the platform surface to present to, may be nil for the software backend
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if the backend could not be created or the surface configured
func NewRenderer(backendType RendererBackendType, surface SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		log:           zap.NewNop(),
		backendType:   backendType,
		surfaceWidth:  1280,
		surfaceHeight: 720,
	}
	if surface != nil {
		r.surfaceWidth, r.surfaceHeight = surface.Width(), surface.Height()
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	msaa := MSAAOff
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	if r.backend == nil {
		switch backendType {
		case BackendTypeSoftware:
			r.backend = newSoftwareRendererBackend(r.workers, r.log)
		case BackendTypeWGPU:
			if surface == nil {
				return nil, fmt.Errorf("renderer: %s backend requires a surface", backendType)
			}
			b, err := newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter, msaa, r.log)
			if err != nil {
				return nil, err
			}
			r.backend = b
		default:
			return nil, fmt.Errorf("renderer: unknown backend type %d", int(backendType))
		}
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	if err := r.backend.ConfigureSurface(r.surfaceWidth, r.surfaceHeight); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("renderer: configure surface: %w", err)
	}
	r.viewport = common.Viewport{Width: r.surfaceWidth, Height: r.surfaceHeight}
	r.log.Info("renderer ready",
		zap.Stringer("backend", backendType),
		zap.Int("width", r.surfaceWidth),
		zap.Int("height", r.surfaceHeight),
		zap.Uint32("msaa", uint32(msaa)),
	)
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Size() (width, height int) {
	return r.backend.Size()
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("renderer: invalid surface size %dx%d", width, height)
	}
	if r.contextActive {
		return ErrContextActive
	}
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		return fmt.Errorf("renderer: configure surface: %w", err)
	}
	r.viewport = common.Viewport{Width: width, Height: height}
	return nil
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.contextActive {
		return ErrContextActive
	}
	if err := r.backend.BeginFrame(); err != nil {
		return fmt.Errorf("renderer: begin frame: %w", err)
	}
	w, h := r.backend.Size()
	r.frameActive = true
	r.stats = FrameStats{}
	r.target = nil
	r.viewport = common.Viewport{Width: w, Height: h}
	r.clearPending = false
	r.blend = BlendNone
	return nil
}

func (r *renderer) SetRenderTarget(t RenderTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.contextActive {
		return ErrContextActive
	}
	r.target = t
	return nil
}

func (r *renderer) RenderTarget() RenderTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *renderer) SetViewport(v common.Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = v
}

func (r *renderer) Viewport() common.Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

func (r *renderer) Clear(c common.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearPending = true
	r.clearColor = c
}

func (r *renderer) SetBlending(mode BlendMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blend = mode
}

func (r *renderer) BeginContext() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frameActive {
		return ErrNoFrame
	}
	if r.contextActive {
		return ErrContextActive
	}
	state := PassState{
		Target:     r.target,
		Viewport:   r.viewport,
		Clear:      r.clearPending,
		ClearColor: r.clearColor,
		Blend:      r.blend,
	}
	if err := r.backend.BeginPass(state); err != nil {
		return fmt.Errorf("renderer: begin render context: %w", err)
	}
	r.contextActive = true
	r.clearPending = false
	r.stats.ContextBegins++
	r.countWrite(r.target)
	return nil
}

func (r *renderer) EndContext() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contextActive {
		return ErrNoContext
	}
	if r.batchActive {
		return ErrBatchActive
	}
	r.contextActive = false
	r.stats.ContextEnds++
	if err := r.backend.EndPass(); err != nil {
		return fmt.Errorf("renderer: end render context: %w", err)
	}
	return nil
}

func (r *renderer) ContextActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextActive
}

func (r *renderer) BeginBatch(viewProj [16]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contextActive {
		return ErrNoContext
	}
	if r.batchActive {
		return ErrBatchActive
	}
	r.batchActive = true
	r.viewProj = viewProj
	r.stats.BatchBegins++
	return nil
}

func (r *renderer) Draw(node spatial.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.batchActive {
		return ErrNoBatch
	}
	if node == nil {
		r.stats.SkippedDraws++
		return ErrNilNode
	}
	if err := node.Validate(); err != nil {
		r.stats.SkippedDraws++
		return err
	}
	if err := r.backend.Draw(r.viewProj, node); err != nil {
		r.stats.SkippedDraws++
		return fmt.Errorf("node %q: %w", node.Label(), err)
	}
	r.stats.Draws++
	return nil
}

func (r *renderer) EndBatch() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.batchActive {
		return ErrNoBatch
	}
	r.batchActive = false
	r.stats.BatchEnds++
	return nil
}

func (r *renderer) BatchActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchActive
}

func (r *renderer) CreateTarget(label string, width, height int) (RenderTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("renderer: target %s: invalid size %dx%d", label, width, height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.backend.CreateTarget(label, width, height)
	if err != nil {
		return nil, fmt.Errorf("renderer: target %s: %w", label, err)
	}
	return t, nil
}

func (r *renderer) ReleaseTarget(t RenderTarget) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.target == t {
		r.target = nil
	}
	r.backend.ReleaseTarget(t)
}

func (r *renderer) RunPostPass(kind PostPassKind, inputs []RenderTarget, output RenderTarget, params PassParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frameActive {
		return ErrNoFrame
	}
	if r.contextActive {
		return ErrContextActive
	}
	if len(inputs) != kind.Inputs() {
		return fmt.Errorf("renderer: %s pass takes %d inputs, got %d", kind, kind.Inputs(), len(inputs))
	}
	for i, in := range inputs {
		if in == nil {
			return fmt.Errorf("renderer: %s pass input %d is nil", kind, i)
		}
		if in == output {
			return fmt.Errorf("renderer: %s pass reads and writes %s", kind, in.Label())
		}
	}
	if len(params.Kernel) > MaxKernelTaps {
		return fmt.Errorf("renderer: %s pass kernel has %d taps, max %d", kind, len(params.Kernel), MaxKernelTaps)
	}
	if err := r.backend.RunPostPass(kind, inputs, output, params); err != nil {
		return fmt.Errorf("renderer: %s pass: %w", kind, err)
	}
	r.stats.PostPasses++
	r.countWrite(output)
	return nil
}

func (r *renderer) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.contextActive {
		return ErrContextActive
	}
	if !r.frameActive {
		return ErrNoFrame
	}
	r.frameActive = false
	if err := r.backend.Present(); err != nil {
		return fmt.Errorf("renderer: present: %w", err)
	}
	return nil
}

func (r *renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) Snapshot() (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Snapshot()
}

func (r *renderer) ReleaseNode(node spatial.Node) {
	if node == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.ReleaseNode(node)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.Release()
}

// countWrite attributes a context or post pass to the surface or an offscreen target.
// Caller must hold the mutex.
func (r *renderer) countWrite(t RenderTarget) {
	if t == nil {
		r.stats.SurfaceWrites++
	} else {
		r.stats.TargetWrites++
	}
}
