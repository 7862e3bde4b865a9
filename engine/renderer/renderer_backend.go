package renderer

import (
	"image"

	"github.com/Carmen-Shannon/helix-go/engine/spatial"
)

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the headless CPU rasterizer.
	BackendTypeSoftware
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped

	// PresentModeMailbox replaces the queued frame with the newest one without tearing.
	// Adapter-dependent; falls back to VSync where the surface does not offer it.
	PresentModeMailbox
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4
)

// RendererBackend is the interface a rendering API implements for the Renderer.
// The Renderer validates call order and keeps the frame statistics; a backend only
// records and executes the work.
type RendererBackend interface {
	// Size returns the size of the presentation surface in pixels.
	Size() (width, height int)

	// ConfigureSurface (re)allocates the presentation surface and its depth buffer.
	// This is required when the surface size changes, such as when the window is resized.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be configured
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the surface present mode, applied on the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	// BeginFrame acquires the presentation surface for a new frame.
	//
	// Returns:
	//   - error: an error if the surface could not be acquired
	BeginFrame() error

	// BeginPass opens a render pass with the given fixed-function state.
	//
	// Parameters:
	//   - state: the target, viewport, clear and blend state of the pass
	//
	// Returns:
	//   - error: an error if the pass could not be opened; no pass is open afterwards
	BeginPass(state PassState) error

	// Draw records one node with the given view-projection matrix into the open pass.
	//
	// Parameters:
	//   - viewProj: column-major view-projection matrix
	//   - node: a node that passed Validate
	//
	// Returns:
	//   - error: an error if the node's resources could not be prepared
	Draw(viewProj [16]float32, node spatial.Node) error

	// EndPass closes the open render pass.
	EndPass() error

	// CreateTarget allocates an offscreen color target.
	//
	// Parameters:
	//   - label: a debug label
	//   - width, height: the size in pixels
	//
	// Returns:
	//   - RenderTarget: the new target
	//   - error: an error if allocation failed
	CreateTarget(label string, width, height int) (RenderTarget, error)

	// ReleaseTarget frees a target created by CreateTarget.
	ReleaseTarget(t RenderTarget)

	// RunPostPass executes one full-screen pass outside any render pass.
	//
	// Parameters:
	//   - kind: the pass to run
	//   - inputs: the sampled targets, kind.Inputs() of them
	//   - output: the target written, nil for the presentation surface
	//   - params: the pass uniforms
	//
	// Returns:
	//   - error: an error if the pass could not run
	RunPostPass(kind PostPassKind, inputs []RenderTarget, output RenderTarget, params PassParams) error

	// Present submits the frame and shows the presentation surface.
	Present() error

	// Snapshot returns a copy of the last presented frame.
	Snapshot() (*image.RGBA, error)

	// ReleaseNode frees the GPU resources cached for a node.
	ReleaseNode(node spatial.Node)

	// Release frees every resource held by the backend.
	Release()
}
