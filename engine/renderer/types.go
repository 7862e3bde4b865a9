package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/helix-go/common"
)

var (
	// ErrContextActive is returned when a render context is opened twice or a
	// call that needs a closed context is made while one is open.
	ErrContextActive = errors.New("renderer: render context already active")

	// ErrNoContext is returned when a context-scoped call is made without an open context.
	ErrNoContext = errors.New("renderer: no active render context")

	// ErrBatchActive is returned when a batch is opened twice or the context is
	// closed while a batch is still open.
	ErrBatchActive = errors.New("renderer: model batch already active")

	// ErrNoBatch is returned when a draw or batch end happens without an open batch.
	ErrNoBatch = errors.New("renderer: no active model batch")

	// ErrNilNode is returned when a nil node is submitted for drawing.
	ErrNilNode = errors.New("renderer: nil node")

	// ErrNoFrame is returned when frame-scoped work happens before BeginFrame.
	ErrNoFrame = errors.New("renderer: no frame in progress")

	// ErrNothingPresented is returned by Snapshot before the first Present.
	ErrNothingPresented = errors.New("renderer: nothing presented yet")

	// ErrUnsupported is returned by backends for operations they cannot perform.
	ErrUnsupported = errors.New("renderer: operation not supported by backend")
)

// BlendMode selects how fragment colors combine with the color already in the target.
type BlendMode int

const (
	// BlendNone overwrites the destination.
	BlendNone BlendMode = iota

	// BlendAlpha is source-over: SrcAlpha / OneMinusSrcAlpha.
	BlendAlpha

	// BlendAdditive adds the source color to the destination.
	BlendAdditive
)

func (m BlendMode) String() string {
	switch m {
	case BlendNone:
		return "none"
	case BlendAlpha:
		return "alpha"
	case BlendAdditive:
		return "additive"
	default:
		return fmt.Sprintf("blend(%d)", int(m))
	}
}

// RenderTarget is an offscreen color buffer that can be rendered into and sampled
// by post passes. Targets are created and owned by the backend that made them.
type RenderTarget interface {
	// Label returns the debug label of the target.
	Label() string

	// Width returns the width in pixels.
	Width() int

	// Height returns the height in pixels.
	Height() int
}

// PostPassKind identifies one of the full-screen passes of the bloom chain.
type PostPassKind int

const (
	// PostPassExtract keeps pixels whose luminance is above a threshold, resampled to the output size.
	PostPassExtract PostPassKind = iota

	// PostPassBlurHorizontal applies a one-dimensional Gaussian along x.
	PostPassBlurHorizontal

	// PostPassBlurVertical applies a one-dimensional Gaussian along y.
	PostPassBlurVertical

	// PostPassComposite adds the second input, scaled by the intensity, over the first.
	PostPassComposite
)

func (k PostPassKind) String() string {
	switch k {
	case PostPassExtract:
		return "extract"
	case PostPassBlurHorizontal:
		return "blur_horizontal"
	case PostPassBlurVertical:
		return "blur_vertical"
	case PostPassComposite:
		return "composite"
	default:
		return fmt.Sprintf("post_pass(%d)", int(k))
	}
}

// Inputs returns the number of input targets the pass samples.
func (k PostPassKind) Inputs() int {
	if k == PostPassComposite {
		return 2
	}
	return 1
}

// MaxKernelTaps is the largest half-kernel a blur pass accepts, center tap included.
const MaxKernelTaps = 16

// PassParams carries the uniforms of a post pass.
type PassParams struct {
	// Threshold is the luminance cut-off of the extract pass, in [0, 1].
	Threshold float32

	// Intensity scales the bloom input of the composite pass.
	Intensity float32

	// Kernel is the half Gaussian of the blur passes: Kernel[0] is the center
	// weight and Kernel[i] the weight of both taps at distance i.
	Kernel []float32
}

// PassState is the fixed-function state a render context opens with.
type PassState struct {
	// Target is the color buffer drawn into; nil is the presentation surface.
	Target RenderTarget

	// Viewport restricts drawing to a sub-rectangle of the target. An empty
	// viewport covers the whole target.
	Viewport common.Viewport

	// Clear requests the color and depth buffers be cleared when the pass opens.
	Clear      bool
	ClearColor common.Color

	Blend BlendMode
}

// FrameStats counts the work recorded since the last BeginFrame.
type FrameStats struct {
	ContextBegins int
	ContextEnds   int
	BatchBegins   int
	BatchEnds     int
	Draws         int
	SkippedDraws  int
	PostPasses    int

	// SurfaceWrites counts contexts and post passes that wrote the presentation surface.
	SurfaceWrites int

	// TargetWrites counts contexts and post passes that wrote an offscreen target.
	TargetWrites int
}
