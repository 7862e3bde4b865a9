package engine

import (
	"github.com/Carmen-Shannon/helix-go/engine/profiler"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/system"
	"github.com/Carmen-Shannon/helix-go/engine/window"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
// Profiling reads frame stats from the renderer set by WithRenderer.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithWindow sets the window whose message loop drives Run.
//
// Parameters:
//   - w: an open Window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithWorld sets the world processed once per frame.
func WithWorld(w *world.World) EngineBuilderOption {
	return func(e *engine) {
		e.world = w
	}
}

// WithRenderingSystem sets the system that draws the world. NewEngine registers it with
// the world, so it must not be added already.
func WithRenderingSystem(s system.RenderingSystem) EngineBuilderOption {
	return func(e *engine) {
		e.system = s
	}
}

// WithRenderer sets the renderer whose frame stats feed the profiler.
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithCamera sets the camera whose aspect ratio follows the surface size.
func WithCamera(c AspectSetter) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithRenderFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameDuration(fps)
	}
}

// WithMaxFrameFailures stops the loop after n consecutive failed frames. 0 never stops.
func WithMaxFrameFailures(n int) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrameFailures = max(n, 0)
	}
}

// WithFrameLimit stops the loop after n frames. 0 runs until the window closes.
func WithFrameLimit(n int) EngineBuilderOption {
	return func(e *engine) {
		e.frameLimit = max(n, 0)
	}
}

// WithLogger sets the logger of the engine.
func WithLogger(log *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if log != nil {
			e.log = log.Named("engine")
		}
	}
}
