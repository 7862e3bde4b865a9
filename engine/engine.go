// Package engine drives the frame loop: it ticks the world, whose rendering system
// draws and presents one frame per tick, and pumps window events in between.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/helix-go/engine/profiler"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/system"
	"github.com/Carmen-Shannon/helix-go/engine/window"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"go.uber.org/zap"
)

var (
	ErrNoWindow      = errors.New("engine: no window")
	ErrNoWorld       = errors.New("engine: no world")
	ErrNoSystem      = errors.New("engine: no rendering system")
	ErrStopped       = errors.New("engine: already stopped")
	ErrTooManyFaults = errors.New("engine: too many consecutive frame failures")
)

// AspectSetter is the part of a camera the engine updates on resize.
type AspectSetter interface {
	SetAspect(aspect float32)
}

// engine implements the Engine interface.
// All frame work runs on the goroutine that calls Run or RunFrames.
type engine struct {
	log *zap.Logger

	running     bool
	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	world    *world.World
	system   system.RenderingSystem
	renderer renderer.Renderer
	camera   AspectSetter

	profiler         *profiler.Profiler
	profilingEnabled bool

	tickCallback     func(deltaTime float32)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	maxFrameFailures int // 0 = never stop on failures
	frameLimit       int // 0 = unlimited

	frames    int
	failures  int
	lastFrame time.Time
	err       error
}

// Engine is the main entry point for the viewer.
// It owns the frame loop and the window, and reacts to resizes.
type Engine interface {
	// Window returns the window, or nil for a headless engine.
	Window() window.Window

	// World returns the world ticked once per frame.
	World() *world.World

	// RenderingSystem returns the system that draws the world.
	RenderingSystem() system.RenderingSystem

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickCallback registers the function called at the start of each frame, before
	// the world is processed. Entity and component changes made here are seen by the
	// same frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Resize propagates a new surface size to the renderer, the bloom buffers and the
	// camera aspect. The window's resize callback is wired to it.
	//
	// Parameters:
	//   - width, height: the new surface size in pixels
	//
	// Returns:
	//   - error: an error if the renderer or bloom could not be resized
	Resize(width, height int) error

	// Run drives the frame loop from the window's message loop. It blocks until the
	// window closes, Quit is called, the frame limit is reached, or too many
	// consecutive frames failed. Must be called on the goroutine that created the window.
	//
	// Returns:
	//   - error: ErrTooManyFaults wrapping the last frame error, or a setup error
	Run() error

	// RunFrames renders up to n frames without a window. It stops early on Quit or when
	// too many consecutive frames failed.
	//
	// Parameters:
	//   - n: the number of frames to render
	//
	// Returns:
	//   - error: ErrTooManyFaults wrapping the last frame error, or a setup error
	RunFrames(n int) error

	// Frames returns the number of frames processed so far.
	Frames() int

	// Quit stops the loop after the current frame. Safe to call multiple times and from
	// any goroutine.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine with the provided options. A world and a rendering
// system are required; the rendering system is registered with the world.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: ErrNoWorld or ErrNoSystem if a required part is missing
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		log:         zap.NewNop(),
		quitChannel: make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.world == nil {
		return nil, ErrNoWorld
	}
	if e.system == nil {
		return nil, ErrNoSystem
	}
	e.world.AddSystem(e.system)
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(e.log)
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if err := e.Resize(width, height); err != nil {
				e.log.Error("resize failed", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
			}
		})
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) World() *world.World {
	return e.world
}

func (e *engine) RenderingSystem() system.RenderingSystem {
	return e.system
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("engine: invalid size %dx%d", width, height)
	}
	if err := e.system.Resize(width, height); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if e.camera != nil {
		e.camera.SetAspect(float32(width) / float32(height))
	}
	e.log.Debug("resized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (e *engine) Run() error {
	if e.window == nil {
		return ErrNoWindow
	}
	if err := e.start(); err != nil {
		return err
	}
	e.window.SetUpdateCallback(func() {
		if !e.stopped() {
			e.frame()
		}
		if e.stopped() {
			e.window.RequestClose()
		}
	})
	e.window.ProcessMessages()
	e.signalQuit()
	e.log.Info("frame loop stopped", zap.Int("frames", e.frames))
	return e.err
}

func (e *engine) RunFrames(n int) error {
	if err := e.start(); err != nil {
		return err
	}
	for i := 0; i < n && !e.stopped(); i++ {
		e.frame()
	}
	e.running = false
	return e.err
}

func (e *engine) Frames() int {
	return e.frames
}

// Quit signals the loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

func (e *engine) stopped() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

func (e *engine) start() error {
	if e.stopped() {
		return ErrStopped
	}
	e.running = true
	if e.lastFrame.IsZero() {
		e.lastFrame = time.Now()
	}
	return nil
}

// frame runs the tick callback and one world tick, then applies the failure policy,
// the frame limit and the frame rate cap.
func (e *engine) frame() {
	start := time.Now()
	dt := float32(start.Sub(e.lastFrame).Seconds())
	e.lastFrame = start

	if e.tickCallback != nil {
		e.tickCallback(dt)
	}

	if err := e.world.Process(dt); err != nil {
		e.failures++
		e.log.Error("frame failed",
			zap.Int("frame", e.frames),
			zap.Int("consecutive", e.failures),
			zap.Error(err),
		)
		if e.maxFrameFailures > 0 && e.failures >= e.maxFrameFailures {
			e.err = fmt.Errorf("%w (%d): %w", ErrTooManyFaults, e.failures, err)
			e.signalQuit()
		}
	} else {
		e.failures = 0
	}
	e.frames++

	if e.profilingEnabled && e.renderer != nil {
		e.profiler.Tick(e.renderer.Stats())
	}

	if e.frameLimit > 0 && e.frames >= e.frameLimit {
		e.log.Info("frame limit reached", zap.Int("frames", e.frames))
		e.signalQuit()
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
