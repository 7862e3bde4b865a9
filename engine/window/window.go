// Package window wraps the GLFW window the WGPU backend presents to.
package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// KeyAction is the transition reported to a key callback.
type KeyAction int

const (
	KeyPressed KeyAction = iota
	KeyRepeated
	KeyReleased
)

func (a KeyAction) String() string {
	switch a {
	case KeyPressed:
		return "pressed"
	case KeyRepeated:
		return "repeated"
	case KeyReleased:
		return "released"
	default:
		return fmt.Sprintf("KeyAction(%d)", int(a))
	}
}

// Window provides platform windowing and input event handling.
type Window interface {
	// SetUpdateCallback sets the function called once per message loop iteration,
	// after pending events were dispatched.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key events. Escape is handled by the window
	// and never reported.
	//
	// Parameters:
	//   - callback: function receiving the key code (see common.Key*) and its transition
	SetKeyCallback(callback func(keyCode uint32, action KeyAction))

	// SetDragCallback sets the callback for mouse movement while the middle button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor movement in pixels since the last event
	SetDragCallback(callback func(dx, dy float32))

	// SurfaceDescriptor returns a platform-appropriate wgpu.SurfaceDescriptor created by the
	// wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil once the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open and no close was requested.
	IsRunning() bool

	// RequestClose makes the message loop return after the current iteration. The window
	// stays allocated until Close.
	RequestClose()

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was already closed
	Close() error

	// ProcessMessages runs the window message loop on the calling goroutine, which must
	// be the one that created the window. Blocks until the window is closed or a close
	// was requested.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	log *zap.Logger

	title               string
	minWidth, minHeight int
	maxWidth, maxHeight int
	width, height       int
	resizable           bool

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	onUpdate func()
	onResize func(width, height int)
	onScroll func(delta float32)
	onKey    func(keyCode uint32, action KeyAction)
	onDrag   func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. It locks the calling goroutine to its OS thread;
// every later call on the window must come from that goroutine.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		log:       zap.NewNop(),
		title:     "Helix",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window: invalid size %dx%d", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	w.log.Info("window created",
		zap.String("title", w.title),
		zap.Int("width", w.width),
		zap.Int("height", w.height),
	)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, action KeyAction)) {
	w.onKey = callback
}

func (w *engineWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	platformRequestClose(w)
}

func (w *engineWindow) Close() error {
	if err := platformCloseWindow(w); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	w.log.Debug("window closed")
	return nil
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}

// resized records a framebuffer size reported by the platform and forwards it.
// A minimized window reports 0x0, which is not forwarded.
func (w *engineWindow) resized(width, height int) {
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	if width == 0 || height == 0 {
		w.log.Debug("window minimized")
		return
	}
	if w.onResize != nil {
		w.onResize(width, height)
	}
}
