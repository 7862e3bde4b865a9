package engine

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/camera"
	"github.com/Carmen-Shannon/helix-go/engine/component"
	"github.com/Carmen-Shannon/helix-go/engine/postprocess"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/Carmen-Shannon/helix-go/engine/system"
	"github.com/Carmen-Shannon/helix-go/engine/world"
)

var errLost = errors.New("device lost")

// flakyRenderer fails BeginFrame on the frames fail selects.
type flakyRenderer struct {
	renderer.Renderer
	frame int
	fail  func(frame int) bool
}

func (r *flakyRenderer) BeginFrame() error {
	r.frame++
	if r.fail(r.frame) {
		return errLost
	}
	return r.Renderer.BeginFrame()
}

type harness struct {
	r      renderer.Renderer
	cam    camera.Camera
	bloom  postprocess.Bloom
	world  *world.World
	stores *component.Stores
	sys    system.RenderingSystem
}

func newHarness(t *testing.T, wrap func(renderer.Renderer) renderer.Renderer) *harness {
	t.Helper()
	base, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(32, 32), renderer.WithWorkers(2))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(base.Release)
	r := base
	if wrap != nil {
		r = wrap(base)
	}
	b, err := postprocess.NewBloom(r)
	if err != nil {
		t.Fatalf("NewBloom: %v", err)
	}
	t.Cleanup(b.Release)

	w := world.NewWorld()
	stores := component.NewStores(w)
	cam := camera.NewCamera()
	sys := system.NewRenderingSystem(w, stores, r, cam, system.WithBloom(b))
	return &harness{r: r, cam: cam, bloom: b, world: w, stores: stores, sys: sys}
}

func (h *harness) build(t *testing.T, opts ...EngineBuilderOption) Engine {
	t.Helper()
	e, err := NewEngine(append([]EngineBuilderOption{
		WithWorld(h.world),
		WithRenderingSystem(h.sys),
		WithRenderer(h.r),
		WithCamera(h.cam),
	}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineRequiresWorldAndSystem(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name string
		opts []EngineBuilderOption
		want error
	}{
		{name: "no world", opts: []EngineBuilderOption{WithRenderingSystem(h.sys)}, want: ErrNoWorld},
		{name: "no system", opts: []EngineBuilderOption{WithWorld(h.world)}, want: ErrNoSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.opts...); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunFramesPresentsEveryFrame(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build(t, WithProfiling(true))

	if err := e.RunFrames(3); err != nil {
		t.Fatalf("RunFrames: %v", err)
	}
	if e.Frames() != 3 {
		t.Fatalf("frames = %d, want 3", e.Frames())
	}
	if s := h.r.Stats(); s.ContextBegins != 1 || s.BatchBegins != 1 || s.SurfaceWrites != 1 {
		t.Fatalf("last frame stats = %+v", s)
	}
	if _, err := h.r.Snapshot(); err != nil {
		t.Fatalf("nothing presented: %v", err)
	}
}

func TestRunWithoutWindow(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.build(t).Run(); !errors.Is(err, ErrNoWindow) {
		t.Fatalf("Run = %v, want ErrNoWindow", err)
	}
}

func TestFrameLimit(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build(t, WithFrameLimit(2))

	if err := e.RunFrames(10); err != nil {
		t.Fatal(err)
	}
	if e.Frames() != 2 {
		t.Fatalf("frames = %d, want 2", e.Frames())
	}
	if err := e.RunFrames(1); !errors.Is(err, ErrStopped) {
		t.Fatalf("second run = %v, want ErrStopped", err)
	}
}

func TestMaxFrameFailures(t *testing.T) {
	tests := []struct {
		name       string
		fail       func(frame int) bool
		max        int
		wantFrames int
		wantErr    bool
	}{
		{name: "always failing", fail: func(int) bool { return true }, max: 3, wantFrames: 3, wantErr: true},
		{name: "alternating", fail: func(f int) bool { return f%2 == 0 }, max: 2, wantFrames: 8},
		{name: "unlimited", fail: func(int) bool { return true }, max: 0, wantFrames: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(r renderer.Renderer) renderer.Renderer {
				return &flakyRenderer{Renderer: r, fail: tt.fail}
			})
			e := h.build(t, WithMaxFrameFailures(tt.max))

			err := e.RunFrames(8)
			if e.Frames() != tt.wantFrames {
				t.Fatalf("frames = %d, want %d", e.Frames(), tt.wantFrames)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("RunFrames: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrTooManyFaults) || !errors.Is(err, errLost) {
				t.Fatalf("err = %v, want ErrTooManyFaults wrapping errLost", err)
			}
		})
	}
}

func TestResizePropagates(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build(t)

	if err := e.Resize(64, 16); err != nil {
		t.Fatal(err)
	}
	if w, hh := h.r.Size(); w != 64 || hh != 16 {
		t.Fatalf("renderer size = %dx%d", w, hh)
	}
	if h.cam.Aspect() != 4 {
		t.Fatalf("camera aspect = %v, want 4", h.cam.Aspect())
	}
	if err := e.Resize(0, 10); err == nil {
		t.Fatal("expected error for empty size")
	}
	if err := e.RunFrames(1); err != nil {
		t.Fatalf("frame after resize: %v", err)
	}
}

func TestTickCallbackChangesSameFrame(t *testing.T) {
	h := newHarness(t, nil)
	e := h.build(t)

	var spawned world.EntityID
	e.SetTickCallback(func(float32) {
		if e.Frames() == 0 {
			spawned = h.world.CreateEntity()
			h.stores.SetNode(spawned, spatial.NewBox(4, common.ColorRed))
			h.stores.Show(spawned)
		}
		if e.Frames() == 1 {
			e.Quit()
		}
	})

	if err := e.RunFrames(5); err != nil {
		t.Fatal(err)
	}
	if e.Frames() != 2 {
		t.Fatalf("frames = %d, want 2 after Quit", e.Frames())
	}
	u, ok := h.world.Identities().Identity(spawned)
	if !ok || !h.sys.Cache().Has(u) {
		t.Fatal("entity created in the tick callback was not cached")
	}
}
