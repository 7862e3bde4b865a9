package postprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
)

func newRenderer(t *testing.T, w, h int) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(w, h), renderer.WithWorkers(2))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

// frame runs one frame that clears to c, optionally wrapped by b.
func frame(t *testing.T, r renderer.Renderer, b Bloom, c common.Color) {
	t.Helper()
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Capture(); err != nil {
		t.Fatal(err)
	}
	r.Clear(c)
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := b.Render(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
}

func TestBloomDisabledByDefault(t *testing.T) {
	r := newRenderer(t, 16, 16)
	b, err := NewBloom(r)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if b.Enabled() {
		t.Fatal("bloom enabled by default")
	}
	frame(t, r, b, common.ColorWhite)

	s := r.Stats()
	if s.PostPasses != 0 || s.TargetWrites != 0 {
		t.Fatalf("disabled bloom touched intermediate buffers: %+v", s)
	}
	if s.SurfaceWrites != 1 {
		t.Fatalf("surface writes = %d, want 1", s.SurfaceWrites)
	}
	if b.State() != BloomDisabled {
		t.Fatalf("state = %s", b.State())
	}
}

func TestBloomEnabledFrame(t *testing.T) {
	r := newRenderer(t, 16, 16)
	b, err := NewBloom(r, WithEnabled(true), WithThreshold(0.5), WithIntensity(1))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Capture(); err != nil {
		t.Fatal(err)
	}
	if b.State() != BloomCapturing {
		t.Fatalf("state after capture = %s", b.State())
	}
	if r.RenderTarget() == nil {
		t.Fatal("capture did not redirect the render target")
	}
	r.Clear(common.Color{R: 0.6, G: 0.6, B: 0.6, A: 1})
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := b.Render(); err != nil {
		t.Fatal(err)
	}
	if r.RenderTarget() != nil {
		t.Fatal("render target not restored to the surface")
	}
	if b.State() != BloomDisabled {
		t.Fatalf("state after render = %s", b.State())
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}

	s := r.Stats()
	// 1 context + extract + 2 blurs into targets, composite into the surface.
	if s.PostPasses != 4 || s.TargetWrites != 4 || s.SurfaceWrites != 1 {
		t.Fatalf("stats = %+v", s)
	}

	img, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	// 0.6 is above the threshold, so the glow doubles it and saturates.
	if c := img.RGBAAt(8, 8); c.R != 255 {
		t.Fatalf("center pixel = %v, want saturated", c)
	}
}

func TestBloomToggleBetweenFrames(t *testing.T) {
	r := newRenderer(t, 8, 8)
	b, err := NewBloom(r)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	tests := []struct {
		enabled    bool
		wantPasses int
	}{
		{enabled: true, wantPasses: 4},
		{enabled: false, wantPasses: 0},
		{enabled: true, wantPasses: 4},
	}
	for _, tt := range tests {
		b.SetEnabled(tt.enabled)
		frame(t, r, b, common.ColorBlack)
		if got := r.Stats().PostPasses; got != tt.wantPasses {
			t.Fatalf("enabled=%v: post passes = %d, want %d", tt.enabled, got, tt.wantPasses)
		}
	}
}

func TestBloomDisableMidFrameFinishes(t *testing.T) {
	r := newRenderer(t, 8, 8)
	b, err := NewBloom(r, WithEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Capture(); err != nil {
		t.Fatal(err)
	}
	b.SetEnabled(false)
	if err := b.Render(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats().PostPasses; got != 4 {
		t.Fatalf("captured frame not composited: %d passes", got)
	}
}

func TestBloomAbort(t *testing.T) {
	r := newRenderer(t, 8, 8)
	b, err := NewBloom(r, WithEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Capture(); err != nil {
		t.Fatal(err)
	}
	b.Abort()
	if b.State() != BloomDisabled || r.RenderTarget() != nil {
		t.Fatalf("abort left state %s target %v", b.State(), r.RenderTarget())
	}
	if err := b.Render(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats().PostPasses; got != 0 {
		t.Fatalf("aborted frame ran %d passes", got)
	}
}

var errBlur = errors.New("blur pass lost")

// failingPassRenderer fails every post pass of one kind.
type failingPassRenderer struct {
	renderer.Renderer
	kind renderer.PostPassKind
}

func (r failingPassRenderer) RunPostPass(kind renderer.PostPassKind, inputs []renderer.RenderTarget, output renderer.RenderTarget, params renderer.PassParams) error {
	if kind == r.kind {
		return errBlur
	}
	return r.Renderer.RunPostPass(kind, inputs, output, params)
}

func TestBloomFailedBlurStillShowsCapture(t *testing.T) {
	base := newRenderer(t, 16, 16)
	r := failingPassRenderer{Renderer: base, kind: renderer.PostPassBlurVertical}
	b, err := NewBloom(r, WithEnabled(true), WithThreshold(0.5), WithIntensity(1))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := b.Capture(); err != nil {
		t.Fatal(err)
	}
	r.Clear(common.Color{R: 0.6, G: 0.6, B: 0.6, A: 1})
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := b.Render(); !errors.Is(err, errBlur) {
		t.Fatalf("Render = %v, want errBlur", err)
	}
	if b.State() != BloomDisabled || r.RenderTarget() != nil {
		t.Fatalf("failed render left state %s target %v", b.State(), r.RenderTarget())
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}

	// extract, horizontal blur and the fallback composite reached the renderer.
	if s := base.Stats(); s.PostPasses != 3 || s.SurfaceWrites != 1 {
		t.Fatalf("stats = %+v", s)
	}
	img, err := base.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(8, 8); c.R != 153 || c.G != 153 || c.B != 153 {
		t.Fatalf("center pixel = %v, want the captured clear color without glow", c)
	}
}

func TestBloomResize(t *testing.T) {
	r := newRenderer(t, 16, 8)
	bl, err := NewBloom(r, WithDownsample(4))
	if err != nil {
		t.Fatal(err)
	}
	defer bl.Release()
	b := bl.(*bloom)

	check := func(w, h int) {
		t.Helper()
		if b.capture.Width() != w || b.capture.Height() != h {
			t.Fatalf("capture = %dx%d, want %dx%d", b.capture.Width(), b.capture.Height(), w, h)
		}
		for _, tg := range []renderer.RenderTarget{b.extract, b.blurA, b.blurB} {
			if tg.Width() != max(w/4, 1) || tg.Height() != max(h/4, 1) {
				t.Fatalf("%s = %dx%d for surface %dx%d", tg.Label(), tg.Width(), tg.Height(), w, h)
			}
		}
	}
	check(16, 8)

	if err := bl.Resize(40, 2); err != nil {
		t.Fatal(err)
	}
	check(40, 2)

	if err := bl.Resize(0, 0); err == nil {
		t.Fatal("expected error for empty size")
	}
}

func TestBloomSettersClamp(t *testing.T) {
	r := newRenderer(t, 8, 8)
	b, err := NewBloom(r)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if b.Threshold() != 0.8 || b.Intensity() != 1 || b.Radius() != 4 {
		t.Fatalf("defaults = %v %v %v", b.Threshold(), b.Intensity(), b.Radius())
	}
	b.SetThreshold(2)
	b.SetIntensity(-1)
	b.SetRadius(-3)
	if b.Threshold() != 1 || b.Intensity() != 0 || b.Radius() != 0 {
		t.Fatalf("clamped = %v %v %v", b.Threshold(), b.Intensity(), b.Radius())
	}
}

func TestGaussianKernel(t *testing.T) {
	tests := []struct {
		name     string
		radius   float32
		wantTaps int
	}{
		{name: "zero", radius: 0, wantTaps: 1},
		{name: "negative", radius: -2, wantTaps: 1},
		{name: "small", radius: 1, wantTaps: 2},
		{name: "default", radius: 4, wantTaps: 5},
		{name: "fractional", radius: 2.5, wantTaps: 4},
		{name: "capped", radius: 100, wantTaps: renderer.MaxKernelTaps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := GaussianKernel(tt.radius)
			if len(k) != tt.wantTaps {
				t.Fatalf("len = %d, want %d", len(k), tt.wantTaps)
			}
			sum := float64(k[0])
			for i := 1; i < len(k); i++ {
				sum += 2 * float64(k[i])
				if k[i] > k[i-1] {
					t.Fatalf("kernel not decreasing at %d: %v", i, k)
				}
			}
			if math.Abs(sum-1) > 1e-5 {
				t.Fatalf("kernel sums to %v: %v", sum, k)
			}
		})
	}
}

func TestGaussianKernelReturnsCopy(t *testing.T) {
	k := GaussianKernel(3)
	k[0] = 42
	if GaussianKernel(3)[0] == 42 {
		t.Fatal("cached kernel was mutated through a returned slice")
	}
}
