package renderer

import (
	"errors"
	"image"
	"testing"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
)

type fakeTarget struct {
	label         string
	width, height int
}

func (t *fakeTarget) Label() string { return t.label }
func (t *fakeTarget) Width() int    { return t.width }
func (t *fakeTarget) Height() int   { return t.height }

// fakeBackend records the calls the renderer makes.
type fakeBackend struct {
	width, height int
	calls         []string
	passes        []PassState
	drawErr       error
	passErr       error
	released      []spatial.Node
}

var _ RendererBackend = &fakeBackend{}

func (b *fakeBackend) Size() (int, int) { return b.width, b.height }
func (b *fakeBackend) ConfigureSurface(w, h int) error {
	b.width, b.height = w, h
	b.calls = append(b.calls, "configure")
	return nil
}
func (b *fakeBackend) SetPresentMode(PresentMode) {}
func (b *fakeBackend) BeginFrame() error {
	b.calls = append(b.calls, "frame")
	return nil
}
func (b *fakeBackend) BeginPass(s PassState) error {
	if b.passErr != nil {
		return b.passErr
	}
	b.passes = append(b.passes, s)
	b.calls = append(b.calls, "pass")
	return nil
}
func (b *fakeBackend) Draw(_ [16]float32, n spatial.Node) error {
	if b.drawErr != nil {
		return b.drawErr
	}
	b.calls = append(b.calls, "draw:"+n.Label())
	return nil
}
func (b *fakeBackend) EndPass() error {
	b.calls = append(b.calls, "end")
	return nil
}
func (b *fakeBackend) CreateTarget(label string, w, h int) (RenderTarget, error) {
	return &fakeTarget{label: label, width: w, height: h}, nil
}
func (b *fakeBackend) ReleaseTarget(RenderTarget) {}
func (b *fakeBackend) RunPostPass(kind PostPassKind, _ []RenderTarget, _ RenderTarget, _ PassParams) error {
	b.calls = append(b.calls, "post:"+kind.String())
	return nil
}
func (b *fakeBackend) Present() error {
	b.calls = append(b.calls, "present")
	return nil
}
func (b *fakeBackend) Snapshot() (*image.RGBA, error) { return nil, ErrUnsupported }
func (b *fakeBackend) ReleaseNode(n spatial.Node)     { b.released = append(b.released, n) }
func (b *fakeBackend) Release()                       {}

type fixedViewProjector [16]float32

func (v fixedViewProjector) ViewProjectionMatrix() [16]float32 { return v }

func identityViewProj() fixedViewProjector {
	var m [16]float32
	common.Identity(m[:])
	return m
}

func newFakeRenderer(t *testing.T) (Renderer, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	r, err := NewRenderer(BackendTypeSoftware, nil, WithBackend(b), WithSurfaceSize(64, 32))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r, b
}

func newSoftwareRenderer(t *testing.T, w, h int) Renderer {
	t.Helper()
	r, err := NewRenderer(BackendTypeSoftware, nil, WithSurfaceSize(w, h), WithWorkers(2))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func TestRendererScoping(t *testing.T) {
	r, _ := newFakeRenderer(t)

	if err := r.BeginContext(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("BeginContext before frame: got %v, want ErrNoFrame", err)
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); !errors.Is(err, ErrNoContext) {
		t.Fatalf("EndContext without context: got %v", err)
	}
	if err := r.BeginBatch(identityViewProj()); !errors.Is(err, ErrNoContext) {
		t.Fatalf("BeginBatch without context: got %v", err)
	}
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginContext(); !errors.Is(err, ErrContextActive) {
		t.Fatalf("double BeginContext: got %v", err)
	}
	if err := r.SetRenderTarget(nil); !errors.Is(err, ErrContextActive) {
		t.Fatalf("SetRenderTarget in context: got %v", err)
	}
	if err := r.Draw(spatial.BuildAxes(1)); !errors.Is(err, ErrNoBatch) {
		t.Fatalf("Draw without batch: got %v", err)
	}
	if err := r.BeginBatch(identityViewProj()); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginBatch(identityViewProj()); !errors.Is(err, ErrBatchActive) {
		t.Fatalf("double BeginBatch: got %v", err)
	}
	if err := r.EndContext(); !errors.Is(err, ErrBatchActive) {
		t.Fatalf("EndContext with open batch: got %v", err)
	}
	if err := r.Present(); !errors.Is(err, ErrContextActive) {
		t.Fatalf("Present in context: got %v", err)
	}
	if err := r.EndBatch(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndBatch(); !errors.Is(err, ErrNoBatch) {
		t.Fatalf("double EndBatch: got %v", err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Present twice: got %v", err)
	}
}

func TestRendererContextState(t *testing.T) {
	r, b := newFakeRenderer(t)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if got := r.Viewport(); got != (common.Viewport{Width: 64, Height: 32}) {
		t.Fatalf("frame viewport = %+v", got)
	}

	target, err := r.CreateTarget("capture", 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetRenderTarget(target); err != nil {
		t.Fatal(err)
	}
	r.SetViewport(common.Viewport{X: 1, Y: 2, Width: 3, Height: 4})
	r.Clear(common.ColorRed)
	r.SetBlending(BlendAlpha)

	ctx := NewRenderContext(r)
	if err := ctx.Begin(); err != nil {
		t.Fatal(err)
	}
	if !ctx.Active() {
		t.Fatal("context not active after Begin")
	}
	if err := ctx.End(); err != nil {
		t.Fatal(err)
	}
	// The clear request is consumed by the first context.
	if err := ctx.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.End(); err != nil {
		t.Fatal(err)
	}

	if len(b.passes) != 2 {
		t.Fatalf("got %d passes, want 2", len(b.passes))
	}
	first := b.passes[0]
	if first.Target != target || !first.Clear || first.ClearColor != common.ColorRed || first.Blend != BlendAlpha {
		t.Fatalf("first pass state = %+v", first)
	}
	if first.Viewport != (common.Viewport{X: 1, Y: 2, Width: 3, Height: 4}) {
		t.Fatalf("first pass viewport = %+v", first.Viewport)
	}
	if b.passes[1].Clear {
		t.Fatal("second pass cleared again")
	}

	stats := r.Stats()
	if stats.ContextBegins != 2 || stats.ContextEnds != 2 || stats.TargetWrites != 2 || stats.SurfaceWrites != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	r.ReleaseTarget(target)
	if r.RenderTarget() != nil {
		t.Fatal("released target is still current")
	}
}

func TestRendererBeginContextFailure(t *testing.T) {
	r, b := newFakeRenderer(t)
	b.passErr = errors.New("device lost")
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginContext(); err == nil {
		t.Fatal("expected backend error")
	}
	if r.ContextActive() {
		t.Fatal("context open after failed begin")
	}
	if err := r.Present(); err != nil {
		t.Fatalf("Present after failed begin: %v", err)
	}
}

func TestRendererDrawSkips(t *testing.T) {
	missing := spatial.NewNode(
		spatial.WithLabel("missing-texture"),
		spatial.WithMesh(spatial.BuildAxes(1).Mesh()),
		spatial.WithMaterial(&spatial.Material{BaseColor: common.ColorWhite, Opacity: 1, TextureName: "grass"}),
	)

	tests := []struct {
		name    string
		node    spatial.Node
		drawErr error
		wantErr error
	}{
		{name: "nil node", node: nil, wantErr: ErrNilNode},
		{name: "missing mesh", node: spatial.NewNode(spatial.WithLabel("empty")), wantErr: spatial.ErrMissingMesh},
		{name: "missing texture", node: missing, wantErr: spatial.ErrMissingTexture},
		{name: "backend failure", node: spatial.BuildAxes(1), drawErr: errUpload, wantErr: errUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, b := newFakeRenderer(t)
			b.drawErr = tt.drawErr
			if err := r.BeginFrame(); err != nil {
				t.Fatal(err)
			}
			if err := r.BeginContext(); err != nil {
				t.Fatal(err)
			}
			if err := r.BeginBatch(identityViewProj()); err != nil {
				t.Fatal(err)
			}

			err := r.Draw(tt.node)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Draw: got %v, want %v", err, tt.wantErr)
			}
			// A skipped draw leaves the batch usable.
			if !r.BatchActive() {
				t.Fatal("batch closed by a skipped draw")
			}
			stats := r.Stats()
			if stats.SkippedDraws != 1 || stats.Draws != 0 {
				t.Fatalf("stats = %+v", stats)
			}
		})
	}
}

var errUpload = errors.New("upload failed")

func TestModelBatchDrawsInOrder(t *testing.T) {
	r, b := newFakeRenderer(t)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	ctx := NewRenderContext(r)
	batch := NewModelBatch(r)
	if err := ctx.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := batch.Begin(identityViewProj()); err != nil {
		t.Fatal(err)
	}
	for _, label := range []string{"axes", "box"} {
		n := spatial.NewBox(1, common.ColorWhite, spatial.WithLabel(label))
		if err := batch.Draw(n); err != nil {
			t.Fatal(err)
		}
	}
	if err := batch.End(); err != nil {
		t.Fatal(err)
	}
	if batch.Active() {
		t.Fatal("batch active after End")
	}
	if err := ctx.End(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}

	want := []string{"configure", "frame", "pass", "draw:axes", "draw:box", "end", "present"}
	if len(b.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", b.calls, want)
	}
	for i := range want {
		if b.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", b.calls, want)
		}
	}
	if s := r.Stats(); s.Draws != 2 || s.BatchBegins != 1 || s.BatchEnds != 1 || s.SurfaceWrites != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRunPostPassValidation(t *testing.T) {
	r, _ := newFakeRenderer(t)
	a, _ := r.CreateTarget("a", 8, 8)
	c, _ := r.CreateTarget("c", 8, 8)

	if err := r.RunPostPass(PostPassExtract, []RenderTarget{a}, c, PassParams{}); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("post pass before frame: got %v", err)
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		kind   PostPassKind
		inputs []RenderTarget
		output RenderTarget
		params PassParams
		ok     bool
	}{
		{name: "extract", kind: PostPassExtract, inputs: []RenderTarget{a}, output: c, ok: true},
		{name: "composite to surface", kind: PostPassComposite, inputs: []RenderTarget{a, c}, output: nil, ok: true},
		{name: "missing input", kind: PostPassComposite, inputs: []RenderTarget{a}, output: nil},
		{name: "nil input", kind: PostPassBlurHorizontal, inputs: []RenderTarget{nil}, output: c},
		{name: "in place", kind: PostPassBlurVertical, inputs: []RenderTarget{c}, output: c},
		{name: "kernel too long", kind: PostPassBlurVertical, inputs: []RenderTarget{a}, output: c, params: PassParams{Kernel: make([]float32, MaxKernelTaps+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.RunPostPass(tt.kind, tt.inputs, tt.output, tt.params)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if s := r.Stats(); s.PostPasses != 2 || s.TargetWrites != 1 || s.SurfaceWrites != 1 {
		t.Fatalf("stats = %+v", s)
	}

	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPostPass(PostPassExtract, []RenderTarget{a}, c, PassParams{}); !errors.Is(err, ErrContextActive) {
		t.Fatalf("post pass in context: got %v", err)
	}
}

func TestRendererReleaseNode(t *testing.T) {
	r, b := newFakeRenderer(t)
	n := spatial.BuildAxes(1)
	r.ReleaseNode(n)
	r.ReleaseNode(nil)
	if len(b.released) != 1 || b.released[0] != n {
		t.Fatalf("released = %v", b.released)
	}
}

// renderFrame draws nodes with the identity view-projection into the surface after
// clearing it to clear.
func renderFrame(t *testing.T, r Renderer, clear common.Color, blend BlendMode, nodes ...spatial.Node) *image.RGBA {
	t.Helper()
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	r.Clear(clear)
	r.SetBlending(blend)
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginBatch(identityViewProj()); err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if err := r.Draw(n); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.EndBatch(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	img, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func assertPixel(t *testing.T, img *image.RGBA, x, y int, want [4]uint8) {
	t.Helper()
	c := img.RGBAAt(x, y)
	got := [4]uint8{c.R, c.G, c.B, c.A}
	for i := range got {
		d := int(got[i]) - int(want[i])
		if d < -1 || d > 1 {
			t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
		}
	}
}

func TestSoftwareSnapshotBeforePresent(t *testing.T) {
	r := newSoftwareRenderer(t, 4, 4)
	if _, err := r.Snapshot(); !errors.Is(err, ErrNothingPresented) {
		t.Fatalf("got %v, want ErrNothingPresented", err)
	}
}

func TestSoftwareClear(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	img := renderFrame(t, r, common.Color{R: 0.4, G: 0.4, B: 0.4, A: 1}, BlendNone)
	for _, p := range []image.Point{{0, 0}, {7, 7}, {3, 5}} {
		assertPixel(t, img, p.X, p.Y, [4]uint8{102, 102, 102, 255})
	}
}

func TestSoftwareAxes(t *testing.T) {
	r := newSoftwareRenderer(t, 32, 32)
	img := renderFrame(t, r, common.ColorBlack, BlendNone, spatial.BuildAxes(0.5))

	// X runs right from the center, Y runs up, Z points at the viewer and covers one pixel.
	assertPixel(t, img, 20, 16, [4]uint8{255, 0, 0, 255})
	assertPixel(t, img, 16, 12, [4]uint8{0, 255, 0, 255})
	assertPixel(t, img, 8, 16, [4]uint8{0, 0, 0, 255})
	assertPixel(t, img, 16, 24, [4]uint8{0, 0, 0, 255})
}

func TestSoftwareDepthTest(t *testing.T) {
	near := spatial.NewQuad(2, 2, common.ColorGreen, spatial.WithLabel("near"), spatial.WithPosition([3]float32{0, 0, 0.2}))
	far := spatial.NewQuad(2, 2, common.ColorRed, spatial.WithLabel("far"), spatial.WithPosition([3]float32{0, 0, 0.6}))

	tests := []struct {
		name  string
		nodes []spatial.Node
	}{
		{name: "near first", nodes: []spatial.Node{near, far}},
		{name: "far first", nodes: []spatial.Node{far, near}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSoftwareRenderer(t, 8, 8)
			img := renderFrame(t, r, common.ColorBlack, BlendNone, tt.nodes...)
			assertPixel(t, img, 4, 4, [4]uint8{0, 255, 0, 255})
			assertPixel(t, img, 0, 7, [4]uint8{0, 255, 0, 255})
		})
	}
}

func TestSoftwareAlphaBlend(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	glass := spatial.NewQuad(2, 2, common.ColorWhite, spatial.WithLabel("glass"))
	glass.SetOpacity(0.5)

	img := renderFrame(t, r, common.ColorBlack, BlendAlpha, glass)
	assertPixel(t, img, 4, 4, [4]uint8{128, 128, 128, 255})
}

func TestSoftwareViewport(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	r.Clear(common.ColorBlack)
	r.SetViewport(common.Viewport{X: 4, Y: 0, Width: 4, Height: 8})
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginBatch(identityViewProj()); err != nil {
		t.Fatal(err)
	}
	if err := r.Draw(spatial.NewQuad(2, 2, common.ColorBlue)); err != nil {
		t.Fatal(err)
	}
	if err := r.EndBatch(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	img, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	// The whole target is cleared, only the viewport is drawn.
	assertPixel(t, img, 1, 4, [4]uint8{0, 0, 0, 255})
	assertPixel(t, img, 6, 4, [4]uint8{0, 0, 255, 255})
}

// clearTarget fills an offscreen target through an empty render context.
func clearTarget(t *testing.T, r Renderer, target RenderTarget, c common.Color) {
	t.Helper()
	if err := r.SetRenderTarget(target); err != nil {
		t.Fatal(err)
	}
	r.SetViewport(common.Viewport{Width: target.Width(), Height: target.Height()})
	r.Clear(c)
	if err := r.BeginContext(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndContext(); err != nil {
		t.Fatal(err)
	}
}

func TestSoftwarePostPasses(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	target := func(label string, w, h int) RenderTarget {
		tg, err := r.CreateTarget(label, w, h)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { r.ReleaseTarget(tg) })
		return tg
	}
	bright := target("bright", 8, 8)
	dim := target("dim", 8, 8)
	extracted := target("extracted", 4, 4)
	blurred := target("blurred", 4, 4)
	dark := target("dark", 4, 4)

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	clearTarget(t, r, bright, common.ColorWhite)
	clearTarget(t, r, dim, common.Color{R: 0.2, G: 0.2, B: 0.2, A: 1})
	if err := r.SetRenderTarget(nil); err != nil {
		t.Fatal(err)
	}

	if err := r.RunPostPass(PostPassExtract, []RenderTarget{bright}, extracted, PassParams{Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPostPass(PostPassBlurHorizontal, []RenderTarget{extracted}, blurred, PassParams{Kernel: []float32{0.5, 0.25}}); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPostPass(PostPassExtract, []RenderTarget{dim}, dark, PassParams{Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPostPass(PostPassComposite, []RenderTarget{dim, blurred}, nil, PassParams{Intensity: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}

	// A uniform image is unchanged by a normalized blur.
	sb := blurred.(*softwareTarget).img
	assertPixel(t, sb, 0, 0, [4]uint8{255, 255, 255, 255})
	assertPixel(t, sb, 3, 2, [4]uint8{255, 255, 255, 255})

	// Below the threshold everything goes black.
	assertPixel(t, dark.(*softwareTarget).img, 2, 2, [4]uint8{0, 0, 0, 255})

	img, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	// 0.2*255 + 255*0.5
	assertPixel(t, img, 4, 4, [4]uint8{179, 179, 179, 255})
}

func TestSoftwareBlurSizeMismatch(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	a, _ := r.CreateTarget("a", 4, 4)
	b, _ := r.CreateTarget("b", 2, 2)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPostPass(PostPassBlurVertical, []RenderTarget{a}, b, PassParams{Kernel: []float32{1}}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestSoftwareReleasedTarget(t *testing.T) {
	r := newSoftwareRenderer(t, 8, 8)
	a, _ := r.CreateTarget("a", 4, 4)
	r.ReleaseTarget(a)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRenderTarget(a); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginContext(); err == nil {
		t.Fatal("expected error for released target")
	}
}

func TestBackendTypeString(t *testing.T) {
	tests := []struct {
		in   RendererBackendType
		want string
	}{
		{BackendTypeWGPU, "wgpu"},
		{BackendTypeSoftware, "software"},
		{RendererBackendType(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.in), got, tt.want)
		}
	}
}
