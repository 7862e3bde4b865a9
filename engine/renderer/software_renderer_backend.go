package renderer

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"go.uber.org/zap"
)

// rowsPerTask is the number of image rows a single worker task processes.
const rowsPerTask = 16

// softwareTarget is a CPU color buffer with a lazily allocated depth buffer.
type softwareTarget struct {
	label string
	img   *image.RGBA
	depth []float32
}

var _ RenderTarget = &softwareTarget{}

func newSoftwareTarget(label string, width, height int) *softwareTarget {
	return &softwareTarget{label: label, img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (t *softwareTarget) Label() string { return t.label }
func (t *softwareTarget) Width() int    { return t.img.Rect.Dx() }
func (t *softwareTarget) Height() int   { return t.img.Rect.Dy() }

// depthBuffer returns the depth buffer, allocating it cleared to the far plane.
func (t *softwareTarget) depthBuffer() []float32 {
	if len(t.depth) != t.Width()*t.Height() {
		t.depth = make([]float32, t.Width()*t.Height())
		for i := range t.depth {
			t.depth[i] = 1
		}
	}
	return t.depth
}

// softwareRendererBackendImpl rasterizes on the CPU into image.RGBA buffers. It has no
// window and keeps the last presented frame for Snapshot.
type softwareRendererBackendImpl struct {
	log *zap.Logger

	presentMode PresentMode
	surface     *softwareTarget
	presented   *image.RGBA

	pool worker.DynamicWorkerPool

	frameActive bool
	passActive  bool
	pass        PassState
	passTarget  *softwareTarget
	passRect    image.Rectangle
}

var _ RendererBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(workers int, log *zap.Logger) *softwareRendererBackendImpl {
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	return &softwareRendererBackendImpl{
		log:  log.Named("software"),
		pool: worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

func (b *softwareRendererBackendImpl) Size() (width, height int) {
	if b.surface == nil {
		return 0, 0
	}
	return b.surface.Width(), b.surface.Height()
}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	if b.passActive {
		return ErrContextActive
	}
	b.surface = newSoftwareTarget("surface", width, height)
	b.log.Debug("surface configured", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (b *softwareRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.presentMode = mode
}

func (b *softwareRendererBackendImpl) BeginFrame() error {
	if b.surface == nil {
		return fmt.Errorf("surface not configured")
	}
	b.frameActive = true
	return nil
}

func (b *softwareRendererBackendImpl) BeginPass(state PassState) error {
	if !b.frameActive {
		return ErrNoFrame
	}
	if b.passActive {
		return ErrContextActive
	}
	target, err := b.resolve(state.Target)
	if err != nil {
		return err
	}

	bounds := target.img.Rect
	rect := bounds
	if !state.Viewport.Empty() {
		rect = image.Rect(
			state.Viewport.X, state.Viewport.Y,
			state.Viewport.X+state.Viewport.Width, state.Viewport.Y+state.Viewport.Height,
		).Intersect(bounds)
	}

	if state.Clear {
		fill(target.img, state.ClearColor)
		depth := target.depthBuffer()
		for i := range depth {
			depth[i] = 1
		}
	}

	b.pass = state
	b.passTarget = target
	b.passRect = rect
	b.passActive = true
	return nil
}

func (b *softwareRendererBackendImpl) Draw(viewProj [16]float32, node spatial.Node) error {
	if !b.passActive {
		return ErrNoContext
	}
	if b.passRect.Empty() {
		return nil
	}

	var mvp [16]float32
	model := node.ModelMatrix()
	common.Mul4(mvp[:], viewProj[:], model[:])

	mesh := node.Mesh()
	material := node.Material()
	r := rasterizer{
		img:     b.passTarget.img,
		depth:   b.passTarget.depthBuffer(),
		rect:    b.passRect,
		blend:   b.pass.Blend,
		tint:    material.Tint(),
		texture: material.Texture,
	}

	verts := make([]clipVertex, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		x, y, z, w := common.TransformPoint(mvp[:], v.Position[0], v.Position[1], v.Position[2])
		verts[i] = clipVertex{pos: [4]float32{x, y, z, w}, uv: v.UV, color: v.Color}
	}

	switch mesh.Topology {
	case spatial.TopologyLines:
		for i := 0; i+1 < len(mesh.Indices); i += 2 {
			r.line(verts[mesh.Indices[i]], verts[mesh.Indices[i+1]])
		}
	default:
		for i := 0; i+2 < len(mesh.Indices); i += 3 {
			r.triangle(verts[mesh.Indices[i]], verts[mesh.Indices[i+1]], verts[mesh.Indices[i+2]])
		}
	}
	return nil
}

func (b *softwareRendererBackendImpl) EndPass() error {
	if !b.passActive {
		return ErrNoContext
	}
	b.passActive = false
	b.passTarget = nil
	return nil
}

func (b *softwareRendererBackendImpl) CreateTarget(label string, width, height int) (RenderTarget, error) {
	return newSoftwareTarget(label, width, height), nil
}

func (b *softwareRendererBackendImpl) ReleaseTarget(t RenderTarget) {
	if st, ok := t.(*softwareTarget); ok {
		st.img = image.NewRGBA(image.Rectangle{})
		st.depth = nil
	}
}

func (b *softwareRendererBackendImpl) RunPostPass(kind PostPassKind, inputs []RenderTarget, output RenderTarget, params PassParams) error {
	if b.passActive {
		return ErrContextActive
	}
	src := make([]*softwareTarget, len(inputs))
	for i, in := range inputs {
		t, err := b.resolve(in)
		if err != nil {
			return err
		}
		src[i] = t
	}
	dst, err := b.resolve(output)
	if err != nil {
		return err
	}

	switch kind {
	case PostPassExtract:
		b.extract(src[0].img, dst.img, params.Threshold)
	case PostPassBlurHorizontal:
		return b.blur(src[0].img, dst.img, params.Kernel, true)
	case PostPassBlurVertical:
		return b.blur(src[0].img, dst.img, params.Kernel, false)
	case PostPassComposite:
		b.composite(src[0].img, src[1].img, dst.img, params.Intensity)
	default:
		return fmt.Errorf("unknown post pass %s", kind)
	}
	return nil
}

func (b *softwareRendererBackendImpl) Present() error {
	if b.passActive {
		return ErrContextActive
	}
	if !b.frameActive {
		return ErrNoFrame
	}
	b.frameActive = false
	frame := image.NewRGBA(b.surface.img.Rect)
	copy(frame.Pix, b.surface.img.Pix)
	b.presented = frame
	return nil
}

func (b *softwareRendererBackendImpl) Snapshot() (*image.RGBA, error) {
	if b.presented == nil {
		return nil, ErrNothingPresented
	}
	frame := image.NewRGBA(b.presented.Rect)
	copy(frame.Pix, b.presented.Pix)
	return frame, nil
}

// ReleaseNode is a no-op: the software backend reads node data directly every draw.
func (b *softwareRendererBackendImpl) ReleaseNode(node spatial.Node) {}

func (b *softwareRendererBackendImpl) Release() {
	b.surface = nil
	b.presented = nil
	b.passActive = false
	b.frameActive = false
}

// resolve maps a RenderTarget to the backend's buffer; nil is the surface.
func (b *softwareRendererBackendImpl) resolve(t RenderTarget) (*softwareTarget, error) {
	if t == nil {
		if b.surface == nil {
			return nil, fmt.Errorf("surface not configured")
		}
		return b.surface, nil
	}
	st, ok := t.(*softwareTarget)
	if !ok {
		return nil, fmt.Errorf("target %s was not created by the software backend", t.Label())
	}
	if st.img.Rect.Empty() {
		return nil, fmt.Errorf("target %s was released", st.label)
	}
	return st, nil
}

// parallelRows runs fn over [0, height) in bands of rowsPerTask rows on the worker pool
// and blocks until every band is done.
func (b *softwareRendererBackendImpl) parallelRows(height int, fn func(y0, y1 int)) {
	if b.pool == nil || height <= rowsPerTask {
		fn(0, height)
		return
	}
	var wg sync.WaitGroup
	for y := 0; y < height; y += rowsPerTask {
		y0, y1 := y, min(y+rowsPerTask, height)
		wg.Add(1)
		b.pool.SubmitTask(worker.Task{
			ID: y0,
			Do: func() (any, error) {
				defer wg.Done()
				fn(y0, y1)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// fill sets every pixel of img to c.
func fill(img *image.RGBA, c common.Color) {
	px := c.RGBA()
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = px.R
		img.Pix[i+1] = px.G
		img.Pix[i+2] = px.B
		img.Pix[i+3] = px.A
	}
}
