package renderer

import (
	"image"
	"math"

	"github.com/Carmen-Shannon/helix-go/common"
)

// minClipW is the smallest clip-space w a vertex may have before it is treated as
// behind the eye.
const minClipW = 1e-5

// clipVertex holds a vertex transformed to clip space.
type clipVertex struct {
	pos   [4]float32
	uv    [2]float32
	color [4]float32
}

// screenVertex holds a vertex after the perspective divide and viewport transform.
type screenVertex struct {
	x, y, z float32 // pixel coordinates and [0,1] depth
	invW    float32 // 1/w, for perspective-correct interpolation
	uv      [2]float32
	color   [4]float32
}

// rasterizer draws one node's primitives into a color and depth buffer.
type rasterizer struct {
	img     *image.RGBA
	depth   []float32
	rect    image.Rectangle // viewport, already clipped to img bounds
	blend   BlendMode
	tint    common.Color
	texture *common.TextureStagingData
}

// toScreen maps a clip-space vertex to the viewport.
func (r *rasterizer) toScreen(v clipVertex) screenVertex {
	invW := 1 / v.pos[3]
	ndcX, ndcY, ndcZ := v.pos[0]*invW, v.pos[1]*invW, v.pos[2]*invW
	return screenVertex{
		x:     float32(r.rect.Min.X) + (ndcX+1)*0.5*float32(r.rect.Dx()),
		y:     float32(r.rect.Min.Y) + (1-ndcY)*0.5*float32(r.rect.Dy()), // Y flipped
		z:     ndcZ,
		invW:  invW,
		uv:    v.uv,
		color: v.color,
	}
}

// triangle rasterizes a triangle with perspective-correct attribute interpolation.
// Both windings are drawn. Triangles with a vertex behind the eye are dropped.
func (r *rasterizer) triangle(a, b, c clipVertex) {
	if a.pos[3] < minClipW || b.pos[3] < minClipW || c.pos[3] < minClipW {
		return
	}
	sv := [3]screenVertex{r.toScreen(a), r.toScreen(b), r.toScreen(c)}

	area := edge(sv[0].x, sv[0].y, sv[1].x, sv[1].y, sv[2].x, sv[2].y)
	if float32(math.Abs(float64(area))) < 1e-8 {
		return
	}

	// Find bounding box
	minX := max(r.rect.Min.X, int(math.Floor(float64(min(sv[0].x, sv[1].x, sv[2].x)))))
	maxX := min(r.rect.Max.X-1, int(math.Ceil(float64(max(sv[0].x, sv[1].x, sv[2].x)))))
	minY := max(r.rect.Min.Y, int(math.Floor(float64(min(sv[0].y, sv[1].y, sv[2].y)))))
	maxY := min(r.rect.Max.Y-1, int(math.Ceil(float64(max(sv[0].y, sv[1].y, sv[2].y)))))

	invArea := 1 / area
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float32(x)+0.5, float32(y)+0.5

			// Barycentric weights; dividing by the signed area accepts either winding
			b0 := edge(sv[1].x, sv[1].y, sv[2].x, sv[2].y, px, py) * invArea
			b1 := edge(sv[2].x, sv[2].y, sv[0].x, sv[0].y, px, py) * invArea
			b2 := edge(sv[0].x, sv[0].y, sv[1].x, sv[1].y, px, py) * invArea
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}

			// Screen-space depth is affine in NDC z
			z := b0*sv[0].z + b1*sv[1].z + b2*sv[2].z
			if z < 0 || z > 1 {
				continue
			}
			i := (y-r.img.Rect.Min.Y)*r.img.Rect.Dx() + (x - r.img.Rect.Min.X)
			if z >= r.depth[i] {
				continue
			}

			// Perspective-correct attributes
			w0, w1, w2 := b0*sv[0].invW, b1*sv[1].invW, b2*sv[2].invW
			norm := 1 / (w0 + w1 + w2)
			w0, w1, w2 = w0*norm, w1*norm, w2*norm

			col := common.Color{
				R: w0*sv[0].color[0] + w1*sv[1].color[0] + w2*sv[2].color[0],
				G: w0*sv[0].color[1] + w1*sv[1].color[1] + w2*sv[2].color[1],
				B: w0*sv[0].color[2] + w1*sv[1].color[2] + w2*sv[2].color[2],
				A: w0*sv[0].color[3] + w1*sv[1].color[3] + w2*sv[2].color[3],
			}
			if r.texture.Valid() {
				u := w0*sv[0].uv[0] + w1*sv[1].uv[0] + w2*sv[2].uv[0]
				v := w0*sv[0].uv[1] + w1*sv[1].uv[1] + w2*sv[2].uv[1]
				col = col.Mul(r.texture.At(u, v))
			}

			r.depth[i] = z
			r.plot(x, y, col.Mul(r.tint))
		}
	}
}

// line rasterizes a segment with a DDA walk, clipped to w >= minClipW and to the viewport.
func (r *rasterizer) line(a, b clipVertex) {
	if a.pos[3] < minClipW && b.pos[3] < minClipW {
		return
	}
	if a.pos[3] < minClipW {
		a = clipToNear(b, a)
	} else if b.pos[3] < minClipW {
		b = clipToNear(a, b)
	}
	s0, s1 := r.toScreen(a), r.toScreen(b)

	t0, t1, ok := clipSegment(s0.x, s0.y, s1.x, s1.y, r.rect)
	if !ok {
		return
	}
	p0, p1 := lerpScreen(s0, s1, t0), lerpScreen(s0, s1, t1)

	steps := int(math.Ceil(float64(max(abs32(p1.x-p0.x), abs32(p1.y-p0.y)))))
	if steps < 1 {
		steps = 1
	}
	for s := 0; s <= steps; s++ {
		v := lerpScreen(p0, p1, float32(s)/float32(steps))
		x, y := int(math.Floor(float64(v.x))), int(math.Floor(float64(v.y)))
		if !(image.Point{X: x, Y: y}).In(r.rect) || v.z < 0 || v.z > 1 {
			continue
		}
		i := (y-r.img.Rect.Min.Y)*r.img.Rect.Dx() + (x - r.img.Rect.Min.X)
		if v.z >= r.depth[i] {
			continue
		}
		r.depth[i] = v.z
		col := common.Color{R: v.color[0], G: v.color[1], B: v.color[2], A: v.color[3]}
		r.plot(x, y, col.Mul(r.tint))
	}
}

// plot blends c into the pixel at (x, y).
func (r *rasterizer) plot(x, y int, c common.Color) {
	o := r.img.PixOffset(x, y)
	px := r.img.Pix[o : o+4 : o+4]
	dst := common.Color{
		R: float32(px[0]) / 255,
		G: float32(px[1]) / 255,
		B: float32(px[2]) / 255,
		A: float32(px[3]) / 255,
	}
	var out common.Color
	switch r.blend {
	case BlendAlpha:
		a := common.Clamp(c.A, 0, 1)
		out = common.Color{
			R: c.R*a + dst.R*(1-a),
			G: c.G*a + dst.G*(1-a),
			B: c.B*a + dst.B*(1-a),
			A: a + dst.A*(1-a),
		}
	case BlendAdditive:
		out = common.Color{R: dst.R + c.R, G: dst.G + c.G, B: dst.B + c.B, A: dst.A + c.A}
	default:
		out = c
	}
	n := out.RGBA()
	px[0], px[1], px[2], px[3] = n.R, n.G, n.B, n.A
}

// edge is the signed doubled area of (a, b, p).
func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// clipToNear moves the behind-the-eye endpoint out onto the w = minClipW plane.
func clipToNear(in, out clipVertex) clipVertex {
	t := (in.pos[3] - minClipW) / (in.pos[3] - out.pos[3])
	var v clipVertex
	for i := range v.pos {
		v.pos[i] = in.pos[i] + (out.pos[i]-in.pos[i])*t
	}
	for i := range v.uv {
		v.uv[i] = in.uv[i] + (out.uv[i]-in.uv[i])*t
	}
	for i := range v.color {
		v.color[i] = in.color[i] + (out.color[i]-in.color[i])*t
	}
	return v
}

// clipSegment clips the segment (x0,y0)-(x1,y1) to rect (Liang-Barsky) and returns the
// parametric range that remains.
func clipSegment(x0, y0, x1, y1 float32, rect image.Rectangle) (t0, t1 float32, ok bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 = 0, 1
	p := [4]float32{-dx, dx, -dy, dy}
	q := [4]float32{
		x0 - float32(rect.Min.X),
		float32(rect.Max.X) - x0,
		y0 - float32(rect.Min.Y),
		float32(rect.Max.Y) - y0,
	}
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return 0, 0, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			t0 = max(t0, t)
		} else {
			t1 = min(t1, t)
		}
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

func lerpScreen(a, b screenVertex, t float32) screenVertex {
	v := screenVertex{
		x:    a.x + (b.x-a.x)*t,
		y:    a.y + (b.y-a.y)*t,
		z:    a.z + (b.z-a.z)*t,
		invW: a.invW + (b.invW-a.invW)*t,
	}
	for i := range v.color {
		v.color[i] = a.color[i] + (b.color[i]-a.color[i])*t
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
