package spatial

import "github.com/Carmen-Shannon/helix-go/common"

// AxisLength is the length of each line of the axis indicator.
const AxisLength = 100

// BuildAxes builds the fixed axis indicator: three line segments of the given
// length starting at the origin, red along X, green along Y and blue along Z.
//
// Parameters:
//   - length: the length of each axis line
//
// Returns:
//   - Node: the axis node
func BuildAxes(length float32) Node {
	origin := [3]float32{0, 0, 0}
	mesh := NewMeshBuilder(TopologyLines).
		SetColor(common.ColorRed).Line(origin, [3]float32{length, 0, 0}).
		SetColor(common.ColorGreen).Line(origin, [3]float32{0, length, 0}).
		SetColor(common.ColorBlue).Line(origin, [3]float32{0, 0, length}).
		Build()
	return NewNode(WithLabel("axes"), WithMesh(mesh))
}

// NewBox builds an axis-aligned cube of the given edge length centered on the
// node origin, with every face colored c.
func NewBox(size float32, c common.Color, options ...NodeBuilderOption) Node {
	h := size / 2
	p := func(x, y, z float32) [3]float32 { return [3]float32{x * h, y * h, z * h} }

	b := NewMeshBuilder(TopologyTriangles).SetColor(c)
	b.Quad(p(-1, -1, 1), p(1, -1, 1), p(1, 1, 1), p(-1, 1, 1))     // top
	b.Quad(p(-1, 1, -1), p(1, 1, -1), p(1, -1, -1), p(-1, -1, -1)) // bottom
	b.Quad(p(-1, -1, -1), p(1, -1, -1), p(1, -1, 1), p(-1, -1, 1)) // front
	b.Quad(p(1, 1, -1), p(-1, 1, -1), p(-1, 1, 1), p(1, 1, 1))     // back
	b.Quad(p(1, -1, -1), p(1, 1, -1), p(1, 1, 1), p(1, -1, 1))     // right
	b.Quad(p(-1, 1, -1), p(-1, -1, -1), p(-1, -1, 1), p(-1, 1, 1)) // left

	opts := append([]NodeBuilderOption{WithLabel("box"), WithMesh(b.Build())}, options...)
	return NewNode(opts...)
}

// NewQuad builds a flat width x depth plane on z = 0 centered on the node origin,
// the shape used for terrain tiles.
func NewQuad(width, depth float32, c common.Color, options ...NodeBuilderOption) Node {
	w, d := width/2, depth/2
	mesh := NewMeshBuilder(TopologyTriangles).SetColor(c).
		Quad([3]float32{-w, -d, 0}, [3]float32{w, -d, 0}, [3]float32{w, d, 0}, [3]float32{-w, d, 0}).
		Build()
	opts := append([]NodeBuilderOption{WithLabel("quad"), WithMesh(mesh)}, options...)
	return NewNode(opts...)
}
