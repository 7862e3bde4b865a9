package spatial

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/helix-go/common"
)

var (
	ErrMissingMesh    = errors.New("spatial: node has no mesh data")
	ErrMissingTexture = errors.New("spatial: material texture not staged")
	ErrInvalidIndex   = errors.New("spatial: index out of range")
)

// Topology selects how a mesh's indices are assembled into primitives.
type Topology uint8

const (
	// TopologyTriangles assembles every three indices into a triangle.
	TopologyTriangles Topology = iota
	// TopologyLines assembles every two indices into a line segment.
	TopologyLines
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangles:
		return "triangles"
	case TopologyLines:
		return "lines"
	default:
		return fmt.Sprintf("topology(%d)", uint8(t))
	}
}

// stride returns the number of indices per primitive.
func (t Topology) stride() int {
	if t == TopologyLines {
		return 2
	}
	return 3
}

// Vertex is a single mesh vertex as uploaded to the GPU.
// Layout: position (12 bytes), uv (8 bytes), color (16 bytes); 36 bytes, no padding.
type Vertex struct {
	Position [3]float32
	UV       [2]float32
	Color    [4]float32
}

// VertexSize is the byte stride of Vertex in a vertex buffer.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// Mesh is indexed geometry in model space.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Topology Topology
}

// Validate reports whether the mesh can be drawn.
//
// Returns:
//   - error: ErrMissingMesh when empty, ErrInvalidIndex when an index is out of range
//     or the index count does not match the topology
func (m *Mesh) Validate() error {
	if m == nil || len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return ErrMissingMesh
	}
	if len(m.Indices)%m.Topology.stride() != 0 {
		return fmt.Errorf("%w: %d indices is not a multiple of %d for %s",
			ErrInvalidIndex, len(m.Indices), m.Topology.stride(), m.Topology)
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("%w: indices[%d]=%d with %d vertices", ErrInvalidIndex, i, idx, len(m.Vertices))
		}
	}
	return nil
}

// VertexBytes returns the vertex data as raw bytes for upload.
func (m *Mesh) VertexBytes() []byte {
	return common.SliceToBytes(m.Vertices)
}

// IndexBytes returns the index data as raw bytes for upload.
func (m *Mesh) IndexBytes() []byte {
	return common.SliceToBytes(m.Indices)
}

// MeshBuilder accumulates primitives of a single topology.
type MeshBuilder struct {
	mesh  Mesh
	color common.Color
}

// NewMeshBuilder starts a mesh with the given topology and opaque white vertex color.
func NewMeshBuilder(topology Topology) *MeshBuilder {
	return &MeshBuilder{
		mesh:  Mesh{Topology: topology},
		color: common.ColorWhite,
	}
}

// SetColor sets the vertex color applied to subsequently added primitives.
func (b *MeshBuilder) SetColor(c common.Color) *MeshBuilder {
	b.color = c
	return b
}

func (b *MeshBuilder) vertex(p [3]float32, uv [2]float32) uint32 {
	b.mesh.Vertices = append(b.mesh.Vertices, Vertex{Position: p, UV: uv, Color: b.color.Vec4()})
	return uint32(len(b.mesh.Vertices) - 1)
}

// Line adds a segment from a to b. Ignored on a triangle builder.
func (b *MeshBuilder) Line(from, to [3]float32) *MeshBuilder {
	if b.mesh.Topology != TopologyLines {
		return b
	}
	i0 := b.vertex(from, [2]float32{0, 0})
	i1 := b.vertex(to, [2]float32{1, 0})
	b.mesh.Indices = append(b.mesh.Indices, i0, i1)
	return b
}

// Quad adds a planar quad from four corners in counter-clockwise order.
// On a line builder the quad outline is added instead.
func (b *MeshBuilder) Quad(p0, p1, p2, p3 [3]float32) *MeshBuilder {
	if b.mesh.Topology == TopologyLines {
		return b.Line(p0, p1).Line(p1, p2).Line(p2, p3).Line(p3, p0)
	}
	i0 := b.vertex(p0, [2]float32{0, 1})
	i1 := b.vertex(p1, [2]float32{1, 1})
	i2 := b.vertex(p2, [2]float32{1, 0})
	i3 := b.vertex(p3, [2]float32{0, 0})
	b.mesh.Indices = append(b.mesh.Indices, i0, i1, i2, i0, i2, i3)
	return b
}

// Build returns the accumulated mesh. The builder must not be reused afterwards.
func (b *MeshBuilder) Build() *Mesh {
	m := b.mesh
	return &m
}
