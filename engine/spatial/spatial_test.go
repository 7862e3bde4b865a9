package spatial

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/helix-go/common"
)

func TestBuildAxes(t *testing.T) {
	axes := BuildAxes(AxisLength)
	m := axes.Mesh()
	if err := axes.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.Topology != TopologyLines {
		t.Fatalf("topology = %v", m.Topology)
	}
	if len(m.Indices) != 6 {
		t.Fatalf("indices = %d, want 3 lines", len(m.Indices))
	}

	want := []struct {
		end   [3]float32
		color common.Color
	}{
		{[3]float32{100, 0, 0}, common.ColorRed},
		{[3]float32{0, 100, 0}, common.ColorGreen},
		{[3]float32{0, 0, 100}, common.ColorBlue},
	}
	for i, w := range want {
		from := m.Vertices[m.Indices[i*2]]
		to := m.Vertices[m.Indices[i*2+1]]
		if from.Position != [3]float32{} {
			t.Errorf("line %d starts at %v", i, from.Position)
		}
		if to.Position != w.end {
			t.Errorf("line %d ends at %v, want %v", i, to.Position, w.end)
		}
		if from.Color != w.color.Vec4() || to.Color != w.color.Vec4() {
			t.Errorf("line %d color = %v/%v, want %v", i, from.Color, to.Color, w.color)
		}
	}
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want error
	}{
		{"box", NewBox(1, common.ColorWhite), nil},
		{"quad", NewQuad(2, 2, common.ColorGreen), nil},
		{"no mesh", NewNode(WithLabel("empty")), ErrMissingMesh},
		{"bad index", NewNode(WithMesh(&Mesh{
			Vertices: []Vertex{{}, {}, {}},
			Indices:  []uint32{0, 1, 5},
		})), ErrInvalidIndex},
		{"ragged lines", NewNode(WithMesh(&Mesh{
			Vertices: []Vertex{{}, {}},
			Indices:  []uint32{0, 1, 1},
			Topology: TopologyLines,
		})), ErrInvalidIndex},
		{"texture not staged", NewBox(1, common.ColorWhite, WithMaterial(&Material{
			BaseColor:   common.ColorWhite,
			Opacity:     1,
			TextureName: "grass.png",
		})), ErrMissingTexture},
		{"texture staged", NewBox(1, common.ColorWhite, WithMaterial(&Material{
			BaseColor:   common.ColorWhite,
			Opacity:     1,
			TextureName: "white",
			Texture:     &common.TextureStagingData{Pixels: []byte{255, 255, 255, 255}, Width: 1, Height: 1},
		})), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNodeModelMatrixTracksTransform(t *testing.T) {
	n := NewNode()
	m := n.ModelMatrix()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 || m[12] != 0 {
		t.Fatalf("default transform not identity: %v", m)
	}
	n.SetPosition([3]float32{1, 2, 3})
	n.SetScale([3]float32{2, 2, 2})
	m = n.ModelMatrix()
	if m[12] != 1 || m[13] != 2 || m[14] != 3 {
		t.Errorf("translation = %v", m[12:15])
	}
	if m[0] != 2 || m[5] != 2 || m[10] != 2 {
		t.Errorf("scale diagonal = %v %v %v", m[0], m[5], m[10])
	}
}

func TestNodeVersionAndOpacity(t *testing.T) {
	n := NewBox(1, common.ColorWhite)
	v := n.Version()
	n.SetMaterial(nil)
	if n.Version() == v {
		t.Fatal("SetMaterial did not bump version")
	}
	if n.Material() == nil {
		t.Fatal("nil material not replaced by default")
	}
	n.SetOpacity(1.5)
	if n.Material().Opacity != 1 {
		t.Fatalf("opacity = %v, want clamped 1", n.Material().Opacity)
	}
	n.SetOpacity(0.25)
	if !n.Material().Translucent() {
		t.Fatal("material with opacity 0.25 should be translucent")
	}
}

func TestVertexLayout(t *testing.T) {
	if VertexSize != 36 {
		t.Fatalf("VertexSize = %d, want 36", VertexSize)
	}
	m := NewQuad(1, 1, common.ColorWhite).Mesh()
	if got := len(m.VertexBytes()); got != len(m.Vertices)*VertexSize {
		t.Fatalf("vertex bytes = %d", got)
	}
	if got := len(m.IndexBytes()); got != len(m.Indices)*4 {
		t.Fatalf("index bytes = %d", got)
	}
}
