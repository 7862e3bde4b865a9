// Package spatial holds renderable node data: geometry, surface material and
// transform. Nodes are plain data; GPU resources derived from them live in the
// renderer backends.
package spatial

import (
	"fmt"

	"github.com/Carmen-Shannon/helix-go/common"
)

// node is the implementation of the Node interface.
type node struct {
	label    string
	mesh     *Mesh
	material *Material

	position [3]float32
	rotation [3]float32
	scale    [3]float32

	model      [16]float32
	modelDirty bool
	version    uint64
}

// Node defines the interface for a renderable scene node.
// A Node is owned by the SpatialForm component of an entity; the render cache
// only references it.
type Node interface {
	// Label returns a human readable name used in logs.
	//
	// Returns:
	//   - string: the node label
	Label() string

	// Mesh returns the node geometry, or nil if not yet populated.
	//
	// Returns:
	//   - *Mesh: the mesh or nil
	Mesh() *Mesh

	// Material returns the node material. Never nil.
	//
	// Returns:
	//   - *Material: the material
	Material() *Material

	// SetMesh replaces the node geometry and bumps the version.
	//
	// Parameters:
	//   - m: the new mesh
	SetMesh(m *Mesh)

	// SetMaterial replaces the node material and bumps the version. A nil material
	// resets to the default material.
	//
	// Parameters:
	//   - m: the new material
	SetMaterial(m *Material)

	// Position returns the world translation.
	Position() [3]float32

	// Rotation returns the Euler rotation in radians.
	Rotation() [3]float32

	// Scale returns the per-axis scale.
	Scale() [3]float32

	// SetPosition sets the world translation.
	SetPosition(p [3]float32)

	// SetRotation sets the Euler rotation in radians.
	SetRotation(r [3]float32)

	// SetScale sets the per-axis scale.
	SetScale(s [3]float32)

	// SetOpacity sets the material opacity, clamped to [0, 1].
	SetOpacity(a float32)

	// ModelMatrix returns the column-major model matrix for the current transform.
	//
	// Returns:
	//   - [16]float32: the model matrix
	ModelMatrix() [16]float32

	// Version increases whenever geometry or material change, so backends can
	// tell when uploaded resources are stale.
	//
	// Returns:
	//   - uint64: the content version
	Version() uint64

	// Validate reports why the node cannot be drawn, if anything.
	//
	// Returns:
	//   - error: ErrMissingMesh, ErrInvalidIndex or ErrMissingTexture, wrapped with the label
	Validate() error
}

var _ Node = &node{}

// NewNode creates a new Node with the given options applied.
// Without options the node has no mesh, the default material and an identity transform.
//
// Parameters:
//   - options: a variadic list of NodeBuilderOption functions to configure the Node
//
// Returns:
//   - Node: the configured node
func NewNode(options ...NodeBuilderOption) Node {
	n := &node{
		material:   DefaultMaterial(),
		scale:      [3]float32{1, 1, 1},
		modelDirty: true,
		version:    1,
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

func (n *node) Label() string {
	return n.label
}

func (n *node) Mesh() *Mesh {
	return n.mesh
}

func (n *node) Material() *Material {
	return n.material
}

func (n *node) SetMesh(m *Mesh) {
	n.mesh = m
	n.version++
}

func (n *node) SetMaterial(m *Material) {
	if m == nil {
		m = DefaultMaterial()
	}
	n.material = m
	n.version++
}

func (n *node) Position() [3]float32 { return n.position }
func (n *node) Rotation() [3]float32 { return n.rotation }
func (n *node) Scale() [3]float32    { return n.scale }

func (n *node) SetPosition(p [3]float32) {
	n.position = p
	n.modelDirty = true
}

func (n *node) SetRotation(r [3]float32) {
	n.rotation = r
	n.modelDirty = true
}

func (n *node) SetScale(s [3]float32) {
	n.scale = s
	n.modelDirty = true
}

func (n *node) SetOpacity(a float32) {
	n.material.Opacity = common.Clamp(a, 0, 1)
}

func (n *node) ModelMatrix() [16]float32 {
	if n.modelDirty {
		common.BuildModelMatrix(n.model[:], n.position, n.rotation, n.scale)
		n.modelDirty = false
	}
	return n.model
}

func (n *node) Version() uint64 {
	return n.version
}

func (n *node) Validate() error {
	if err := n.mesh.Validate(); err != nil {
		return fmt.Errorf("node %q: %w", n.label, err)
	}
	if err := n.material.Validate(); err != nil {
		return fmt.Errorf("node %q: %w", n.label, err)
	}
	return nil
}
