package spatial

// NodeBuilderOption is a functional option for configuring a Node via NewNode.
type NodeBuilderOption func(*node)

// WithLabel is an option builder that sets the label of the Node.
//
// Parameters:
//   - label: the node label used in logs
//
// Returns:
//   - NodeBuilderOption: a function that applies the label option to a node
func WithLabel(label string) NodeBuilderOption {
	return func(n *node) {
		n.label = label
	}
}

// WithMesh is an option builder that sets the geometry of the Node.
//
// Parameters:
//   - m: the mesh
//
// Returns:
//   - NodeBuilderOption: a function that applies the mesh option to a node
func WithMesh(m *Mesh) NodeBuilderOption {
	return func(n *node) {
		n.mesh = m
	}
}

// WithMaterial is an option builder that sets the material of the Node.
// A nil material keeps the default.
//
// Parameters:
//   - m: the material
//
// Returns:
//   - NodeBuilderOption: a function that applies the material option to a node
func WithMaterial(m *Material) NodeBuilderOption {
	return func(n *node) {
		if m != nil {
			n.material = m
		}
	}
}

// WithPosition is an option builder that sets the initial translation.
func WithPosition(p [3]float32) NodeBuilderOption {
	return func(n *node) {
		n.position = p
	}
}

// WithRotation is an option builder that sets the initial Euler rotation in radians.
func WithRotation(r [3]float32) NodeBuilderOption {
	return func(n *node) {
		n.rotation = r
	}
}

// WithScale is an option builder that sets the initial scale.
func WithScale(s [3]float32) NodeBuilderOption {
	return func(n *node) {
		n.scale = s
	}
}
