package spatial

import (
	"fmt"

	"github.com/Carmen-Shannon/helix-go/common"
)

// Material is the surface description of a node: a base color multiplied with the
// vertex colors, a global opacity and an optional texture.
type Material struct {
	Name      string
	BaseColor common.Color
	Opacity   float32

	// TextureName names the texture the material samples. A material that names a
	// texture without staged pixels cannot be drawn.
	TextureName string
	Texture     *common.TextureStagingData
}

// DefaultMaterial returns an opaque white untextured material.
func DefaultMaterial() *Material {
	return &Material{Name: "default", BaseColor: common.ColorWhite, Opacity: 1}
}

// Tint returns the color the shader multiplies into every fragment.
func (m *Material) Tint() common.Color {
	if m == nil {
		return common.ColorWhite
	}
	c := m.BaseColor
	c.A *= m.Opacity
	return c
}

// Translucent reports whether fragments of this material need blending.
func (m *Material) Translucent() bool {
	return m.Tint().A < 1
}

// Validate reports a texture that is named but not available.
func (m *Material) Validate() error {
	if m == nil || m.TextureName == "" {
		return nil
	}
	if !m.Texture.Valid() {
		return fmt.Errorf("%w: %q", ErrMissingTexture, m.TextureName)
	}
	return nil
}
