// Package common contains plain value types and helpers shared across the engine.
package common

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// Color is a linear RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

var (
	// ColorRed is opaque red.
	ColorRed = Color{R: 1, A: 1}
	// ColorGreen is opaque green.
	ColorGreen = Color{G: 1, A: 1}
	// ColorBlue is opaque blue.
	ColorBlue = Color{B: 1, A: 1}
	// ColorWhite is opaque white.
	ColorWhite = Color{R: 1, G: 1, B: 1, A: 1}
	// ColorBlack is opaque black.
	ColorBlack = Color{A: 1}
)

// Vec4 returns the color as a 4-component array, the layout used by vertex data.
func (c Color) Vec4() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// Mul returns the component-wise product of two colors.
func (c Color) Mul(o Color) Color {
	return Color{R: c.R * o.R, G: c.G * o.G, B: c.B * o.B, A: c.A * o.A}
}

// RGBA converts the color to an 8-bit non-premultiplied color, clamping each channel.
func (c Color) RGBA() color.NRGBA {
	return color.NRGBA{
		R: uint8(Clamp(c.R, 0, 1)*255 + 0.5),
		G: uint8(Clamp(c.G, 0, 1)*255 + 0.5),
		B: uint8(Clamp(c.B, 0, 1)*255 + 0.5),
		A: uint8(Clamp(c.A, 0, 1)*255 + 0.5),
	}
}

// Viewport is a pixel rectangle on a render target.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// Empty reports whether the viewport covers no pixels.
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is tightly packed RGBA8 data, row-major, 4 bytes per pixel.
	Pixels []byte
	Width  uint32
	Height uint32
}

// Valid reports whether the pixel buffer matches the declared dimensions.
func (t *TextureStagingData) Valid() bool {
	return t != nil && t.Width > 0 && t.Height > 0 && len(t.Pixels) == int(t.Width*t.Height*4)
}

// At returns the texel nearest to the normalized coordinate (u, v), wrapping
// coordinates outside [0, 1].
func (t *TextureStagingData) At(u, v float32) Color {
	x := int(wrapUnit(u)*float32(t.Width)) % int(t.Width)
	y := int(wrapUnit(v)*float32(t.Height)) % int(t.Height)
	i := (y*int(t.Width) + x) * 4
	return Color{
		R: float32(t.Pixels[i]) / 255,
		G: float32(t.Pixels[i+1]) / 255,
		B: float32(t.Pixels[i+2]) / 255,
		A: float32(t.Pixels[i+3]) / 255,
	}
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// Zero fields fall back to linear filtering with repeat addressing.
type SamplerStagingData struct {
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	MagFilter, MinFilter                     wgpu.FilterMode
	MipmapFilter                             wgpu.MipmapFilterMode
	LodMinClamp, LodMaxClamp                 float32
	MaxAnisotropy                            uint16
}

// DecodeTexture decodes a PNG or JPEG stream into RGBA staging data.
//
// Parameters:
//   - r: the encoded image stream
//
// Returns:
//   - *TextureStagingData: the decoded pixels
//   - error: error if the stream is not a supported image
func DecodeTexture(r io.Reader) (*TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	bounds := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// LoadTexture reads and decodes an image file from disk.
//
// Parameters:
//   - path: the image file path
//
// Returns:
//   - *TextureStagingData: the decoded pixels
//   - error: error if the file cannot be opened or decoded
func LoadTexture(path string) (*TextureStagingData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture %s: %w", path, err)
	}
	defer f.Close()

	tex, err := DecodeTexture(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tex, nil
}

func wrapUnit(v float32) float32 {
	v -= float32(int(v))
	if v < 0 {
		v++
	}
	return v
}
