package renderer

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Rec. 709 luma weights.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// extract resamples src to the size of dst and keeps only pixels whose luminance is
// above threshold; the rest become opaque black.
func (b *softwareRendererBackendImpl) extract(src, dst *image.RGBA, threshold float32) {
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	cut := threshold * 255
	width := dst.Rect.Dx()
	b.parallelRows(dst.Rect.Dy(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
			for i := 0; i < len(row); i += 4 {
				lum := lumaR*float32(row[i]) + lumaG*float32(row[i+1]) + lumaB*float32(row[i+2])
				if lum <= cut {
					row[i], row[i+1], row[i+2] = 0, 0, 0
				}
				row[i+3] = 255
			}
		}
	})
}

// blur convolves src with the symmetric kernel along one axis into dst, clamping
// samples to the edge.
func (b *softwareRendererBackendImpl) blur(src, dst *image.RGBA, kernel []float32, horizontal bool) error {
	if src.Rect.Size() != dst.Rect.Size() {
		return fmt.Errorf("blur input %v and output %v differ in size", src.Rect.Size(), dst.Rect.Size())
	}
	if len(kernel) == 0 {
		kernel = []float32{1}
	}
	width, height := src.Rect.Dx(), src.Rect.Dy()
	radius := len(kernel) - 1

	b.parallelRows(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				var sum [3]float32
				for k := -radius; k <= radius; k++ {
					sx, sy := x, y
					if horizontal {
						sx = min(max(x+k, 0), width-1)
					} else {
						sy = min(max(y+k, 0), height-1)
					}
					w := kernel[absInt(k)]
					o := sy*src.Stride + sx*4
					sum[0] += float32(src.Pix[o]) * w
					sum[1] += float32(src.Pix[o+1]) * w
					sum[2] += float32(src.Pix[o+2]) * w
				}
				o := y*dst.Stride + x*4
				dst.Pix[o] = toByte(sum[0])
				dst.Pix[o+1] = toByte(sum[1])
				dst.Pix[o+2] = toByte(sum[2])
				dst.Pix[o+3] = 255
			}
		}
	})
	return nil
}

// composite writes base + bloom*intensity into dst. Inputs are resampled to the size
// of dst when they differ; the bloom buffer is upscaled with Catmull-Rom to avoid
// blocky halos.
func (b *softwareRendererBackendImpl) composite(base, bloom, dst *image.RGBA, intensity float32) {
	if base.Rect.Size() != dst.Rect.Size() {
		scaled := image.NewRGBA(dst.Rect)
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), base, base.Bounds(), xdraw.Src, nil)
		base = scaled
	}
	glow := bloom
	if bloom.Rect.Size() != dst.Rect.Size() {
		glow = image.NewRGBA(dst.Rect)
		xdraw.CatmullRom.Scale(glow, glow.Bounds(), bloom, bloom.Bounds(), xdraw.Src, nil)
	}

	width := dst.Rect.Dx()
	b.parallelRows(dst.Rect.Dy(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				bo := y*base.Stride + x*4
				gl := y*glow.Stride + x*4
				do := y*dst.Stride + x*4
				dst.Pix[do] = toByte(float32(base.Pix[bo]) + float32(glow.Pix[gl])*intensity)
				dst.Pix[do+1] = toByte(float32(base.Pix[bo+1]) + float32(glow.Pix[gl+1])*intensity)
				dst.Pix[do+2] = toByte(float32(base.Pix[bo+2]) + float32(glow.Pix[gl+2])*intensity)
				dst.Pix[do+3] = base.Pix[bo+3]
			}
		}
	})
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
