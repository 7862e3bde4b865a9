package postprocess

import (
	"math"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/helix-go/engine/renderer"
)

var (
	kernelMu    sync.Mutex
	kernelCache = map[int][]float32{}
)

// GaussianKernel returns the half kernel of a normalized one-dimensional Gaussian:
// element 0 is the center weight and element i the weight of both taps at distance i,
// so k[0] + 2*sum(k[1:]) == 1. Sigma is half the radius. The kernel never exceeds
// renderer.MaxKernelTaps; a radius of 0 yields the identity kernel.
//
// Parameters:
//   - radius: the blur radius in pixels
//
// Returns:
//   - []float32: a copy of the cached kernel
func GaussianKernel(radius float32) []float32 {
	if radius <= 0 || math.IsNaN(float64(radius)) {
		return []float32{1}
	}
	key := int(radius * 100)

	kernelMu.Lock()
	defer kernelMu.Unlock()
	if k, ok := kernelCache[key]; ok {
		return slices.Clone(k)
	}

	taps := min(int(math.Ceil(float64(radius)))+1, renderer.MaxKernelTaps)
	sigma := max(float64(radius)/2, 0.5)

	weights := make([]float64, taps)
	total := 0.0
	for i := range weights {
		weights[i] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
		if i == 0 {
			total += weights[i]
		} else {
			total += 2 * weights[i]
		}
	}
	k := make([]float32, taps)
	for i, w := range weights {
		k[i] = float32(w / total)
	}

	kernelCache[key] = k
	return slices.Clone(k)
}
