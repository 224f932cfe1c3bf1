package segmentation

import "math"

// GaussianSmooth convolves a row-major plane with a separable Gaussian
// kernel of the given standard deviation. Borders are handled by clamping
// to the nearest edge pixel, which keeps the response flat on constant
// regions. A sigma of zero or less returns a copy of the input unchanged.
func GaussianSmooth(plane []float64, width, height int, sigma float64) []float64 {
	out := make([]float64, len(plane))
	if sigma <= 0 {
		copy(out, plane)
		return out
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	tmp := make([]float64, len(plane))

	// Horizontal pass.
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k, 0, width-1)
				acc += plane[row+sx] * kernel[k+radius]
			}
			tmp[row+x] = acc
		}
	}

	// Vertical pass.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sy := clampInt(y+k, 0, height-1)
				acc += tmp[sy*width+x] * kernel[k+radius]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

// gaussianKernel builds a normalized 1-D Gaussian kernel truncated at
// three standard deviations.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
