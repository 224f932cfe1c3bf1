package segmentation

import (
	"fmt"
	"math"
	"sort"

	"cellquant/internal/models"
)

// Seed is a single pixel designated as the unique interior point of one
// future object. ID is the 1-based insertion order, which downstream
// stages use to break assignment ties.
type Seed struct {
	ID int
	X  int
	Y  int

	// Intensity is the smoothed plane value at the seed pixel.
	Intensity float64
}

// SeedDetector finds candidate object seeds on a single probability plane:
// Gaussian smoothing, global thresholding and local-maxima suppression
// with a minimum seed separation.
type SeedDetector struct {
	// SmoothSigma is the Gaussian standard deviation applied before
	// maxima detection. Zero disables smoothing.
	SmoothSigma float64

	// MinDistance is the minimum Euclidean separation between accepted
	// seeds, in pixels.
	MinDistance float64

	// Threshold defines the foreground region; maxima outside it are
	// never accepted.
	Threshold *ThresholdPolicy
}

// NewSeedDetector validates and returns a seed detector.
func NewSeedDetector(sigma, minDistance float64, threshold *ThresholdPolicy) (*SeedDetector, error) {
	if minDistance < 0 {
		return nil, fmt.Errorf("%w: negative minimum seed distance %g", models.ErrConfiguration, minDistance)
	}
	if threshold == nil {
		return nil, fmt.Errorf("%w: seed detector requires a threshold policy", models.ErrConfiguration)
	}
	return &SeedDetector{SmoothSigma: sigma, MinDistance: minDistance, Threshold: threshold}, nil
}

// Detect returns the accepted seeds and the binary foreground mask for a
// row-major plane. Candidate maxima are visited in order of decreasing
// intensity, raster order within equal intensities, and a candidate is
// rejected if an already accepted seed lies within MinDistance. An
// all-zero plane yields zero seeds and an empty foreground mask.
func (d *SeedDetector) Detect(plane []float64, width, height int) ([]Seed, []bool) {
	smoothed := GaussianSmooth(plane, width, height, d.SmoothSigma)
	foreground := d.Threshold.Foreground(smoothed)

	radius := int(math.Ceil(d.MinDistance))
	if radius < 1 {
		radius = 1
	}

	// Collect local maxima inside the foreground. A pixel is a candidate
	// when no pixel in the surrounding window exceeds it.
	candidates := make([]int, 0, 64)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !foreground[idx] {
				continue
			}
			v := smoothed[idx]
			isMax := true
			for dy := -radius; dy <= radius && isMax; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width || (dx == 0 && dy == 0) {
						continue
					}
					if smoothed[ny*width+nx] > v {
						isMax = false
						break
					}
				}
			}
			if isMax {
				candidates = append(candidates, idx)
			}
		}
	}

	// Stronger maxima first; raster order breaks intensity ties so plateau
	// maxima collapse onto their first pixel.
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, vj := smoothed[candidates[i]], smoothed[candidates[j]]
		if vi != vj {
			return vi > vj
		}
		return candidates[i] < candidates[j]
	})

	minDistSq := d.MinDistance * d.MinDistance
	seeds := make([]Seed, 0, len(candidates))
	for _, idx := range candidates {
		x, y := idx%width, idx/width
		ok := true
		for _, s := range seeds {
			dx, dy := float64(x-s.X), float64(y-s.Y)
			if dx*dx+dy*dy <= minDistSq {
				ok = false
				break
			}
		}
		if ok {
			seeds = append(seeds, Seed{
				ID:        len(seeds) + 1,
				X:         x,
				Y:         y,
				Intensity: smoothed[idx],
			})
		}
	}
	return seeds, foreground
}
