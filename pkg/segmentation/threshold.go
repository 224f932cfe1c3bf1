// Package segmentation converts class-probability maps into instance
// segmentations: global thresholding, seed detection, declumping of
// touching objects and constrained secondary-object growth.
//
// All stages operate on flat row-major float64 arrays and are fully
// deterministic: identical inputs produce identical label masks, including
// tie-breaks between touching regions.
package segmentation

import (
	"fmt"
	"math"

	"cellquant/internal/models"
)

// Threshold method names accepted by NewThresholdPolicy.
const (
	ThresholdOtsu   = "otsu"
	ThresholdManual = "manual"
)

const otsuBins = 256

// ThresholdPolicy computes a global foreground threshold for a single
// intensity plane. The computed value is multiplied by the correction
// factor and clamped to [Min, Max].
type ThresholdPolicy struct {
	// Method selects the threshold algorithm: "otsu" computes a histogram
	// based Otsu threshold, "manual" uses Value directly.
	Method string

	// Correction is a multiplicative factor applied to the computed
	// threshold before clamping. 1.0 leaves the threshold unchanged.
	Correction float64

	// Min and Max clamp the corrected threshold.
	Min float64
	Max float64

	// Value is the fixed threshold used by the "manual" method.
	Value float64
}

// NewThresholdPolicy validates and returns a threshold policy.
// Unknown methods and inverted clip bounds are configuration errors.
func NewThresholdPolicy(method string, correction, min, max, value float64) (*ThresholdPolicy, error) {
	switch method {
	case ThresholdOtsu, ThresholdManual:
	default:
		return nil, fmt.Errorf("%w: unknown threshold method %q", models.ErrConfiguration, method)
	}
	if correction < 0 {
		return nil, fmt.Errorf("%w: negative threshold correction %g", models.ErrConfiguration, correction)
	}
	if min > max {
		return nil, fmt.Errorf("%w: threshold clip bounds inverted (%g > %g)", models.ErrConfiguration, min, max)
	}
	return &ThresholdPolicy{
		Method:     method,
		Correction: correction,
		Min:        min,
		Max:        max,
		Value:      value,
	}, nil
}

// Compute returns the global threshold for the given plane. The result is
// derived from a fixed-bin histogram of the plane, so it depends only on
// the value distribution, never on sample order. An all-zero plane yields
// the clamped zero threshold.
func (t *ThresholdPolicy) Compute(plane []float64) float64 {
	var threshold float64
	switch t.Method {
	case ThresholdManual:
		threshold = t.Value
	case ThresholdOtsu:
		threshold = otsuThreshold(plane)
	}
	threshold *= t.Correction
	return math.Min(math.Max(threshold, t.Min), t.Max)
}

// Foreground applies the policy to a plane and returns the binary
// foreground mask. A pixel is foreground when it lies strictly above the
// threshold, so an all-zero plane produces an empty mask.
func (t *ThresholdPolicy) Foreground(plane []float64) []bool {
	threshold := t.Compute(plane)
	fg := make([]bool, len(plane))
	for i, v := range plane {
		fg[i] = v > threshold
	}
	return fg
}

// otsuThreshold computes the classic between-class-variance maximizing
// threshold over a 256-bin histogram spanning the plane's value range.
// Ties between equally good bins resolve to the lowest bin, keeping the
// result deterministic.
func otsuThreshold(plane []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range plane {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if len(plane) == 0 || hi <= lo {
		return lo
	}

	var hist [otsuBins]int
	scale := float64(otsuBins-1) / (hi - lo)
	for _, v := range plane {
		hist[int((v-lo)*scale)]++
	}

	total := len(plane)
	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumBg, wBg float64
	bestVar, bestBin := -1.0, 0
	for i := 0; i < otsuBins; i++ {
		wBg += float64(hist[i])
		if wBg == 0 {
			continue
		}
		wFg := float64(total) - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(i) * float64(hist[i])
		meanBg := sumBg / wBg
		meanFg := (sum - sumBg) / wFg
		between := wBg * wFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			bestBin = i
		}
	}
	return lo + float64(bestBin)/scale
}
