package segmentation

import (
	"fmt"
	"math"

	"cellquant/internal/models"
)

// Grower expands primary objects outward into a guidance intensity image,
// producing the final cell mask. Expansion is a multi-source weighted
// shortest-path flood fill: pixels are claimed in order of increasing
// propagation cost, a weighted combination of Euclidean distance from the
// nearest object pixel and the cumulative intensity discontinuity crossed.
type Grower struct {
	// MaxDistance bounds the cumulative Euclidean expansion from the
	// primary object, in pixels. Zero keeps the primary footprint as is.
	MaxDistance float64

	// Regularization balances distance against intensity guidance: the
	// cost of one step is Regularization*stepLength plus the absolute
	// intensity difference across the step. Large values approach pure
	// distance propagation.
	Regularization float64

	// Threshold defines the outer growth boundary on the guidance image;
	// pixels at or below the threshold are never claimed.
	Threshold *ThresholdPolicy
}

// NewGrower validates and returns a grower.
func NewGrower(maxDistance, regularization float64, threshold *ThresholdPolicy) (*Grower, error) {
	if maxDistance < 0 {
		return nil, fmt.Errorf("%w: negative maximum expansion distance %g", models.ErrConfiguration, maxDistance)
	}
	if regularization < 0 {
		return nil, fmt.Errorf("%w: negative regularization factor %g", models.ErrConfiguration, regularization)
	}
	if threshold == nil {
		return nil, fmt.Errorf("%w: grower requires a threshold policy", models.ErrConfiguration)
	}
	return &Grower{MaxDistance: maxDistance, Regularization: regularization, Threshold: threshold}, nil
}

// Grow returns a mask in which each primary object's footprint is a
// superset of its input footprint. Growth stops at the maximum expansion
// distance, at the guidance threshold boundary, and where a competing
// object has claimed territory at strictly lower cost; cost ties go to the
// lower object id. A primary pixel is never reassigned or released, so
// labels present in the input are present in the output.
func (g *Grower) Grow(primary *models.LabelMask, guidance []float64) (*models.LabelMask, error) {
	if len(guidance) != primary.Width*primary.Height {
		return nil, fmt.Errorf("%w: guidance plane has %d pixels, mask is %dx%d",
			models.ErrShapeMismatch, len(guidance), primary.Width, primary.Height)
	}

	grown := primary.Clone()
	threshold := g.Threshold.Compute(guidance)
	allowed := make([]bool, len(guidance))
	for i, v := range guidance {
		allowed[i] = v > threshold
	}

	cost := func(from, to int, stepLen float64) float64 {
		return g.Regularization*stepLen + math.Abs(guidance[to]-guidance[from])
	}
	propagate(grown.Data, allowed, primary.Width, primary.Height, cost, g.MaxDistance)
	return grown, nil
}
