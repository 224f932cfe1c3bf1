// Package mask provides operations on label masks that sit between
// segmentation and measurement: structural validation, size/shape
// filtering with contiguous relabeling, and resolution rescaling.
package mask

import (
	"fmt"

	"cellquant/internal/models"
	"cellquant/pkg/measure"
)

// Filter measurement names.
const (
	MeasureArea         = "area"
	MeasureExtent       = "extent"
	MeasureEccentricity = "eccentricity"
)

// Filter removes objects whose named measurement falls outside inclusive
// bounds and compacts the surviving labels to 1..k. Measurements are
// always recomputed from pixel data, so a filter can be applied to any
// mask regardless of provenance.
type Filter struct {
	Measurement string
	Min         float64
	Max         float64
}

// NewFilter validates and returns a filter.
func NewFilter(measurement string, min, max float64) (*Filter, error) {
	switch measurement {
	case MeasureArea, MeasureExtent, MeasureEccentricity:
	default:
		return nil, fmt.Errorf("%w: unknown filter measurement %q", models.ErrConfiguration, measurement)
	}
	if min > max {
		return nil, fmt.Errorf("%w: filter bounds inverted (%g > %g)", models.ErrConfiguration, min, max)
	}
	return &Filter{Measurement: measurement, Min: min, Max: max}, nil
}

// Apply returns a new mask containing only the objects whose measurement
// lies within [Min, Max]. Surviving labels are renumbered to the
// contiguous range 1..k, preserving the relative ascending order of the
// original ids. A mask with zero survivors is valid output. Applying the
// same filter to its own output is the identity.
func (f *Filter) Apply(m *models.LabelMask) *models.LabelMask {
	props := measure.RegionProps(m)

	remap := make(map[int]int, len(props))
	next := 1
	for _, p := range props {
		var v float64
		switch f.Measurement {
		case MeasureArea:
			v = p.Area
		case MeasureExtent:
			v = p.Extent
		case MeasureEccentricity:
			v = p.Eccentricity
		}
		if v >= f.Min && v <= f.Max {
			remap[p.Label] = next
			next++
		}
	}

	out := models.NewLabelMask(m.Width, m.Height)
	for idx, label := range m.Data {
		if label > 0 {
			out.Data[idx] = remap[label]
		}
	}
	return out
}
