package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cellquant/internal/models"
)

// Distance kinds accepted by Distances.
const (
	DistanceCentroid = "centroid"
	DistanceBoundary = "boundary"
)

// Distances computes the pairwise distance matrix between every unordered
// pair of distinct cells in the mask. The representative point per cell is
// either the centroid or, for the boundary kind, the nearest pair of
// boundary pixels of the two objects. The returned ids are ascending cell
// labels indexing both matrix axes; the diagonal is zero and the matrix is
// symmetric by construction.
//
// A mask without objects returns empty ids and a nil matrix; this is the
// well-defined zero-cell output, not an error.
func Distances(m *models.LabelMask, kind string) ([]int, *mat.SymDense, error) {
	switch kind {
	case DistanceCentroid, DistanceBoundary:
	default:
		return nil, nil, fmt.Errorf("%w: unknown distance kind %q", models.ErrConfiguration, kind)
	}

	props := RegionProps(m)
	if len(props) == 0 {
		return nil, nil, nil
	}
	ids := make([]int, len(props))
	for i, p := range props {
		ids[i] = p.Label
	}

	d := mat.NewSymDense(len(props), nil)
	switch kind {
	case DistanceCentroid:
		for i := range props {
			for j := i + 1; j < len(props); j++ {
				dy := props[i].Centroid0 - props[j].Centroid0
				dx := props[i].Centroid1 - props[j].Centroid1
				d.SetSym(i, j, math.Hypot(dx, dy))
			}
		}
	case DistanceBoundary:
		boundaries := boundaryPixels(m, ids)
		for i := range props {
			for j := i + 1; j < len(props); j++ {
				d.SetSym(i, j, minBoundaryDistance(boundaries[ids[i]], boundaries[ids[j]], m.Width))
			}
		}
	}
	return ids, d, nil
}

// boundaryPixels returns, per label, the pixel indices that touch the
// background, another object, or the image border under 4-connectivity.
func boundaryPixels(m *models.LabelMask, ids []int) map[int][]int {
	out := make(map[int][]int, len(ids))
	for idx, label := range m.Data {
		if label == 0 {
			continue
		}
		x, y := idx%m.Width, idx/m.Width
		boundary := x == 0 || y == 0 || x == m.Width-1 || y == m.Height-1
		if !boundary {
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				if m.Data[(y+d[1])*m.Width+x+d[0]] != label {
					boundary = true
					break
				}
			}
		}
		if boundary {
			out[label] = append(out[label], idx)
		}
	}
	return out
}

func minBoundaryDistance(a, b []int, width int) float64 {
	min := math.Inf(1)
	for _, ia := range a {
		ax, ay := ia%width, ia/width
		for _, ib := range b {
			dx, dy := float64(ax-ib%width), float64(ay-ib/width)
			if d := dx*dx + dy*dy; d < min {
				min = d
			}
		}
	}
	return math.Sqrt(min)
}
