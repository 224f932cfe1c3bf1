// Package measure turns a final label mask and its intensity image into
// tabular and graph representations: per-cell feature tables, pairwise
// cell distance matrices and spatial neighborhood graphs.
//
// The background label 0 is never measured: it appears in no table row,
// no matrix axis and no graph edge.
package measure

import (
	"math"

	"cellquant/internal/models"
)

// Props holds the shape descriptors of one labeled object, derived from
// its pixel set alone. Centroid components follow the row/column
// convention (0 = y, 1 = x).
type Props struct {
	Label     int
	Area      float64
	Centroid0 float64
	Centroid1 float64

	// Bounding box, inclusive pixel coordinates.
	MinX, MinY, MaxX, MaxY int

	// Extent is the ratio of the object's area to its bounding box area.
	Extent float64

	// Eccentricity and the axis lengths describe the ellipse with the
	// same second central moments as the pixel set.
	Eccentricity    float64
	MajorAxisLength float64
	MinorAxisLength float64
}

// RegionProps computes shape descriptors for every labeled object in the
// mask, ordered by ascending label. Labels absent from the mask produce no
// entry; an all-background mask produces an empty slice.
func RegionProps(m *models.LabelMask) []Props {
	max := m.MaxLabel()
	if max == 0 {
		return nil
	}

	type acc struct {
		n             float64
		sx, sy        float64
		sxx, syy, sxy float64
		minX, minY    int
		maxX, maxY    int
		present       bool
	}
	accs := make([]acc, max+1)

	for idx, label := range m.Data {
		if label == 0 {
			continue
		}
		x, y := idx%m.Width, idx/m.Width
		a := &accs[label]
		if !a.present {
			a.present = true
			a.minX, a.maxX = x, x
			a.minY, a.maxY = y, y
		}
		fx, fy := float64(x), float64(y)
		a.n++
		a.sx += fx
		a.sy += fy
		a.sxx += fx * fx
		a.syy += fy * fy
		a.sxy += fx * fy
		if x < a.minX {
			a.minX = x
		}
		if x > a.maxX {
			a.maxX = x
		}
		if y < a.minY {
			a.minY = y
		}
		if y > a.maxY {
			a.maxY = y
		}
	}

	props := make([]Props, 0, max)
	for label := 1; label <= max; label++ {
		a := &accs[label]
		if !a.present {
			continue
		}
		cx, cy := a.sx/a.n, a.sy/a.n

		// Normalized second central moments of the pixel set.
		mu20 := a.sxx/a.n - cx*cx
		mu02 := a.syy/a.n - cy*cy
		mu11 := a.sxy/a.n - cx*cy

		// Eigenvalues of the covariance matrix give the moment ellipse.
		common := math.Sqrt(((mu20-mu02)/2)*((mu20-mu02)/2) + mu11*mu11)
		l1 := (mu20+mu02)/2 + common
		l2 := (mu20+mu02)/2 - common
		if l2 < 0 {
			l2 = 0
		}

		ecc := 0.0
		if l1 > 0 {
			ecc = math.Sqrt(1 - l2/l1)
		}

		bboxArea := float64((a.maxX - a.minX + 1) * (a.maxY - a.minY + 1))
		props = append(props, Props{
			Label:           label,
			Area:            a.n,
			Centroid0:       cy,
			Centroid1:       cx,
			MinX:            a.minX,
			MinY:            a.minY,
			MaxX:            a.maxX,
			MaxY:            a.maxY,
			Extent:          a.n / bboxArea,
			Eccentricity:    ecc,
			MajorAxisLength: 4 * math.Sqrt(l1),
			MinorAxisLength: 4 * math.Sqrt(l2),
		})
	}
	return props
}
