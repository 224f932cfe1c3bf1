package measure

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cellquant/internal/models"
)

// Shape feature column names, following the regionprops convention.
var shapeColumns = []string{
	"area",
	"centroid-0",
	"centroid-1",
	"eccentricity",
	"extent",
	"axis_major_length",
	"axis_minor_length",
}

// Intensity statistic names; each is crossed with every channel name to
// form one column, e.g. "mean_CD45".
var intensityStats = []string{"mean", "sum", "std", "min", "max", "median"}

// FeatureTable maps cell ids to named scalar features. Rows are ordered by
// ascending cell id and every positive label of the source mask has
// exactly one row.
type FeatureTable struct {
	IDs     []int
	Columns []string

	// Rows[i] holds the values for IDs[i], one per column.
	Rows [][]float64
}

// Empty reports whether the table has no rows.
func (t *FeatureTable) Empty() bool { return len(t.IDs) == 0 }

// BuildFeatures computes the per-cell feature table for a mask. Shape
// descriptors are always included; when img is non-nil, per-channel
// intensity statistics are computed over exactly each cell's pixel set.
// A mask without objects yields a table with columns but no rows.
func BuildFeatures(m *models.LabelMask, img *models.ChannelImage) (*FeatureTable, error) {
	if img != nil && !m.SameShape(img.Width, img.Height) {
		return nil, fmt.Errorf("%w: mask is %dx%d, image is %dx%d",
			models.ErrShapeMismatch, m.Width, m.Height, img.Width, img.Height)
	}

	columns := append([]string(nil), shapeColumns...)
	if img != nil {
		for _, s := range intensityStats {
			for c := 0; c < img.Channels; c++ {
				name := img.Names[c]
				if name == "" {
					name = fmt.Sprintf("channel%d", c+1)
				}
				columns = append(columns, s+"_"+name)
			}
		}
	}

	props := RegionProps(m)
	table := &FeatureTable{
		IDs:     make([]int, 0, len(props)),
		Columns: columns,
		Rows:    make([][]float64, 0, len(props)),
	}
	if len(props) == 0 {
		return table, nil
	}

	// Gather each cell's pixel indices once; intensity statistics reuse
	// them for every channel.
	var pixels map[int][]int
	if img != nil {
		pixels = make(map[int][]int, len(props))
		for idx, label := range m.Data {
			if label > 0 {
				pixels[label] = append(pixels[label], idx)
			}
		}
	}

	for _, p := range props {
		row := make([]float64, 0, len(columns))
		row = append(row,
			p.Area, p.Centroid0, p.Centroid1, p.Eccentricity, p.Extent,
			p.MajorAxisLength, p.MinorAxisLength)
		if img != nil {
			row = append(row, intensityRow(img, pixels[p.Label])...)
		}
		table.IDs = append(table.IDs, p.Label)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// intensityRow computes all intensity statistics for one cell, ordered
// statistic-major then channel, matching the column layout.
func intensityRow(img *models.ChannelImage, pixels []int) []float64 {
	type chanStats struct{ mean, sum, std, min, max, median float64 }
	stats := make([]chanStats, img.Channels)
	values := make([]float64, len(pixels))

	for c := 0; c < img.Channels; c++ {
		plane := img.Channel(c)
		for i, idx := range pixels {
			values[i] = plane[idx]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		stats[c] = chanStats{
			mean:   stat.Mean(values, nil),
			sum:    floats.Sum(values),
			std:    stat.PopStdDev(values, nil),
			min:    sorted[0],
			max:    sorted[len(sorted)-1],
			median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		}
	}

	row := make([]float64, 0, len(intensityStats)*img.Channels)
	for _, s := range intensityStats {
		for c := 0; c < img.Channels; c++ {
			switch s {
			case "mean":
				row = append(row, stats[c].mean)
			case "sum":
				row = append(row, stats[c].sum)
			case "std":
				row = append(row, stats[c].std)
			case "min":
				row = append(row, stats[c].min)
			case "max":
				row = append(row, stats[c].max)
			case "median":
				row = append(row, stats[c].median)
			}
		}
	}
	return row
}
