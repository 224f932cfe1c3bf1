package imgio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"cellquant/pkg/measure"
)

// WriteFeatures stores a feature table as CSV: header "Object" followed by
// the feature columns, one row per cell in ascending id order. A zero-cell
// table writes the header only.
func WriteFeatures(path string, t *measure.FeatureTable) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := append([]string{"Object"}, t.Columns...)
		if err := w.Write(header); err != nil {
			return err
		}
		for i, id := range t.IDs {
			rec := make([]string, 0, len(header))
			rec = append(rec, strconv.Itoa(id))
			for _, v := range t.Rows[i] {
				rec = append(rec, formatFloat(v))
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteDistances stores a symmetric distance matrix as CSV with cell ids
// on both axes. A nil matrix (zero cells) writes an empty header row.
func WriteDistances(path string, ids []int, d *mat.SymDense) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := make([]string, 0, len(ids)+1)
		header = append(header, "")
		for _, id := range ids {
			header = append(header, strconv.Itoa(id))
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for i, id := range ids {
			rec := make([]string, 0, len(ids)+1)
			rec = append(rec, strconv.Itoa(id))
			for j := range ids {
				rec = append(rec, formatFloat(d.At(i, j)))
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteGraph stores a spatial graph as CSV with columns Cell1 and Cell2,
// one row per directed edge. Undirected neighborhoods appear as both
// directions.
func WriteGraph(path string, edges []measure.Edge) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"Cell1", "Cell2"}); err != nil {
			return err
		}
		for _, e := range edges {
			if err := w.Write([]string{strconv.Itoa(e.From), strconv.Itoa(e.To)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, write func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := write(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
