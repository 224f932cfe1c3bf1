package segmentation

import (
	"errors"
	"testing"

	"cellquant/internal/models"
)

func uniformPlane(width, height int, v float64) []float64 {
	plane := make([]float64, width*height)
	for i := range plane {
		plane[i] = v
	}
	return plane
}

func testGrower(t *testing.T, maxDist, reg, threshold float64) *Grower {
	t.Helper()
	policy, err := NewThresholdPolicy(ThresholdManual, 1.0, 0, 65535, threshold)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	g, err := NewGrower(maxDist, reg, policy)
	if err != nil {
		t.Fatalf("failed to create grower: %v", err)
	}
	return g
}

// TestNewGrower verifies construction-time validation
func TestNewGrower(t *testing.T) {
	policy, _ := NewThresholdPolicy(ThresholdManual, 1.0, 0, 65535, 0)
	if _, err := NewGrower(-1, 0.05, policy); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error for negative distance, got %v", err)
	}
	if _, err := NewGrower(10, -0.5, policy); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error for negative regularization, got %v", err)
	}
	if _, err := NewGrower(10, 0.05, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error for missing threshold, got %v", err)
	}
}

// TestGrowZeroDistance verifies that a maximum expansion distance of zero
// returns the primary mask exactly
func TestGrowZeroDistance(t *testing.T) {
	primary := models.NewLabelMask(5, 5)
	primary.Set(2, 2, 1)
	primary.Set(2, 3, 1)

	g := testGrower(t, 0, 1.0, 5)
	grown, err := g.Grow(primary, uniformPlane(5, 5, 1000))
	if err != nil {
		t.Fatalf("grow failed: %v", err)
	}
	for i := range primary.Data {
		if grown.Data[i] != primary.Data[i] {
			t.Fatalf("pixel %d changed with zero expansion distance: %d -> %d",
				i, primary.Data[i], grown.Data[i])
		}
	}
}

// TestGrowMonotonic verifies that every object's grown footprint is a
// superset of its primary footprint
func TestGrowMonotonic(t *testing.T) {
	primary := models.NewLabelMask(9, 9)
	primary.Set(2, 2, 1)
	primary.Set(6, 6, 2)

	g := testGrower(t, 2, 1.0, 5)
	grown, err := g.Grow(primary, uniformPlane(9, 9, 1000))
	if err != nil {
		t.Fatalf("grow failed: %v", err)
	}

	for i, label := range primary.Data {
		if label > 0 && grown.Data[i] != label {
			t.Fatalf("primary pixel %d lost its label: %d -> %d", i, label, grown.Data[i])
		}
	}

	// Growth happened at all.
	before, after := 0, 0
	for i := range primary.Data {
		if primary.Data[i] > 0 {
			before++
		}
		if grown.Data[i] > 0 {
			after++
		}
	}
	if after <= before {
		t.Errorf("expected the footprint to expand, got %d -> %d pixels", before, after)
	}
}

// TestGrowContestedTie verifies that a pixel contested at exactly equal
// cost goes to the lower object id
func TestGrowContestedTie(t *testing.T) {
	primary := models.NewLabelMask(5, 1)
	primary.Set(1, 0, 1)
	primary.Set(3, 0, 2)

	g := testGrower(t, 10, 1.0, 5)
	grown, err := g.Grow(primary, uniformPlane(5, 1, 1000))
	if err != nil {
		t.Fatalf("grow failed: %v", err)
	}

	if got := grown.At(2, 0); got != 1 {
		t.Errorf("contested pixel: expected lower id 1, got %d", got)
	}
	if got := grown.At(0, 0); got != 1 {
		t.Errorf("pixel (0,0): expected label 1, got %d", got)
	}
	if got := grown.At(4, 0); got != 2 {
		t.Errorf("pixel (4,0): expected label 2, got %d", got)
	}
}

// TestGrowStopsAtThreshold verifies that pixels at or below the guidance
// threshold are never claimed
func TestGrowStopsAtThreshold(t *testing.T) {
	width, height := 7, 1
	primary := models.NewLabelMask(width, height)
	primary.Set(1, 0, 1)

	guidance := uniformPlane(width, height, 1000)
	guidance[4] = 0 // below threshold: a wall the object cannot cross
	guidance[5] = 0
	guidance[6] = 0

	g := testGrower(t, 10, 1.0, 5)
	grown, err := g.Grow(primary, guidance)
	if err != nil {
		t.Fatalf("grow failed: %v", err)
	}

	for x := 4; x < width; x++ {
		if got := grown.At(x, 0); got != 0 {
			t.Errorf("pixel (%d,0) below threshold was claimed by %d", x, got)
		}
	}
	for x := 0; x < 4; x++ {
		if got := grown.At(x, 0); got != 1 {
			t.Errorf("pixel (%d,0): expected label 1, got %d", x, got)
		}
	}
}
