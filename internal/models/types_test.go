package models

import (
	"errors"
	"testing"
)

// TestPlaneExtraction verifies that a class plane is widened without
// rescaling and out-of-range classes return nil
func TestPlaneExtraction(t *testing.T) {
	p := NewProbabilityMap(2, 2, 3)
	p.Set(0, 0, 1, 100)
	p.Set(1, 1, 1, 65535)

	plane := p.Plane(1)
	if len(plane) != 4 {
		t.Fatalf("expected 4 pixels, got %d", len(plane))
	}
	if plane[0] != 100 || plane[3] != 65535 {
		t.Errorf("expected values (100, 65535), got (%g, %g)", plane[0], plane[3])
	}
	if p.Plane(3) != nil || p.Plane(-1) != nil {
		t.Errorf("expected nil for an out-of-range class")
	}
}

// TestLabelsSortedSet verifies the sorted label set of a mask
func TestLabelsSortedSet(t *testing.T) {
	m := NewLabelMask(3, 2)
	m.Set(0, 0, 3)
	m.Set(2, 1, 1)
	m.Set(1, 0, 3)

	labels := m.Labels()
	if len(labels) != 2 || labels[0] != 1 || labels[1] != 3 {
		t.Errorf("expected labels [1 3], got %v", labels)
	}
	if m.MaxLabel() != 3 {
		t.Errorf("expected max label 3, got %d", m.MaxLabel())
	}
	if got := NewLabelMask(2, 2).Labels(); len(got) != 0 {
		t.Errorf("expected no labels in an empty mask, got %v", got)
	}
}

// TestValidate verifies the contiguity and connectivity invariants
func TestValidate(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if err := NewLabelMask(4, 4).Validate(); err != nil {
			t.Errorf("an all-background mask must validate, got %v", err)
		}
	})

	t.Run("Contiguous", func(t *testing.T) {
		m := NewLabelMask(4, 1)
		m.Set(0, 0, 1)
		m.Set(1, 0, 1)
		m.Set(2, 0, 2)
		if err := m.Validate(); err != nil {
			t.Errorf("expected a valid mask, got %v", err)
		}
	})

	t.Run("LabelGap", func(t *testing.T) {
		m := NewLabelMask(4, 1)
		m.Set(0, 0, 1)
		m.Set(2, 0, 3) // label 2 missing
		if err := m.Validate(); !errors.Is(err, ErrInvalidLabelMask) {
			t.Errorf("expected invalid label mask error, got %v", err)
		}
	})

	t.Run("Disconnected", func(t *testing.T) {
		m := NewLabelMask(3, 1)
		m.Set(0, 0, 1)
		m.Set(2, 0, 1) // same label split by background
		if err := m.Validate(); !errors.Is(err, ErrInvalidLabelMask) {
			t.Errorf("expected invalid label mask error, got %v", err)
		}
	})

	t.Run("DiagonalNotConnected", func(t *testing.T) {
		m := NewLabelMask(2, 2)
		m.Set(0, 0, 1)
		m.Set(1, 1, 1) // diagonal contact only
		if err := m.Validate(); !errors.Is(err, ErrInvalidLabelMask) {
			t.Errorf("expected invalid label mask error under 4-connectivity, got %v", err)
		}
	})
}

// TestChannelAliasing verifies that Channel returns a live view of the
// image data
func TestChannelAliasing(t *testing.T) {
	img := NewChannelImage(2, 3, 2)
	img.Set(1, 2, 1, 42)

	plane := img.Channel(1)
	if len(plane) != 6 {
		t.Fatalf("expected 6 pixels, got %d", len(plane))
	}
	if plane[1*3+2] != 42 {
		t.Errorf("expected value 42 at row-major index 5, got %g", plane[5])
	}
	plane[0] = 7
	if img.At(1, 0, 0) != 7 {
		t.Errorf("expected the channel slice to alias the image data")
	}
}
