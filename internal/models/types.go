// Package models defines the core data model shared by every pipeline
// stage: probability maps, multi-channel intensity images and label masks,
// together with the error taxonomy used across stage boundaries.
package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Stage inputs that violate a structural precondition are
// rejected with one of these sentinels (wrapped with context); degenerate
// but well-formed inputs (all background, zero objects) are never errors.
var (
	// ErrShapeMismatch indicates inconsistent spatial dimensions between
	// arrays that must share a shape (image vs. probability map vs. mask).
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidLabelMask indicates a mask violating a label invariant:
	// a non-contiguous label sequence, or a disconnected component under
	// a single label.
	ErrInvalidLabelMask = errors.New("invalid label mask")

	// ErrConfiguration indicates an invalid pipeline parameter (unknown
	// threshold method, invalid neighborhood rule, negative bound).
	// Raised at pipeline construction time, before any image is processed.
	ErrConfiguration = errors.New("invalid configuration")
)

// ProbabilityMap is the per-pixel class-probability output of the external
// pixel classifier. Values are stored row-major with the class index minor:
// Data[(y*Width+x)*Classes+c]. Immutable once loaded.
type ProbabilityMap struct {
	// Data holds unsigned probability values proportional to class
	// membership likelihood (0..65535).
	Data []uint16

	// Width and Height are the spatial dimensions, matching the source image.
	Width  int
	Height int

	// Classes is the number of probability planes (at least 3 for
	// nucleus / cytoplasm / background classifiers).
	Classes int
}

// NewProbabilityMap allocates an all-zero probability map.
func NewProbabilityMap(width, height, classes int) *ProbabilityMap {
	return &ProbabilityMap{
		Data:    make([]uint16, width*height*classes),
		Width:   width,
		Height:  height,
		Classes: classes,
	}
}

// At returns the probability of class c at pixel (x, y).
func (p *ProbabilityMap) At(x, y, c int) uint16 {
	return p.Data[(y*p.Width+x)*p.Classes+c]
}

// Set stores the probability of class c at pixel (x, y).
func (p *ProbabilityMap) Set(x, y, c int, v uint16) {
	p.Data[(y*p.Width+x)*p.Classes+c] = v
}

// Plane extracts one class plane as a float64 array in row-major order,
// widened without rescaling.
func (p *ProbabilityMap) Plane(c int) []float64 {
	if c < 0 || c >= p.Classes {
		return nil
	}
	plane := make([]float64, p.Width*p.Height)
	for i := range plane {
		plane[i] = float64(p.Data[i*p.Classes+c])
	}
	return plane
}

// ChannelImage is a multi-channel intensity image in channel-major order:
// Data[c*Width*Height + y*Width + x]. Intensities are widened to float64 on
// load without rescaling, so integer pixel values survive exactly.
type ChannelImage struct {
	Data     []float64
	Channels int
	Width    int
	Height   int

	// Names holds one channel name per plane, taken from the panel.
	Names []string
}

// NewChannelImage allocates an all-zero channel image.
func NewChannelImage(channels, width, height int) *ChannelImage {
	return &ChannelImage{
		Data:     make([]float64, channels*width*height),
		Channels: channels,
		Width:    width,
		Height:   height,
		Names:    make([]string, channels),
	}
}

// At returns the intensity of channel c at pixel (x, y).
func (im *ChannelImage) At(c, x, y int) float64 {
	return im.Data[c*im.Width*im.Height+y*im.Width+x]
}

// Set stores the intensity of channel c at pixel (x, y).
func (im *ChannelImage) Set(c, x, y int, v float64) {
	im.Data[c*im.Width*im.Height+y*im.Width+x] = v
}

// Channel returns the plane of channel c as a row-major float64 slice.
// The slice aliases the image data.
func (im *ChannelImage) Channel(c int) []float64 {
	n := im.Width * im.Height
	return im.Data[c*n : (c+1)*n]
}

// LabelMask is an instance segmentation: one non-negative integer per
// pixel in row-major order, 0 for background, positive values identifying
// distinct objects.
type LabelMask struct {
	Data   []int
	Width  int
	Height int
}

// NewLabelMask allocates an all-background mask.
func NewLabelMask(width, height int) *LabelMask {
	return &LabelMask{
		Data:   make([]int, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the label at pixel (x, y).
func (m *LabelMask) At(x, y int) int {
	return m.Data[y*m.Width+x]
}

// Set stores the label at pixel (x, y).
func (m *LabelMask) Set(x, y, label int) {
	m.Data[y*m.Width+x] = label
}

// Clone returns a deep copy of the mask.
func (m *LabelMask) Clone() *LabelMask {
	out := NewLabelMask(m.Width, m.Height)
	copy(out.Data, m.Data)
	return out
}

// MaxLabel returns the largest label value present, 0 for an
// all-background mask.
func (m *LabelMask) MaxLabel() int {
	max := 0
	for _, v := range m.Data {
		if v > max {
			max = v
		}
	}
	return max
}

// Labels returns the sorted set of positive labels present in the mask.
func (m *LabelMask) Labels() []int {
	seen := make(map[int]bool)
	max := 0
	for _, v := range m.Data {
		if v > 0 {
			seen[v] = true
			if v > max {
				max = v
			}
		}
	}
	labels := make([]int, 0, len(seen))
	for l := 1; l <= max; l++ {
		if seen[l] {
			labels = append(labels, l)
		}
	}
	return labels
}

// SameShape reports whether the mask shares spatial dimensions with the
// given width and height.
func (m *LabelMask) SameShape(width, height int) bool {
	return m.Width == width && m.Height == height
}

// Validate checks the structural invariants required of a mask produced by
// a filtering or relabeling step: positive labels form the contiguous range
// 1..k, and every label occupies exactly one 4-connected component.
func (m *LabelMask) Validate() error {
	labels := m.Labels()
	for i, l := range labels {
		if l != i+1 {
			return fmt.Errorf("%w: labels are not contiguous, found %d at position %d", ErrInvalidLabelMask, l, i+1)
		}
	}
	if len(labels) == 0 {
		return nil
	}

	// Flood fill from the first pixel of each label and verify the
	// component covers the label's full pixel count.
	counts := make([]int, len(labels)+1)
	first := make([]int, len(labels)+1)
	for i := range first {
		first[i] = -1
	}
	for i, v := range m.Data {
		if v > 0 {
			counts[v]++
			if first[v] < 0 {
				first[v] = i
			}
		}
	}
	visited := make([]bool, len(m.Data))
	stack := make([]int, 0, 64)
	for label := 1; label <= len(labels); label++ {
		reached := 0
		stack = append(stack[:0], first[label])
		visited[first[label]] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			reached++
			x, y := idx%m.Width, idx/m.Width
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				nidx := ny*m.Width + nx
				if !visited[nidx] && m.Data[nidx] == label {
					visited[nidx] = true
					stack = append(stack, nidx)
				}
			}
		}
		if reached != counts[label] {
			return fmt.Errorf("%w: label %d has a disconnected component (%d of %d pixels reachable)",
				ErrInvalidLabelMask, label, reached, counts[label])
		}
	}
	return nil
}
