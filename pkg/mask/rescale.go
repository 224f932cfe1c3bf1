package mask

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"cellquant/internal/models"
)

// Rescale resamples a label mask to the target dimensions using
// nearest-neighbor label resampling. Labels are never interpolated or
// averaged: each output pixel takes the label of the nearest input pixel,
// so label identity is preserved exactly.
//
// The returned slice lists labels absorbed during downscaling, i.e.
// labels whose entire footprint mapped onto destination pixels claimed by
// other objects. Absorption is reported, never silently repaired; at
// upscale the label set is always preserved and the slice is empty.
func Rescale(m *models.LabelMask, targetWidth, targetHeight int) (*models.LabelMask, []int, error) {
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid target dimensions %dx%d", models.ErrConfiguration, targetWidth, targetHeight)
	}
	if max := m.MaxLabel(); max > math.MaxUint16 {
		return nil, nil, fmt.Errorf("%w: label %d exceeds the 16-bit mask range", models.ErrInvalidLabelMask, max)
	}

	src := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for idx, label := range m.Data {
		x, y := idx%m.Width, idx/m.Width
		off := src.PixOffset(x, y)
		src.Pix[off] = uint8(label >> 8)
		src.Pix[off+1] = uint8(label)
	}

	dst := image.NewGray16(image.Rect(0, 0, targetWidth, targetHeight))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := models.NewLabelMask(targetWidth, targetHeight)
	for y := 0; y < targetHeight; y++ {
		for x := 0; x < targetWidth; x++ {
			off := dst.PixOffset(x, y)
			out.Data[y*targetWidth+x] = int(dst.Pix[off])<<8 | int(dst.Pix[off+1])
		}
	}

	var absorbed []int
	after := make(map[int]bool)
	for _, label := range out.Data {
		if label > 0 {
			after[label] = true
		}
	}
	for _, label := range m.Labels() {
		if !after[label] {
			absorbed = append(absorbed, label)
		}
	}
	return out, absorbed, nil
}

// RescaleFactor resamples a mask by a uniform scale factor, rounding the
// target dimensions to the nearest pixel. A factor of 1 returns a copy.
func RescaleFactor(m *models.LabelMask, factor float64) (*models.LabelMask, []int, error) {
	if factor <= 0 {
		return nil, nil, fmt.Errorf("%w: scale factor must be positive, got %g", models.ErrConfiguration, factor)
	}
	if factor == 1 {
		return m.Clone(), nil, nil
	}
	w := int(math.Round(float64(m.Width) * factor))
	h := int(math.Round(float64(m.Height) * factor))
	return Rescale(m, w, h)
}
