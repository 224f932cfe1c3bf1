// Package imgio reads and writes the file artifacts exchanged with
// external collaborators: 16-bit TIFF images, probability maps and label
// masks, the channel panel, and the CSV outputs of the measurement stage.
package imgio

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"cellquant/internal/models"
)

// ReadProbabilities loads a classifier probability map from a TIFF file.
// A 16-bit RGB image maps to three class planes in channel order R, G, B;
// a grayscale image maps to a single class plane.
func ReadProbabilities(path string) (*models.ProbabilityMap, error) {
	img, err := decodeTIFF(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if gray, ok := img.(*image.Gray16); ok {
		p := models.NewProbabilityMap(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p.Set(x, y, 0, gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return p, nil
	}

	p := models.NewProbabilityMap(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			p.Set(x, y, 0, uint16(r))
			p.Set(x, y, 1, uint16(g))
			p.Set(x, y, 2, uint16(bl))
		}
	}
	return p, nil
}

// ReadMask loads a label mask from a 16-bit grayscale TIFF, 0 meaning
// background.
func ReadMask(path string) (*models.LabelMask, error) {
	img, err := decodeTIFF(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	m := models.NewLabelMask(b.Dx(), b.Dy())
	switch im := img.(type) {
	case *image.Gray16:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Set(x, y, int(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				m.Set(x, y, int(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		return nil, fmt.Errorf("mask %s: unsupported pixel format %T", path, img)
	}
	return m, nil
}

// WriteMask stores a label mask as a 16-bit grayscale TIFF with deflate
// compression, matching the layout external consumers expect.
func WriteMask(path string, m *models.LabelMask) error {
	if max := m.MaxLabel(); max > math.MaxUint16 {
		return fmt.Errorf("%w: label %d exceeds the 16-bit mask range", models.ErrInvalidLabelMask, max)
	}
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for idx, label := range m.Data {
		off := img.PixOffset(idx%m.Width, idx/m.Width)
		img.Pix[off] = uint8(label >> 8)
		img.Pix[off+1] = uint8(label)
	}
	return encodeTIFF(path, img)
}

// ReadChannels loads a multi-channel intensity image from one grayscale
// TIFF per channel, named "<name>.tiff" inside dir, in panel order.
// Integer pixel values are widened to float64 without rescaling. All
// channels must share spatial dimensions.
func ReadChannels(dir string, names []string) (*models.ChannelImage, error) {
	var out *models.ChannelImage
	for c, name := range names {
		img, err := decodeTIFF(filepath.Join(dir, name+".tiff"))
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if out == nil {
			out = models.NewChannelImage(len(names), w, h)
			copy(out.Names, names)
		} else if w != out.Width || h != out.Height {
			return nil, fmt.Errorf("%w: channel %q is %dx%d, expected %dx%d",
				models.ErrShapeMismatch, name, w, h, out.Width, out.Height)
		}
		plane := out.Channel(c)
		switch im := img.(type) {
		case *image.Gray16:
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					plane[y*w+x] = float64(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
				}
			}
		case *image.Gray:
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					plane[y*w+x] = float64(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				}
			}
		default:
			return nil, fmt.Errorf("channel %q: unsupported pixel format %T", name, img)
		}
	}
	return out, nil
}

func decodeTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func encodeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
