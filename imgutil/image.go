// Package imgutil converts between image files and model tensors.
package imgutil

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file. TIFF files are decoded with a TIFF decoder
// that handles more compression variants than the standard library.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".tiff", ".tif":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	default:
		return imaging.Open(filename)
	}
}

// SaveImage writes img with the format given by the file extension.
func SaveImage(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// Resize scales img to width x height.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
}

// ResizeMask scales mask to width x height with nearest-neighbor sampling so
// binary masks stay binary.
func ResizeMask(mask *image.Gray, width, height int) *image.Gray {
	b := mask.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return mask
	}

	out := resize.Resize(uint(width), uint(height), mask, resize.NearestNeighbor)
	if g, ok := out.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(g, g.Bounds(), out, out.Bounds().Min, draw.Src)
	return g
}

// ToTensor converts img to a float tensor of shape [1, 3, H, W] with values
// in [0, 1].
func ToTensor(img image.Image) *ts.Tensor {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	h, w := b.Dy(), b.Dx()
	plane := h * w
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := rgba.PixOffset(x, y)
			j := y*w + x
			data[j] = float32(rgba.Pix[i]) / 255
			data[plane+j] = float32(rgba.Pix[i+1]) / 255
			data[2*plane+j] = float32(rgba.Pix[i+2]) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, 3, int64(h), int64(w)}, true)
}

// MaskToImage converts one mask channel to a grayscale image. mask is
// [H, W], [1, H, W] or [1, 1, H, W] with values in [0, 1]. With threshold > 0
// pixels are binarised at threshold; otherwise probabilities are scaled to
// 0-255.
func MaskToImage(mask *ts.Tensor, threshold float64) (*image.Gray, error) {
	size := mask.MustSize()
	for len(size) > 2 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("imgutil: expected a single-channel mask, got shape %v", mask.MustSize())
	}

	h, w := int(size[0]), int(size[1])
	values := mask.Float64Values()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range values {
		var px uint8
		switch {
		case threshold > 0 && v >= threshold:
			px = 255
		case threshold > 0:
			px = 0
		case v <= 0:
			px = 0
		case v >= 1:
			px = 255
		default:
			px = uint8(v*255 + 0.5)
		}
		img.Pix[i] = px
	}

	return img, nil
}
