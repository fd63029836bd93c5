// Package imgio moves images in and out of the network: decoding,
// resizing to the input resolution, tensor conversion and mask rendering.
package imgio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// Decode reads an image file. PNG, JPEG and TIFF are supported.
func Decode(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png":
		return png.Decode(f)
	case ".jpg", ".jpeg":
		return jpeg.Decode(f)
	case ".tiff", ".tif":
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("Unsupported image format: %v", ext)
	}
}

// IsImage reports whether Decode can read filename.
func IsImage(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".tiff", ".tif":
		return true
	}
	return false
}

// Fit resizes img to size x size.
func Fit(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Lanczos)
}

// ToTensor converts img to a [3 H W] float tensor with values in [0, 1].
func ToTensor(img image.Image) *ts.Tensor {
	src := imaging.Clone(img)
	b := src.Bounds()
	h, w := b.Dy(), b.Dx()
	plane := h * w

	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			j := y*w + x
			data[j] = float32(src.Pix[i]) / 255
			data[plane+j] = float32(src.Pix[i+1]) / 255
			data[2*plane+j] = float32(src.Pix[i+2]) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{3, int64(h), int64(w)}, true)
}

// Batch stacks [3 H W] tensors into a [B 3 H W] batch.
func Batch(xs []*ts.Tensor) *ts.Tensor {
	items := make([]ts.Tensor, len(xs))
	for i, x := range xs {
		items[i] = *x
	}
	return ts.MustStack(items, 0)
}

// MaskImage renders a single-channel probability map ([H W], [1 H W] or
// [1 1 H W]) as a gray image. With threshold > 0 pixels are binarized.
func MaskImage(probs *ts.Tensor, threshold float64) (*image.Gray, error) {
	size := probs.MustSize()
	for len(size) > 2 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("Expected a single-channel map. Got shape %v", probs.MustSize())
	}
	h, w := int(size[0]), int(size[1])

	data := probs.Float64Values()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range data {
		switch {
		case threshold > 0 && v > threshold:
			v = 1
		case threshold > 0:
			v = 0
		}
		img.Pix[(i/w)*img.Stride+i%w] = uint8(v*255 + 0.5)
	}

	return img, nil
}

// ResizeMask scales a mask back to w x h. Nearest neighbour keeps a
// binarized mask binary.
func ResizeMask(mask image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), mask, resize.NearestNeighbor)
}

// Overlay draws mask in red over img at the given opacity (0-255).
// The mask is resized to img bounds if needed.
func Overlay(img, mask image.Image, opacity uint8) *image.RGBA {
	rec := img.Bounds()
	if mask.Bounds().Dx() != rec.Dx() || mask.Bounds().Dy() != rec.Dy() {
		mask = ResizeMask(mask, rec.Dx(), rec.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, rec.Dx(), rec.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rec.Min, draw.Src)

	alpha := image.NewAlpha(dst.Bounds())
	mb := mask.Bounds()
	for y := 0; y < mb.Dy(); y++ {
		for x := 0; x < mb.Dx(); x++ {
			g := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray)
			alpha.SetAlpha(x, y, color.Alpha{A: uint8(uint16(g.Y) * uint16(opacity) / 255)})
		}
	}

	red := image.NewUniform(color.RGBA{R: 255, A: 255})
	draw.DrawMask(dst, dst.Bounds(), red, image.Point{}, alpha, image.Point{}, draw.Over)

	return dst
}

// SavePNG writes img to filename.
func SavePNG(filename string, img image.Image) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Load decodes filename and returns it as a [3 size size] tensor along with
// the decoded image. size <= 0 keeps the original resolution.
func Load(filename string, size int) (*ts.Tensor, image.Image, error) {
	img, err := Decode(filename)
	if err != nil {
		return nil, nil, err
	}
	if size <= 0 {
		return ToTensor(img), img, nil
	}
	return ToTensor(Fit(img, size)), img, nil
}

// MaskTensor converts a ground-truth mask image to a [1 size size] tensor
// with values in [0, 1]. Colour masks are reduced to luminance.
func MaskTensor(mask image.Image, size int) *ts.Tensor {
	b := mask.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), mask, b.Min, draw.Src)
	scaled := ResizeMask(gray, size, size)

	data := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g := color.GrayModel.Convert(scaled.At(scaled.Bounds().Min.X+x, scaled.Bounds().Min.Y+y)).(color.Gray)
			data[y*size+x] = float32(g.Y) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, int64(size), int64(size)}, true)
}
