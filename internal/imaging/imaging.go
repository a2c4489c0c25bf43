// Package imaging decodes tile images and turns them into model input
// tensors and perceptual hashes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for images with a zero-sized bounds rectangle.
var ErrEmptyImage = errors.New("image has no pixels")

// Decode decodes PNG, JPEG, GIF or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CenterCrop returns the largest square centred in img.
func CenterCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	r := image.Rect(x0, y0, x0+side, y0+side)

	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// DropAlpha returns img with every pixel made opaque in its straight
// (non-premultiplied) colour, so transparent areas keep their RGB instead
// of turning black. Opaque images are returned as is.
func DropAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	if src, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			si, di := src.PixOffset(b.Min.X, y), dst.PixOffset(b.Min.X, y)
			n := 4 * b.Dx()
			copy(dst.Pix[di:di+n], src.Pix[si:si+n])
			for i := di + 3; i < di+n; i += 4 {
				dst.Pix[i] = 0xff
			}
		}
		return dst
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}

// Resize scales img to exactly w×h with bilinear interpolation. Alpha is
// dropped first, see DropAlpha.
func Resize(img image.Image, w, h int) *image.RGBA {
	img = DropAlpha(img)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Preprocess describes how a model expects its input image.
type Preprocess struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

var (
	// ImageNet is the ResNet family input normalisation.
	ImageNet = Preprocess{
		Size: 224,
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
	// CLIP is the OpenAI CLIP / open_clip input normalisation.
	CLIP = Preprocess{
		Size: 224,
		Mean: [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:  [3]float32{0.26862954, 0.26130258, 0.27577711},
	}
)

// Shape returns the CHW tensor shape.
func (p Preprocess) Shape() [3]int {
	return [3]int{3, p.Size, p.Size}
}

// Tensor resizes img to the model input size and returns a normalised
// channel-major (CHW) float32 tensor.
func (p Preprocess) Tensor(img image.Image) []float32 {
	rgba := Resize(img, p.Size, p.Size)
	plane := p.Size * p.Size
	out := make([]float32, 3*plane)
	for y := 0; y < p.Size; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < p.Size; x++ {
			px := row[x*4:]
			i := y*p.Size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
	return out
}
