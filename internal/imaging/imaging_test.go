package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func halves(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(encodePNG(t, solid(10, 6, color.White)))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(4, 4, color.Black), nil))
	_, err = Decode(buf.Bytes())
	require.NoError(t, err)

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestCenterCrop(t *testing.T) {
	img := halves(300, 200)
	c := CenterCrop(img)
	assert.Equal(t, image.Rect(50, 0, 250, 200), c.Bounds())

	tall := CenterCrop(solid(20, 50, color.White))
	assert.Equal(t, 20, tall.Bounds().Dx())
	assert.Equal(t, 20, tall.Bounds().Dy())

	sq := solid(8, 8, color.White)
	assert.Same(t, sq, CenterCrop(sq).(*image.RGBA))
}

func TestResize(t *testing.T) {
	r := Resize(halves(100, 40), 16, 16)
	assert.Equal(t, image.Rect(0, 0, 16, 16), r.Bounds())
}

func TestResize_TransparentPixelsKeepTheirColour(t *testing.T) {
	// Straight red at zero alpha, as a decoded RGBA PNG carries it.
	img := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xff, 0
	}
	r := Resize(img, 3, 3)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, r.RGBAAt(1, 1))

	half := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	half.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 200, B: 30, A: 0x80})
	opaque := DropAlpha(half).(*image.NRGBA)
	assert.Equal(t, color.NRGBA{R: 10, G: 200, B: 30, A: 0xff}, opaque.NRGBAAt(0, 0))

	solidImg := solid(2, 2, color.White)
	assert.Same(t, solidImg, DropAlpha(solidImg))
}

func TestTensor_LayoutAndNormalisation(t *testing.T) {
	p := Preprocess{Size: 4, Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}
	ten := p.Tensor(solid(9, 9, color.RGBA{R: 255, G: 0, B: 255, A: 255}))
	require.Len(t, ten, 3*4*4)
	for i := 0; i < 16; i++ {
		assert.InDelta(t, 1.0, ten[i], 0.02)
		assert.InDelta(t, -1.0, ten[16+i], 0.02)
		assert.InDelta(t, 1.0, ten[32+i], 0.02)
	}
	assert.Equal(t, [3]int{3, 224, 224}, ImageNet.Shape())
	assert.Len(t, CLIP.Tensor(halves(50, 30)), 3*224*224)
}

func TestAverageHash(t *testing.T) {
	h, ok := AverageHash(halves(64, 64))
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("00001111", 8), h.String())

	// Uniform frames have no pixel above the mean.
	h, ok = AverageHash(solid(30, 30, color.Gray{Y: 90}))
	require.True(t, ok)
	assert.Equal(t, Hash(0), h)

	// Scale does not change the hash of the same picture.
	a, _ := AverageHash(halves(64, 64))
	b, _ := AverageHash(halves(256, 256))
	assert.Equal(t, a, b)

	_, ok = AverageHash(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.False(t, ok)
}

func TestHashBytes(t *testing.T) {
	data := encodePNG(t, halves(32, 32))
	h, ok := HashBytes(data)
	require.True(t, ok)
	assert.Len(t, h.String(), 64)

	_, ok = HashBytes([]byte{0x00, 0x01})
	assert.False(t, ok)
}
