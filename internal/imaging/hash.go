package imaging

import (
	"image"
	"strings"

	"golang.org/x/image/draw"
)

const hashSide = 8

// Hash is a 64-bit average hash, row-major, most significant bit first.
type Hash uint64

// String renders the hash as 64 '0'/'1' characters.
func (h Hash) String() string {
	var sb strings.Builder
	sb.Grow(64)
	for i := 63; i >= 0; i-- {
		if h&(1<<uint(i)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// AverageHash converts img to 8-bit luma, downsamples the whole frame (no
// crop) to 8×8 and sets a bit for every pixel strictly brighter than the
// mean. ok is false for an empty image.
func AverageHash(img image.Image) (Hash, bool) {
	b := img.Bounds()
	if b.Empty() {
		return 0, false
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), DropAlpha(img), b.Min, draw.Src)

	small := image.NewGray(image.Rect(0, 0, hashSide, hashSide))
	draw.CatmullRom.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	var sum int
	for _, v := range small.Pix[:hashSide*hashSide] {
		sum += int(v)
	}
	mean := float64(sum) / float64(hashSide*hashSide)

	var h Hash
	for i := 0; i < hashSide*hashSide; i++ {
		v := small.Pix[(i/hashSide)*small.Stride+i%hashSide]
		if float64(v) > mean {
			h |= 1 << uint(63-i)
		}
	}
	return h, true
}

// HashBytes decodes data and hashes it. ok is false when decoding fails.
func HashBytes(data []byte) (Hash, bool) {
	img, err := Decode(data)
	if err != nil {
		return 0, false
	}
	return AverageHash(img)
}
