package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
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

func TestDecode(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}

	data, err := EncodePNG(solid(4, 2, red))
	require.NoError(t, err)

	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format())
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, data, img.Bytes())

	_, err = Decode([]byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

// withDimensions rewrites the IHDR chunk of a PNG to claim w×h pixels.
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()

	// 8-byte signature, 4-byte length, "IHDR", then width and height.
	require.Equal(t, "IHDR", string(data[12:16]))

	out := bytes.Clone(data)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))

	return out
}

func TestDecode_Limits(t *testing.T) {
	data, err := EncodePNG(solid(4, 4, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)

	t.Run("Bytes", func(t *testing.T) {
		_, err := DecodeLimited(data, Limits{MaxBytes: int64(len(data)) - 1})
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.ErrorIs(t, err, ErrDecode)

		_, err = DecodeLimited(data, Limits{MaxBytes: int64(len(data))})
		assert.NoError(t, err)
	})

	t.Run("Pixels", func(t *testing.T) {
		_, err := DecodeLimited(data, Limits{MaxPixels: 15})
		assert.ErrorIs(t, err, ErrTooLarge)

		img, err := DecodeLimited(data, Limits{MaxPixels: 16})
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dy())
	})

	t.Run("HeaderCheckedBeforePixels", func(t *testing.T) {
		// A 15000×15000 header over a 4×4 payload must fail on the header
		// alone rather than allocating the canvas.
		huge := withDimensions(t, data, 15000, 15000)

		_, err := Decode(huge)
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Contains(t, err.Error(), "15000x15000")
	})

	t.Run("Unlimited", func(t *testing.T) {
		_, err := DecodeLimited(data, Limits{})
		assert.NoError(t, err)
	})
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	_, err = ReadLimited(strings.NewReader("abcde"), 4)
	assert.ErrorIs(t, err, ErrTooLarge)

	data, err = ReadLimited(strings.NewReader("abcde"), 0)
	require.NoError(t, err)
	assert.Len(t, data, 5)
}

func TestPadSquare(t *testing.T) {
	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	dst := PadSquare(solid(4, 2, black), white)
	assert.Equal(t, image.Rect(0, 0, 4, 4), dst.Bounds())

	// Rows 0 and 3 are padding; rows 1 and 2 hold the source.
	assert.Equal(t, white, dst.RGBAAt(0, 0))
	assert.Equal(t, white, dst.RGBAAt(3, 3))
	assert.Equal(t, black, dst.RGBAAt(0, 1))
	assert.Equal(t, black, dst.RGBAAt(3, 2))
}

func TestResize(t *testing.T) {
	green := color.RGBA{G: 255, A: 255}

	dst := Resize(solid(10, 10, green), 4)
	assert.Equal(t, image.Rect(0, 0, 4, 4), dst.Bounds())
	assert.Equal(t, green, dst.RGBAAt(2, 2))
}

func TestFromImage(t *testing.T) {
	img, err := FromImage(solid(3, 3, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)

	again, err := Decode(img.Bytes())
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), again.Bounds())
}
