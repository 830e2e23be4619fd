// Package imaging decodes uploaded images once and provides the geometric
// preprocessing shared by the embedders and the color matcher.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned for bytes that are not a supported image.
var ErrDecode = errors.New("image decode failed")

// ErrTooLarge is returned for images over the byte or pixel limit. It
// matches ErrDecode.
var ErrTooLarge = fmt.Errorf("%w: image too large", ErrDecode)

// Default limits applied by Decode.
const (
	DefaultMaxBytes  = 100 << 20
	DefaultMaxPixels = 1 << 26
)

// Limits bounds the input accepted by DecodeLimited. A non-positive field
// is unlimited.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// DefaultLimits are the limits used by Decode.
var DefaultLimits = Limits{MaxBytes: DefaultMaxBytes, MaxPixels: DefaultMaxPixels}

// Image is a decoded image together with its original encoding.
type Image struct {
	data   []byte
	format string
	img    image.Image
}

// Decode parses data as JPEG, PNG, GIF, WebP or BMP within DefaultLimits.
func Decode(data []byte) (*Image, error) {
	return DecodeLimited(data, DefaultLimits)
}

// DecodeLimited parses data like Decode. The dimensions are read from the
// header and checked against lim before any pixel is decoded.
func DecodeLimited(data []byte, lim Limits) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if lim.MaxBytes > 0 && int64(len(data)) > lim.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), lim.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); lim.MaxPixels > 0 && px > lim.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, lim.MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}

	return &Image{data: data, format: format, img: img}, nil
}

// ReadLimited reads r to EOF, failing with ErrTooLarge once more than limit
// bytes arrive. A non-positive limit is unlimited.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	return data, nil
}

// FromImage wraps an in-memory image, encoding it as PNG.
func FromImage(img image.Image) (*Image, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	return &Image{data: data, format: "png", img: img}, nil
}

// Bytes returns the original encoded bytes.
func (i *Image) Bytes() []byte { return i.data }

// Format returns the name of the decoder that parsed the image.
func (i *Image) Format() string { return i.format }

// Image returns the decoded image.
func (i *Image) Image() image.Image { return i.img }

// Bounds returns the pixel bounds.
func (i *Image) Bounds() image.Rectangle { return i.img.Bounds() }

// PadSquare centers src on a square canvas of side max(w, h) filled with fill.
func PadSquare(src image.Image, fill color.Color) *image.RGBA {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() > side {
		side = b.Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	off := image.Pt((side-b.Dx())/2, (side-b.Dy())/2)
	draw.Draw(dst, image.Rectangle{Min: off, Max: off.Add(b.Size())}, src, b.Min, draw.Over)

	return dst
}

// Resize scales src to size×size with bicubic (Catmull-Rom) interpolation.
func Resize(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return dst
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
