package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// SolidImage returns a w×h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// SplitImage returns a w×h image whose left half is left and right half is right.
func SplitImage(w, h int, left, right color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

// EncodePNG encodes img as PNG, failing the test on error.
func EncodePNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}

	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG at quality 95.
func EncodeJPEG(tb testing.TB, img image.Image) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		tb.Fatalf("encode jpeg: %v", err)
	}

	return buf.Bytes()
}

// SolidPNG is EncodePNG(SolidImage(w, h, c)).
func SolidPNG(tb testing.TB, w, h int, c color.Color) []byte {
	tb.Helper()
	return EncodePNG(tb, SolidImage(w, h, c))
}
