// Package histogram implements the color fingerprint used for "search by
// color": an 8×8 hue/saturation histogram compared by Pearson correlation.
//
// Hue and saturation follow the 8-bit OpenCV convention (H in [0,180),
// S in [0,256)) so fingerprints computed elsewhere with calcHist over the
// same ranges compare sensibly against ours.
package histogram

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/Silversoul-07/cloudforge/imaging"
)

const (
	HueBins        = 8
	SaturationBins = 8

	// Size is the number of values in a fingerprint.
	Size = HueBins * SaturationBins

	hueRange        = 180
	saturationRange = 256

	epsilon = 2.220446049250313e-16 // float64 machine epsilon
)

// ErrDecode is returned by Extract for bytes that are not an image.
var ErrDecode = imaging.ErrDecode

// ErrFingerprintSize is returned when a stored fingerprint has the wrong length.
var ErrFingerprintSize = errors.New("fingerprint must have 64 values")

// Fingerprint is a flattened, unit-sum hue×saturation histogram in
// hue-major order: bin h*SaturationBins+s.
type Fingerprint [Size]float32

// FromSlice converts a stored fingerprint.
func FromSlice(values []float32) (Fingerprint, error) {
	var f Fingerprint
	if len(values) != Size {
		return f, fmt.Errorf("%w: got %d", ErrFingerprintSize, len(values))
	}
	copy(f[:], values)
	return f, nil
}

// Slice returns the fingerprint as a slice.
func (f Fingerprint) Slice() []float32 { return f[:] }

// Extract decodes data and fingerprints it.
func Extract(data []byte) (Fingerprint, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return Fingerprint{}, err
	}
	return ExtractImage(img.Image()), nil
}

// ExtractImage fingerprints a decoded image. Alpha is ignored.
func ExtractImage(img image.Image) Fingerprint {
	var counts [Size]uint64
	b := img.Bounds()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			h, s, _ := HSV(c.R, c.G, c.B)
			counts[bin(h, s)]++
		}
	}

	var f Fingerprint
	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return f
	}
	for i, n := range counts {
		f[i] = float32(float64(n) / total)
	}
	return f
}

func bin(h, s uint8) int {
	hb := int(h) * HueBins / hueRange
	if hb >= HueBins {
		hb = HueBins - 1
	}
	sb := int(s) * SaturationBins / saturationRange
	return hb*SaturationBins + sb
}

// HSV converts an 8-bit RGB triple to 8-bit HSV with H halved into [0,180).
func HSV(r, g, b uint8) (h, s, v uint8) {
	maxc := max(r, g, b)
	minc := min(r, g, b)
	v = maxc
	if maxc == 0 {
		return 0, 0, 0
	}

	diff := float64(maxc - minc)
	s = uint8(math.Round(diff * 255 / float64(maxc)))
	if diff == 0 {
		return 0, s, v
	}

	var hue float64
	switch maxc {
	case r:
		hue = 60 * (float64(g) - float64(b)) / diff
	case g:
		hue = 120 + 60*(float64(b)-float64(r))/diff
	default:
		hue = 240 + 60*(float64(r)-float64(g))/diff
	}
	if hue < 0 {
		hue += 360
	}

	hh := math.Round(hue / 2)
	if hh >= hueRange {
		hh -= hueRange
	}
	return uint8(hh), s, v
}

// Similarity is the Pearson correlation of two fingerprints, in [-1, 1].
// A fingerprint whose variance vanishes relative to its energy has no
// defined correlation and scores 1.
func Similarity(a, b Fingerprint) float64 {
	var sa, sb float64
	for i := range a {
		sa += float64(a[i])
		sb += float64(b[i])
	}

	const n = float64(Size)
	ma, mb := sa/n, sb/n

	var va, vb, cov, saa, sbb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dx, dy := x-ma, y-mb
		va += dx * dx
		vb += dy * dy
		cov += dx * dy
		saa += x * x
		sbb += y * y
	}

	// Unit-sum fingerprints have tiny variances; compare against each
	// fingerprint's own scale rather than an absolute bound.
	if va <= epsilon*saa || vb <= epsilon*sbb {
		return 1
	}

	r := cov / math.Sqrt(va*vb)
	return max(-1, min(1, r))
}

// Candidate is a fingerprint under an identifier.
type Candidate struct {
	ID          string
	Fingerprint Fingerprint
}

// Match is a scored candidate.
type Match struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Search ranks corpus by similarity to target, best first, and returns at
// most limit matches. A non-positive limit returns every match. Equal
// similarities keep corpus order.
func Search(target Fingerprint, corpus []Candidate, limit int) []Match {
	out := make([]Match, len(corpus))
	for i, c := range corpus {
		out[i] = Match{ID: c.ID, Similarity: Similarity(target, c.Fingerprint)}
	}

	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
