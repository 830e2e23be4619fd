package histogram

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/codec"
	"github.com/Silversoul-07/cloudforge/testutil"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func extract(t *testing.T, data []byte) Fingerprint {
	t.Helper()
	f, err := Extract(data)
	require.NoError(t, err)
	return f
}

func TestHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		h, s, v uint8
	}{
		{"Black", 0, 0, 0, 0, 0, 0},
		{"White", 255, 255, 255, 0, 0, 255},
		{"Red", 255, 0, 0, 0, 255, 255},
		{"Green", 0, 255, 0, 60, 255, 255},
		{"Blue", 0, 0, 255, 120, 255, 255},
		{"Magenta", 255, 0, 255, 150, 255, 255},
		{"HalfSaturated", 200, 100, 100, 0, 128, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := HSV(tt.r, tt.g, tt.b)
			assert.Equal(t, []uint8{tt.h, tt.s, tt.v}, []uint8{h, s, v})
		})
	}
}

func TestExtract(t *testing.T) {
	f := extract(t, testutil.SolidPNG(t, 4, 4, blue))

	var sum float32
	for _, v := range f {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	// H=120 falls in hue bin 5, S=255 in saturation bin 7.
	assert.Equal(t, float32(1), f[5*SaturationBins+7])

	split := ExtractImage(testutil.SplitImage(4, 4, red, green))
	assert.InDelta(t, 0.5, split[0*SaturationBins+7], 1e-6)
	assert.InDelta(t, 0.5, split[2*SaturationBins+7], 1e-6)

	_, err := Extract([]byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSimilarity(t *testing.T) {
	a := extract(t, testutil.SolidPNG(t, 4, 4, red))
	b := ExtractImage(testutil.SplitImage(4, 4, red, green))
	c := extract(t, testutil.SolidPNG(t, 4, 4, blue))

	assert.InDelta(t, 1.0, Similarity(a, a), 1e-9)
	assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-12)
	assert.Greater(t, Similarity(a, b), Similarity(a, c))
	assert.GreaterOrEqual(t, Similarity(a, c), -1.0)

	var flat Fingerprint
	assert.Equal(t, 1.0, Similarity(flat, flat))
}

func TestSimilarity_NearUniform(t *testing.T) {
	// Two nearly flat fingerprints with opposite perturbations have a true
	// correlation of -1 even though their variances are tiny.
	var a, b Fingerprint
	for i := range a {
		d := float32(2e-6)
		if i%2 == 1 {
			d = -d
		}
		a[i] = 1.0/Size + d
		b[i] = 1.0/Size - d
	}

	assert.InDelta(t, -1.0, Similarity(a, b), 1e-3)
	assert.InDelta(t, 1.0, Similarity(a, a), 1e-9)

	var uniform Fingerprint
	for i := range uniform {
		uniform[i] = 1.0 / Size
	}
	assert.Equal(t, 1.0, Similarity(uniform, uniform))
}

func TestSearch(t *testing.T) {
	target := extract(t, testutil.SolidPNG(t, 4, 4, red))
	corpus := []Candidate{
		{ID: "blue", Fingerprint: extract(t, testutil.SolidPNG(t, 4, 4, blue))},
		{ID: "mixed", Fingerprint: ExtractImage(testutil.SplitImage(4, 4, red, green))},
		{ID: "red", Fingerprint: target},
	}

	got := Search(target, corpus, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "red", got[0].ID)
	assert.Equal(t, "mixed", got[1].ID)

	assert.Len(t, Search(target, corpus, 0), 3)
	assert.Empty(t, Search(target, nil, 5))
}

func TestMatcher(t *testing.T) {
	ctx := context.Background()
	m := NewMatcher()

	redF := extract(t, testutil.SolidPNG(t, 4, 4, red))
	blueF := extract(t, testutil.SolidPNG(t, 4, 4, blue))

	m.Add("a", redF)
	m.Add("b", blueF)
	m.Add("a", redF)
	assert.Equal(t, 2, m.Len())

	got := m.Search(blueF, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	store := blobstore.NewMemoryStore()
	require.NoError(t, m.Save(ctx, store, "colors.json", codec.Default))

	assert.True(t, m.Remove("b"))
	assert.False(t, m.Remove("b"))
	assert.Equal(t, 1, m.Len())

	restored := NewMatcher()
	require.NoError(t, restored.Load(ctx, store, "colors.json", codec.Default))
	assert.Equal(t, 2, restored.Len())
	f, ok := restored.Get("b")
	require.True(t, ok)
	assert.Equal(t, blueF, f)

	require.NoError(t, NewMatcher().Load(ctx, store, "missing.json", codec.Default))

	_, err := FromSlice([]float32{1, 2})
	assert.ErrorIs(t, err, ErrFingerprintSize)
}
