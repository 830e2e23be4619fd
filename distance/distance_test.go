package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernels(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		dot, l2 float32
	}{
		{"Tail", []float32{1, 2, 3}, []float32{4, 5, 6}, 32, 27},
		{"Unrolled", []float32{1, 1, 1, 1, 1}, []float32{2, 2, 2, 2, 2}, 10, 5},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 0, 2},
		{"Identical", []float32{0.5, -0.5, 0.5, -0.5}, []float32{0.5, -0.5, 0.5, -0.5}, 1, 0},
		{"Empty", []float32{}, []float32{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.dot, Dot(tt.a, tt.b), 1e-5)
			assert.InDelta(t, tt.l2, SquaredL2(tt.a, tt.b), 1e-5)
		})
	}
}

// On unit vectors |a-b|^2 = 2 - 2a.b, so L2 and cosine rank identically.
func TestUnitVectorIdentity(t *testing.T) {
	a, ok := NormalizeL2Copy([]float32{1, 2, 3, 4, 5, 6, 7})
	require.True(t, ok)
	b, ok := NormalizeL2Copy([]float32{7, -1, 0, 2, 2, 1, -3})
	require.True(t, ok)

	assert.InDelta(t, 2-2*Dot(a, b), SquaredL2(a, b), 1e-5)
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		ok := NormalizeL2InPlace(v)
		assert.True(t, ok)
		assert.InDelta(t, float32(0.6), v[0], 1e-5)
		assert.InDelta(t, float32(0.8), v[1], 1e-5)
		assert.InDelta(t, 1.0, math.Sqrt(float64(v[0]*v[0]+v[1]*v[1])), 1e-5)

		assert.False(t, NormalizeL2InPlace([]float32{0, 0}))
		assert.False(t, NormalizeL2InPlace([]float32{}))
	})

	t.Run("Copy", func(t *testing.T) {
		v := []float32{1, 0}
		dst, ok := NormalizeL2Copy(v)
		assert.True(t, ok)
		assert.Equal(t, float32(1), dst[0])
		assert.NotSame(t, &v[0], &dst[0])

		dst, ok = NormalizeL2Copy([]float32{0, 0})
		assert.False(t, ok)
		assert.Nil(t, dst)
	})
}

func TestMetric(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "L2", MetricL2.String())
		assert.Equal(t, "Cosine", MetricCosine.String())
		assert.Equal(t, "Unknown(99)", Metric(99).String())
	})

	t.Run("Ordering", func(t *testing.T) {
		assert.True(t, MetricL2.Better(0.1, 0.2))
		assert.False(t, MetricCosine.Better(0.1, 0.2))
		assert.True(t, MetricCosine.Better(0.9, 0.2))
	})

	t.Run("Parse", func(t *testing.T) {
		m, err := ParseMetric("cosine")
		require.NoError(t, err)
		assert.Equal(t, MetricCosine, m)

		_, err = ParseMetric("hamming")
		assert.Error(t, err)
	})

	t.Run("Provider", func(t *testing.T) {
		f, err := Provider(MetricL2)
		require.NoError(t, err)
		assert.InDelta(t, float32(27), f([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)

		f, err = Provider(MetricCosine)
		require.NoError(t, err)
		assert.InDelta(t, float32(1), f([]float32{1, 0}, []float32{1, 0}), 1e-5)

		_, err = Provider(Metric(42))
		assert.Error(t, err)
	})
}
