package testutil

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/Silversoul-07/cloudforge/distance"
)

// RNG produces reproducible vectors for index tests. It is safe for
// concurrent use.
type RNG struct {
	mu   sync.Mutex
	seed int64
	r    *rand.Rand
}

// NewRNG returns an RNG seeded with seed.
func NewRNG(seed int64) *RNG {
	g := &RNG{seed: seed}
	g.Reset()
	return g
}

// Reset rewinds the sequence to the start.
func (g *RNG) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.r = rand.New(rand.NewPCG(uint64(g.seed), 0x9e3779b97f4a7c15))
}

// UniformVectors returns num vectors with components in [0, 1).
func (g *RNG) UniformVectors(num, dim int) [][]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([][]float32, num)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = g.r.Float32()
		}
		out[i] = v
	}
	return out
}

// UnitVectors returns num vectors uniformly distributed on the unit sphere,
// like the normalized embeddings the models produce.
func (g *RNG) UnitVectors(num, dim int) [][]float32 {
	out := make([][]float32, num)
	for i := range out {
		out[i] = g.UnitVector(dim)
	}
	return out
}

// UnitVector returns one vector of length 1.
func (g *RNG) UnitVector(dim int) []float32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		v := make([]float32, dim)
		var sum float64
		for j := range v {
			x := g.r.NormFloat64()
			v[j] = float32(x)
			sum += x * x
		}
		if sum == 0 {
			continue
		}

		inv := float32(1 / math.Sqrt(sum))
		for j := range v {
			v[j] *= inv
		}
		return v
	}
}

// BruteForceSearch ranks every vector against query and returns the positions
// of the best k. Cosine assumes unit-length inputs. Ties keep input order.
func BruteForceSearch(vectors [][]float32, query []float32, k int, metric distance.Metric) []int {
	score := func(v []float32) float32 {
		if metric == distance.MetricCosine {
			return distance.Dot(v, query)
		}
		return distance.SquaredL2(v, query)
	}

	pos := make([]int, len(vectors))
	scores := make([]float32, len(vectors))
	for i, v := range vectors {
		pos[i] = i
		scores[i] = score(v)
	}

	slices.SortStableFunc(pos, func(a, b int) int {
		switch {
		case metric.Better(scores[a], scores[b]):
			return -1
		case metric.Better(scores[b], scores[a]):
			return 1
		default:
			return 0
		}
	})

	return pos[:min(k, len(pos))]
}
