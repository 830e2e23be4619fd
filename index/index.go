package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/Silversoul-07/cloudforge/distance"
)

var (
	// ErrDimension matches every *ErrDimensionMismatch.
	ErrDimension = errors.New("dimension mismatch")

	// ErrNotLoaded is returned when a durable index is queried before Load.
	ErrNotLoaded = errors.New("index not loaded")

	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidVector is returned for vectors that cannot be normalized.
	ErrInvalidVector = errors.New("vector has zero or non-finite norm")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimension.
func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrDimension }

// CheckDimension returns *ErrDimensionMismatch when len(v) != dim.
func CheckDimension(dim int, v []float32) error {
	if len(v) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	return nil
}

// Result is one ranked query hit.
type Result struct {
	// ID is the external identifier the vector was inserted under.
	ID string `json:"id"`

	// Score is the distance (L2) or similarity (cosine) to the query.
	Score float32 `json:"score"`

	// Rank is the 0-based position in best-first order.
	Rank int `json:"rank"`
}

// Index is a fixed-dimension nearest-neighbor store.
type Index interface {
	// Dimension returns the fixed vector length.
	Dimension() int

	// Metric returns the ranking metric.
	Metric() distance.Metric

	// Len returns the number of queryable entries.
	Len() int

	// Insert appends vec under id. The index is unchanged on error.
	// Duplicate identifiers are permitted.
	Insert(ctx context.Context, vec []float32, id string) error

	// Query returns up to k entries nearest to vec, best first.
	// k is clamped to Len; an empty index yields an empty slice.
	Query(ctx context.Context, vec []float32, k int) ([]Result, error)

	// Forget removes every entry stored under id and returns how many
	// entries were removed.
	Forget(ctx context.Context, id string) (int, error)
}

// Durable is an Index whose contents live in external storage.
// Load must run before the first Query; inserts become queryable after Flush.
type Durable interface {
	Index
	Load(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Prepare validates a vector and, for cosine, returns a normalized copy.
// For L2 the input is returned as is.
func Prepare(dim int, metric distance.Metric, vec []float32) ([]float32, error) {
	if err := CheckDimension(dim, vec); err != nil {
		return nil, err
	}
	if metric != distance.MetricCosine {
		return vec, nil
	}

	out, ok := distance.NormalizeL2Copy(vec)
	if !ok {
		return nil, ErrInvalidVector
	}
	return out, nil
}

// Rank converts sorted candidates into results, resolving positions to ids.
func Rank(cands []Candidate, id func(pos int) string) []Result {
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{ID: id(c.Pos), Score: c.Score, Rank: i}
	}
	return out
}
