// Package flat provides an exact, in-process nearest-neighbor index.
package flat

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/index"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// compactMinDeleted is the tombstone count below which Forget never compacts.
const compactMinDeleted = 64

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and queries.
	Dimension int

	// Metric ranks results. Cosine normalizes stored vectors and queries.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Metric: distance.MetricL2,
}

// Flat stores vectors contiguously with an aligned identifier slice:
// position i of ids belongs to vectors[i*dim:(i+1)*dim]. Forgotten positions
// are tombstoned in a bitmap and reclaimed by compaction.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	metric  distance.Metric
	score   distance.Func
	vectors []float32
	ids     []string
	deleted *roaring.Bitmap
}

// New creates a new instance of the flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, errors.New("flat: dimension must be positive")
	}

	score, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		dim:     opts.Dimension,
		metric:  opts.Metric,
		score:   score,
		deleted: roaring.New(),
	}, nil
}

// Dimension implements index.Index.
func (f *Flat) Dimension() int { return f.dim }

// Metric implements index.Index.
func (f *Flat) Metric() distance.Metric { return f.metric }

// Len returns the number of live entries.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.ids) - int(f.deleted.GetCardinality())
}

// Insert implements index.Index. The vector is copied.
func (f *Flat) Insert(_ context.Context, vec []float32, id string) error {
	prepared, err := index.Prepare(f.dim, f.metric, vec)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = append(f.vectors, prepared...)
	f.ids = append(f.ids, id)

	return nil
}

// Query implements index.Index.
func (f *Flat) Query(ctx context.Context, vec []float32, k int) ([]index.Result, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	q, err := index.Prepare(f.dim, f.metric, vec)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.ids)
	live := n - int(f.deleted.GetCardinality())
	if live == 0 {
		return []index.Result{}, nil
	}
	if k > live {
		k = live
	}

	top := index.NewTopK(k, f.metric)
	for pos := 0; pos < n; pos++ {
		if pos%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if f.deleted.Contains(uint32(pos)) {
			continue
		}
		top.Offer(pos, f.score(f.vectors[pos*f.dim:(pos+1)*f.dim], q))
	}

	return index.Rank(top.Sorted(), func(pos int) string { return f.ids[pos] }), nil
}

// Forget implements index.Index.
func (f *Flat) Forget(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for pos, have := range f.ids {
		if have == id && !f.deleted.Contains(uint32(pos)) {
			f.deleted.Add(uint32(pos))
			removed++
		}
	}

	deleted := int(f.deleted.GetCardinality())
	if deleted >= compactMinDeleted && deleted*2 >= len(f.ids) {
		f.compactLocked()
	}

	return removed, nil
}

// Compact drops tombstoned entries, preserving insertion order.
func (f *Flat) Compact() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.compactLocked()
}

func (f *Flat) compactLocked() {
	if f.deleted.IsEmpty() {
		return
	}

	live := len(f.ids) - int(f.deleted.GetCardinality())
	vectors := make([]float32, 0, live*f.dim)
	ids := make([]string, 0, live)

	for pos, id := range f.ids {
		if f.deleted.Contains(uint32(pos)) {
			continue
		}
		vectors = append(vectors, f.vectors[pos*f.dim:(pos+1)*f.dim]...)
		ids = append(ids, id)
	}

	f.vectors = vectors
	f.ids = ids
	f.deleted.Clear()
}

// All iterates live entries in insertion order. The yielded vectors alias
// index storage and must not be modified; the read lock is held throughout.
func (f *Flat) All() iter.Seq2[string, []float32] {
	return func(yield func(string, []float32) bool) {
		f.mu.RLock()
		defer f.mu.RUnlock()

		for pos, id := range f.ids {
			if f.deleted.Contains(uint32(pos)) {
				continue
			}
			if !yield(id, f.vectors[pos*f.dim:(pos+1)*f.dim]) {
				return
			}
		}
	}
}

// Stats describes the index storage.
type Stats struct {
	Positions  int // stored entries including tombstones
	Tombstones int
	Bytes      int64
}

// Stats returns storage statistics.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Stats{
		Positions:  len(f.ids),
		Tombstones: int(f.deleted.GetCardinality()),
		Bytes:      int64(len(f.vectors)) * 4,
	}
}
