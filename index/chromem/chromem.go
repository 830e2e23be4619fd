// Package chromem adapts an embedded chromem-go collection to index.Index.
//
// chromem-go ranks by cosine similarity only and requires result counts no
// larger than the collection, so the adapter fixes the metric and clamps k.
// Document IDs are random; the caller's identifier lives in metadata so that
// duplicates behave like they do in the flat index.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	chromemgo "github.com/philippgille/chromem-go"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/index"
)

var _ index.Index = (*Index)(nil)

// metaID is the metadata key holding the caller's identifier.
const metaID = "id"

// errNoEmbedder is returned when chromem-go asks for a text embedding.
// Every document and query carries its own vector.
var errNoEmbedder = errors.New("chromem: documents must carry embeddings")

// Options configures the adapter.
type Options struct {
	Dimension int

	// Dir enables on-disk persistence. Empty keeps the collection in memory.
	Dir string

	// Compress gzips persisted documents.
	Compress bool
}

// Index is a chromem-go backed cosine index.
//
// Deletions hold mu exclusively so that a query's clamped k never exceeds
// the collection size seen by chromem-go.
type Index struct {
	dim int
	db  *chromemgo.DB
	col *chromemgo.Collection

	mu sync.RWMutex
}

// New opens or creates the collection called name.
func New(name string, optFns ...func(*Options)) (*Index, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, errors.New("chromem: dimension must be positive")
	}

	var db *chromemgo.DB
	if opts.Dir == "" {
		db = chromemgo.NewDB()
	} else {
		var err error
		db, err = chromemgo.NewPersistentDB(opts.Dir, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent DB: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(name, nil, chromemgo.EmbeddingFunc(noEmbedder))
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	return &Index{dim: opts.Dimension, db: db, col: col}, nil
}

func noEmbedder(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Dimension implements index.Index.
func (x *Index) Dimension() int { return x.dim }

// Metric implements index.Index. It is always cosine.
func (x *Index) Metric() distance.Metric { return distance.MetricCosine }

// Len implements index.Index.
func (x *Index) Len() int { return x.col.Count() }

// Insert implements index.Index.
func (x *Index) Insert(ctx context.Context, vec []float32, id string) error {
	prepared, err := index.Prepare(x.dim, distance.MetricCosine, vec)
	if err != nil {
		return err
	}

	doc := chromemgo.Document{
		ID:        uuid.NewString(),
		Metadata:  map[string]string{metaID: id},
		Embedding: prepared,
		Content:   id,
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	return nil
}

// Query implements index.Index.
func (x *Index) Query(ctx context.Context, vec []float32, k int) ([]index.Result, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	q, err := index.Prepare(x.dim, distance.MetricCosine, vec)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.col.Count()
	if n == 0 {
		return []index.Result{}, nil
	}
	if k > n {
		k = n
	}

	found, err := x.col.QueryEmbedding(ctx, q, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]index.Result, len(found))
	for i, r := range found {
		out[i] = index.Result{ID: r.Metadata[metaID], Score: r.Similarity, Rank: i}
	}

	return out, nil
}

// Forget implements index.Index.
func (x *Index) Forget(ctx context.Context, id string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	before := x.col.Count()
	if err := x.col.Delete(ctx, map[string]string{metaID: id}, nil); err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return before - x.col.Count(), nil
}
