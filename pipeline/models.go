package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/modelcache"
)

// Models resolves embedding models through the cache and their indexes
// through the registry.
type Models struct {
	Manager *modelcache.Manager
	Deps    embed.Deps
	Indexes *index.Registry

	// Cosine ranks every model by cosine similarity instead of its catalog
	// metric, for backends that only support cosine. Embeddings are unit
	// length, so the ranking matches squared L2.
	Cosine bool
}

func (m *Models) validate() error {
	if m == nil || m.Manager == nil || m.Indexes == nil {
		return errors.New("pipeline: manager and index registry are required")
	}
	return nil
}

// Spec returns the catalog entry of an embedding kind.
func (m *Models) Spec(kind embed.Kind) (embed.Spec, error) {
	spec, ok := embed.Lookup(kind)
	if !ok {
		return embed.Spec{}, fmt.Errorf("%w: %d", embed.ErrUnknownKind, int(kind))
	}
	if !spec.IsEmbedding() {
		return embed.Spec{}, fmt.Errorf("%w: %s does not produce embeddings", embed.ErrUnknownKind, spec.Name)
	}
	return spec, nil
}

// Shape returns the dimension and metric of a kind's index.
func (m *Models) Shape(spec embed.Spec) (int, distance.Metric) {
	if m.Cosine {
		return spec.Dimension, distance.MetricCosine
	}
	return spec.Dimension, spec.Metric
}

// Index returns the index of a kind, creating it on first use.
func (m *Models) Index(spec embed.Spec) (index.Index, error) {
	dim, metric := m.Shape(spec)
	return m.Indexes.Ensure(spec.Name, dim, metric)
}

// Acquire leases the embedding model of a kind. The caller releases the lease.
func (m *Models) Acquire(ctx context.Context, spec embed.Spec) (*embed.EmbeddingModel, *modelcache.Lease, error) {
	loader, err := embed.LoaderFor(spec.Kind, m.Deps)
	if err != nil {
		return nil, nil, err
	}
	return modelcache.Acquire[*embed.EmbeddingModel](ctx, m.Manager, spec.Name, loader)
}
