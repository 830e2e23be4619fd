package index

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Silversoul-07/cloudforge/distance"
)

// Factory creates the index of a model.
type Factory func(name string, dim int, metric distance.Metric) (Index, error)

// Registry holds one index per model name.
type Registry struct {
	mu      sync.RWMutex
	factory Factory
	indices map[string]Index
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		indices: make(map[string]Index),
	}
}

// Get returns the index of a model.
func (r *Registry) Get(name string) (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.indices[name]
	return idx, ok
}

// Ensure returns the index of a model, creating it on first use. An existing
// index with a different dimension or metric is an error.
func (r *Registry) Ensure(name string, dim int, metric distance.Metric) (Index, error) {
	if idx, ok := r.Get(name); ok {
		return idx, checkShape(name, idx, dim, metric)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.indices[name]; ok {
		return idx, checkShape(name, idx, dim, metric)
	}

	idx, err := r.factory(name, dim, metric)
	if err != nil {
		return nil, fmt.Errorf("create index %q: %w", name, err)
	}
	r.indices[name] = idx

	return idx, nil
}

func checkShape(name string, idx Index, dim int, metric distance.Metric) error {
	if idx.Dimension() != dim {
		return fmt.Errorf("index %q: %w", name, &ErrDimensionMismatch{Expected: idx.Dimension(), Actual: dim})
	}
	if idx.Metric() != metric {
		return fmt.Errorf("index %q uses %s, not %s", name, idx.Metric(), metric)
	}
	return nil
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.indices))
	for name := range r.indices {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Each calls fn for every index in name order, stopping at the first error.
func (r *Registry) Each(fn func(name string, idx Index) error) error {
	for _, name := range r.Names() {
		idx, _ := r.Get(name)
		if err := fn(name, idx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every index implementing io.Closer.
func (r *Registry) Close() error {
	var firstErr error
	_ = r.Each(func(_ string, idx Index) error {
		if c, ok := idx.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return nil
	})
	return firstErr
}
