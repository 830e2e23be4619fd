package embed

import (
	"context"
	"fmt"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/resource"
)

// EmbeddingModel maps images (and text, when supported) into a unit-normalized
// vector space of fixed dimension.
type EmbeddingModel struct {
	spec      Spec
	runtime   inference.Runtime
	resources *resource.Controller
	size      int64
}

// Spec returns the model's catalog entry.
func (m *EmbeddingModel) Spec() Spec { return m.spec }

// Dimension returns the embedding length.
func (m *EmbeddingModel) Dimension() int { return m.spec.Dimension }

// SupportsText reports whether EmbedText is available.
func (m *EmbeddingModel) SupportsText() bool { return m.spec.SupportsText() }

// EmbedImage returns the normalized embedding of img. Failures are wrapped in
// ErrEmbeddingFailure.
func (m *EmbeddingModel) EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error) {
	var raw []float32
	err := m.resources.Do(ctx, func() error {
		var err error
		raw, err = m.runtime.EmbedImage(ctx, m.spec.RuntimeModel, img.Bytes())
		return err
	})
	if err != nil {
		return nil, embeddingFailure(m.spec.Name, err)
	}

	return m.finish(raw)
}

// EmbedText returns the normalized embedding of text.
func (m *EmbeddingModel) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !m.SupportsText() {
		return nil, fmt.Errorf("%w: %s has no text encoder", ErrUnsupportedModality, m.spec.Name)
	}

	var raw []float32
	err := m.resources.Do(ctx, func() error {
		var err error
		raw, err = m.runtime.EmbedText(ctx, m.spec.RuntimeModel, text)
		return err
	})
	if err != nil {
		return nil, embeddingFailure(m.spec.Name, err)
	}

	return m.finish(raw)
}

func (m *EmbeddingModel) finish(raw []float32) ([]float32, error) {
	if len(raw) != m.spec.Dimension {
		return nil, embeddingFailure(m.spec.Name,
			fmt.Errorf("runtime returned %d values, want %d", len(raw), m.spec.Dimension))
	}

	vec, ok := distance.NormalizeL2Copy(raw)
	if !ok {
		return nil, embeddingFailure(m.spec.Name, fmt.Errorf("degenerate embedding"))
	}

	return vec, nil
}

// SizeBytes reports the server-side footprint announced by the runtime.
func (m *EmbeddingModel) SizeBytes() int64 { return m.size }

// Close releases the model. Weights live in the runtime; nothing is held here.
func (m *EmbeddingModel) Close() error { return nil }
