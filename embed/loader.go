package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/modelcache"
	"github.com/Silversoul-07/cloudforge/resource"
)

// Default blob names of model assets.
const (
	DefaultAestheticWeights = "models/aesthetic/mlp.bin"
	DefaultTagVocabulary    = "models/joytag/top_tags.txt"
)

// Deps are the collaborators loaders need.
type Deps struct {
	Runtime   inference.Runtime
	Resources *resource.Controller

	// Assets holds the aesthetic weights and the tag vocabulary.
	Assets blobstore.BlobStore

	// Manager provides the CLIP model to the aesthetic scorer.
	Manager *modelcache.Manager

	// AestheticWeights and TagVocabulary override the asset blob names.
	AestheticWeights string
	TagVocabulary    string
}

func (d Deps) aestheticWeights() string {
	if d.AestheticWeights != "" {
		return d.AestheticWeights
	}
	return DefaultAestheticWeights
}

func (d Deps) tagVocabulary() string {
	if d.TagVocabulary != "" {
		return d.TagVocabulary
	}
	return DefaultTagVocabulary
}

// LoaderFor returns the cache loader of a kind.
func LoaderFor(kind Kind, deps Deps) (modelcache.Loader, error) {
	spec, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	if deps.Runtime == nil {
		return nil, errors.New("embed: runtime is required")
	}

	switch kind {
	case KindCLIP, KindSigLIP, KindDINO:
		return func(ctx context.Context) (modelcache.Model, error) {
			return loadEmbeddingModel(ctx, spec, deps)
		}, nil

	case KindAesthetic:
		if deps.Assets == nil || deps.Manager == nil {
			return nil, errors.New("embed: aesthetic scorer needs assets and a model manager")
		}
		clipLoader, err := LoaderFor(KindCLIP, deps)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (modelcache.Model, error) {
			return loadAestheticScorer(ctx, deps, clipLoader)
		}, nil

	case KindTagger:
		if deps.Assets == nil {
			return nil, errors.New("embed: tagger needs an asset store")
		}
		return func(ctx context.Context) (modelcache.Model, error) {
			return loadTagger(ctx, spec, deps)
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

func loadEmbeddingModel(ctx context.Context, spec Spec, deps Deps) (*EmbeddingModel, error) {
	info, err := deps.Runtime.Info(ctx, spec.RuntimeModel)
	if err != nil {
		return nil, err
	}
	if info.Dimension != spec.Dimension {
		return nil, fmt.Errorf("%s serves %d-dimensional embeddings, want %d",
			spec.RuntimeModel, info.Dimension, spec.Dimension)
	}
	if !info.Supports(inference.ModalityImage) {
		return nil, fmt.Errorf("%s has no image encoder", spec.RuntimeModel)
	}
	if spec.SupportsText() && !info.Supports(inference.ModalityText) {
		return nil, fmt.Errorf("%s has no text encoder", spec.RuntimeModel)
	}

	return &EmbeddingModel{
		spec:      spec,
		runtime:   deps.Runtime,
		resources: deps.Resources,
		size:      info.SizeBytes,
	}, nil
}

func loadAestheticScorer(ctx context.Context, deps Deps, clipLoader modelcache.Loader) (*AestheticScorer, error) {
	blob, err := blobstore.ReadAll(ctx, deps.Assets, deps.aestheticWeights())
	if err != nil {
		return nil, fmt.Errorf("read aesthetic weights: %w", err)
	}

	mlp, err := DecodeMLP(blob)
	if err != nil {
		return nil, err
	}

	clip, _ := Lookup(KindCLIP)
	if mlp.InputSize() != clip.Dimension {
		return nil, fmt.Errorf("%w: scorer input %d does not match clip dimension %d",
			ErrInvalidWeights, mlp.InputSize(), clip.Dimension)
	}

	return &AestheticScorer{
		mlp:        mlp,
		manager:    deps.Manager,
		clipLoader: clipLoader,
	}, nil
}

func loadTagger(ctx context.Context, spec Spec, deps Deps) (*Tagger, error) {
	data, err := blobstore.ReadAll(ctx, deps.Assets, deps.tagVocabulary())
	if err != nil {
		return nil, fmt.Errorf("read tag vocabulary: %w", err)
	}

	vocab, err := ParseVocabulary(data)
	if err != nil {
		return nil, err
	}

	info, err := deps.Runtime.Info(ctx, spec.RuntimeModel)
	if err != nil {
		return nil, err
	}

	size := info.ImageSize
	if size <= 0 {
		size = DefaultTagImageSize
	}

	return &Tagger{
		runtimeModel: spec.RuntimeModel,
		imageSize:    size,
		vocab:        vocab,
		runtime:      deps.Runtime,
		resources:    deps.Resources,
	}, nil
}
