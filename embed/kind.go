package embed

import (
	"fmt"

	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/inference"
)

// Kind enumerates the loadable model variants.
type Kind int

const (
	KindCLIP Kind = iota + 1
	KindSigLIP
	KindDINO
	KindAesthetic
	KindTagger
)

// Spec describes a model kind.
type Spec struct {
	Kind Kind

	// Name is the cache key and the public model name.
	Name string

	// RuntimeModel is the identifier the inference runtime serves it under.
	RuntimeModel string

	// Dimension is the embedding length; zero for non-embedding kinds.
	Dimension int

	// Metric is the distance the model's index ranks by.
	Metric distance.Metric

	Modalities []inference.Modality
}

// IsEmbedding reports whether the kind produces vectors for an index.
func (s Spec) IsEmbedding() bool { return s.Dimension > 0 }

// SupportsText reports whether the kind has a text pathway.
func (s Spec) SupportsText() bool {
	for _, m := range s.Modalities {
		if m == inference.ModalityText {
			return true
		}
	}
	return false
}

var catalog = map[Kind]Spec{
	KindCLIP: {
		Kind:         KindCLIP,
		Name:         "clip",
		RuntimeModel: "openai/clip-vit-large-patch14",
		Dimension:    768,
		Metric:       distance.MetricL2,
		Modalities:   []inference.Modality{inference.ModalityText, inference.ModalityImage},
	},
	KindSigLIP: {
		Kind:         KindSigLIP,
		Name:         "siglip",
		RuntimeModel: "google/siglip-so400m-patch14-384",
		Dimension:    1152,
		Metric:       distance.MetricCosine,
		Modalities:   []inference.Modality{inference.ModalityText, inference.ModalityImage},
	},
	KindDINO: {
		Kind:         KindDINO,
		Name:         "dino",
		RuntimeModel: "facebook/dinov2-large",
		Dimension:    1024,
		Metric:       distance.MetricL2,
		Modalities:   []inference.Modality{inference.ModalityImage},
	},
	KindAesthetic: {
		Kind:       KindAesthetic,
		Name:       "aesthetic",
		Modalities: []inference.Modality{inference.ModalityImage},
	},
	KindTagger: {
		Kind:         KindTagger,
		Name:         "tagger",
		RuntimeModel: "fancyfeast/joytag",
		Modalities:   []inference.Modality{inference.ModalityImage},
	},
}

// Lookup returns the Spec of a kind.
func Lookup(k Kind) (Spec, bool) {
	s, ok := catalog[k]
	return s, ok
}

// String returns the model name.
func (k Kind) String() string {
	if s, ok := catalog[k]; ok {
		return s.Name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a model name.
func ParseKind(name string) (Kind, error) {
	for k, s := range catalog {
		if s.Name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// EmbeddingKinds returns the kinds that produce index vectors, in Kind order.
func EmbeddingKinds() []Kind {
	return []Kind{KindCLIP, KindSigLIP, KindDINO}
}
