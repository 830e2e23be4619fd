package embed

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingFailure marks a per-item inference failure. It is an explicit
	// "no result" for one item and never aborts a batch.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrUnsupportedModality is returned for text requests against a model
	// without a text pathway.
	ErrUnsupportedModality = errors.New("unsupported modality")

	// ErrUnknownKind is returned for names outside the catalog.
	ErrUnknownKind = errors.New("unknown model kind")

	// ErrInvalidWeights is returned for malformed scorer weight blobs.
	ErrInvalidWeights = errors.New("invalid model weights")
)

func embeddingFailure(model string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEmbeddingFailure, model, err)
}
