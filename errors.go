package cloudforge

import (
	"errors"
	"fmt"

	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/modelcache"
	"github.com/Silversoul-07/cloudforge/pipeline"
)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("engine is closed")

	// ErrDecode is returned for bytes that are not a supported image.
	ErrDecode = errors.New("cannot decode image")

	// ErrTooLarge is returned for images over the configured byte or pixel
	// limit. It matches ErrDecode.
	ErrTooLarge = fmt.Errorf("%w: image too large", ErrDecode)

	// ErrDownload is returned when IngestURL cannot fetch the image.
	ErrDownload = errors.New("cannot download image")

	// ErrUnsupportedFormat is returned for file names outside the image whitelist.
	ErrUnsupportedFormat = errors.New("unsupported file extension")

	// ErrUnknownModel is returned for model names the engine does not serve.
	ErrUnknownModel = errors.New("unknown model")

	// ErrNoQuery is returned for searches without text or image, or with both.
	ErrNoQuery = errors.New("search needs exactly one of text or image")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrModelLoad is returned when a model cannot be constructed.
	ErrModelLoad = modelcache.ErrModelLoad

	// ErrEmbeddingFailure is returned when inference fails for one item.
	ErrEmbeddingFailure = embed.ErrEmbeddingFailure

	// ErrUnsupportedModality is returned for text queries on image-only models.
	ErrUnsupportedModality = embed.ErrUnsupportedModality

	// ErrNotLoaded is returned when a durable index is queried before Load.
	ErrNotLoaded = index.ErrNotLoaded
)

// ErrDimensionMismatch indicates a vector/index dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, imaging.ErrTooLarge) {
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if errors.Is(err, imaging.ErrDecode) {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if errors.Is(err, embed.ErrUnknownKind) {
		return fmt.Errorf("%w: %w", ErrUnknownModel, err)
	}
	if errors.Is(err, pipeline.ErrNoQuery) || errors.Is(err, pipeline.ErrAmbiguousQuery) {
		return fmt.Errorf("%w: %w", ErrNoQuery, err)
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
