package inference

import (
	"context"
	"errors"
	"fmt"
)

// Modality is an input kind a model accepts.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Info describes a model served by a Runtime.
type Info struct {
	Name       string     `json:"name"`
	Dimension  int        `json:"embedding_dim"`
	ImageSize  int        `json:"image_size,omitempty"`
	Modalities []Modality `json:"modalities,omitempty"`
	SizeBytes  int64      `json:"size,omitempty"`
}

// Supports reports whether the model accepts the modality.
func (i Info) Supports(m Modality) bool {
	for _, have := range i.Modalities {
		if have == m {
			return true
		}
	}

	return false
}

// Runtime executes model forward passes.
type Runtime interface {
	// Info returns the metadata of a model, loading it server-side if needed.
	Info(ctx context.Context, model string) (Info, error)

	// EmbedImage returns the raw (not normalized) embedding of an encoded image.
	EmbedImage(ctx context.Context, model string, image []byte) ([]float32, error)

	// EmbedText returns the raw (not normalized) embedding of a text.
	EmbedText(ctx context.Context, model string, text string) ([]float32, error)

	// Infer runs a forward pass over a dense float32 tensor of the given shape
	// and returns the flattened output.
	Infer(ctx context.Context, model string, input []float32, shape []int) ([]float32, error)
}

var (
	// ErrUnavailable is returned while the circuit breaker rejects requests.
	ErrUnavailable = errors.New("inference runtime unavailable")

	// ErrBadResponse is returned when the server answers with an unusable payload.
	ErrBadResponse = errors.New("inference runtime returned a malformed response")
)

// APIError is a non-2xx answer from the model server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference: %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure is on the server side.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
