package modelcache

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad matches every *LoadError.
	ErrModelLoad = errors.New("model load failed")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("model cache closed")

	// ErrMemoryLimit is returned when a freshly loaded model does not fit the
	// configured memory budget even after idle models were evicted.
	ErrMemoryLimit = errors.New("model memory limit exceeded")

	// ErrTypeMismatch is returned by Acquire when the cached instance is not
	// of the requested type.
	ErrTypeMismatch = errors.New("cached model has unexpected type")
)

// LoadError reports a failed loader invocation.
//
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	Name  string
	cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Name, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

// Is reports whether target is ErrModelLoad.
func (e *LoadError) Is(target error) bool { return target == ErrModelLoad }
