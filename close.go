package cloudforge

import (
	"context"
	"errors"
)

// Close flushes durable state, unloads every model and closes the indexes.
// It is safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}

	e.closeOnce.Do(func() {
		e.closed.Store(true)

		var errs []error
		if err := e.flush(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := e.manager.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.indexes.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})

	return e.closeErr
}
