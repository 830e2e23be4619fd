// Package resource bounds the memory held by loaded models and the number of
// inference calls in flight.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for memory held by loaded models.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentInference is the maximum number of inference calls
	// (embedding, tagging, scoring) running at once.
	// If 0, defaults to 4.
	MaxConcurrentInference int64

	// InferenceRequestsPerSec caps the rate at which inference calls start.
	// If 0, unlimited.
	InferenceRequestsPerSec float64
}

// Controller manages process-wide inference resources.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	inferSem *semaphore.Weighted
	inflight atomic.Int64

	// Rate
	limiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentInference <= 0 {
		cfg.MaxConcurrentInference = 4
	}

	c := &Controller{
		cfg:      cfg,
		inferSem: semaphore.NewWeighted(cfg.MaxConcurrentInference),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.InferenceRequestsPerSec > 0 {
		burst := int(cfg.InferenceRequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.InferenceRequestsPerSec), burst)
	}

	return c
}

// TryAcquireMemory reserves memory for a model being loaded without blocking.
// It returns false if the hard limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// acquireInference waits for the rate limiter and an inference slot.
// Every successful call must be paired with releaseInference.
func (c *Controller) acquireInference(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.inferSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inflight.Add(1)
	return nil
}

func (c *Controller) releaseInference() {
	if c == nil {
		return
	}
	c.inflight.Add(-1)
	c.inferSem.Release(1)
}

// InFlight returns the number of inference calls currently holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inflight.Load()
}

// Do runs fn while holding an inference slot, after waiting for the rate
// limiter.
func (c *Controller) Do(ctx context.Context, fn func() error) error {
	if err := c.acquireInference(ctx); err != nil {
		return err
	}
	defer c.releaseInference()
	return fn()
}
