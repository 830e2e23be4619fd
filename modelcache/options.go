package modelcache

import (
	"log/slog"
	"time"

	"github.com/Silversoul-07/cloudforge/resource"
)

// DefaultIdleTimeout is the idle window used when none is configured.
const DefaultIdleTimeout = 5 * time.Minute

// Observer receives cache lifecycle events. Implementations must be cheap and
// must not call back into the Manager.
type Observer interface {
	ModelLoaded(name string, duration time.Duration, err error)
	ModelEvicted(name string, reason string)
}

// Options configures a Manager.
type Options struct {
	// IdleTimeout is how long an entry may go unused before the sweep evicts
	// it. Negative disables idle eviction.
	IdleTimeout time.Duration

	// SweepInterval is the sleep between eviction sweeps.
	// Defaults to IdleTimeout.
	SweepInterval time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives load/unload/eviction logs. Defaults to a discard logger.
	Logger *slog.Logger

	// Resources accounts the memory of models implementing Sizer.
	Resources *resource.Controller

	// Observer is notified of loads and evictions.
	Observer Observer
}

// WithIdleTimeout sets the idle window.
func WithIdleTimeout(d time.Duration) func(*Options) {
	return func(o *Options) { o.IdleTimeout = d }
}

// WithSweepInterval sets the pause between sweeps.
func WithSweepInterval(d time.Duration) func(*Options) {
	return func(o *Options) { o.SweepInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) func(*Options) {
	return func(o *Options) { o.Clock = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithResources sets the resource controller used for memory accounting.
func WithResources(c *resource.Controller) func(*Options) {
	return func(o *Options) { o.Resources = c }
}

// WithObserver sets the lifecycle observer.
func WithObserver(obs Observer) func(*Options) {
	return func(o *Options) { o.Observer = obs }
}

type noopObserver struct{}

func (noopObserver) ModelLoaded(string, time.Duration, error) {}
func (noopObserver) ModelEvicted(string, string)              {}
