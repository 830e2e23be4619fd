package modelcache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Silversoul-07/cloudforge/resource"
)

// Model is a loaded, releasable model instance.
type Model interface {
	Close() error
}

// Sizer is implemented by models that can report their resident size.
type Sizer interface {
	SizeBytes() int64
}

// Loader constructs a model instance. It is invoked at most once per cache
// miss, never concurrently with another loader.
type Loader func(ctx context.Context) (Model, error)

// Eviction reasons passed to Observer.ModelEvicted.
const (
	ReasonIdle     = "idle"
	ReasonUnload   = "unload"
	ReasonPressure = "memory_pressure"
)

type entry struct {
	name       string
	model      Model
	size       int64
	lastAccess time.Time
	refs       int
	removed    bool // no longer in the map; close on last release
	closed     bool
}

// Manager caches models by name.
//
// State transitions (insert, unload, eviction) are serialized through mu.
// Constructions are additionally serialized through loadMu so that at most
// one heavyweight loader runs at any time, and deduplicated per name through
// a singleflight group so concurrent callers share a single load and its
// outcome.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	loadMu sync.Mutex
	group  singleflight.Group

	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	resources     *resource.Controller
	observer      Observer

	// loadCtx bounds every construction; Close cancels it.
	loadCtx    context.Context
	cancelLoad context.CancelFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Manager. When the idle timeout is positive a background
// goroutine sweeps idle entries every SweepInterval until Close.
func New(optFns ...func(*Options)) *Manager {
	opts := Options{IdleTimeout: DefaultIdleTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.IdleTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	m := &Manager{
		entries:       make(map[string]*entry),
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		now:           opts.Clock,
		logger:        opts.Logger,
		resources:     opts.Resources,
		observer:      opts.Observer,
		stop:          make(chan struct{}),
	}
	m.loadCtx, m.cancelLoad = context.WithCancel(context.Background())

	if m.idleTimeout > 0 {
		m.wg.Add(1)
		go m.evictLoop()
	}

	return m
}

// Load returns a lease on the model registered under name, invoking loader
// if it is not cached. The loader's failure is returned to every caller that
// was waiting on the same load and nothing is cached.
//
// The loader runs detached from the cancellation of the caller that started
// it: a caller whose ctx ends stops waiting, but the shared load continues
// for the remaining waiters until it finishes or the manager is closed.
func (m *Manager) Load(ctx context.Context, name string, loader Loader) (*Lease, error) {
	for {
		if lease, err := m.lease(name); lease != nil || err != nil {
			return lease, err
		}

		ch := m.group.DoChan(name, func() (any, error) {
			lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			defer cancel()
			stop := context.AfterFunc(m.loadCtx, cancel)
			defer stop()

			return m.construct(lctx, name, loader)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
		// The entry was inserted; lease it on the next iteration. If it was
		// unloaded in between, the loop loads it again.
	}
}

// lease returns a lease on a cached entry, or nil if none is cached.
func (m *Manager) lease(name string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.entries[name]
	if !ok {
		return nil, nil
	}

	e.refs++
	e.lastAccess = m.now()

	return &Lease{m: m, e: e}, nil
}

func (m *Manager) construct(ctx context.Context, name string, loader Loader) (any, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := m.entries[name]; ok {
		m.mu.Unlock()
		return nil, nil
	}
	m.mu.Unlock()

	start := time.Now()
	model, err := loader(ctx)
	if err == nil && model == nil {
		err = fmt.Errorf("loader returned nil model")
	}
	if err != nil {
		lerr := &LoadError{Name: name, cause: err}
		m.logger.Error("Model load failed", "model", name, "error", err)
		m.observer.ModelLoaded(name, time.Since(start), lerr)
		return nil, lerr
	}

	var size int64
	if s, ok := model.(Sizer); ok {
		size = s.SizeBytes()
	}

	if err := m.reserve(name, size); err != nil {
		_ = model.Close()
		lerr := &LoadError{Name: name, cause: err}
		m.logger.Error("Model load failed", "model", name, "error", err)
		m.observer.ModelLoaded(name, time.Since(start), lerr)
		return nil, lerr
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.resources.ReleaseMemory(size)
		_ = model.Close()
		return nil, ErrClosed
	}
	m.entries[name] = &entry{
		name:       name,
		model:      model,
		size:       size,
		lastAccess: m.now(),
	}
	m.mu.Unlock()

	elapsed := time.Since(start)
	m.logger.Info("Model loaded", "model", name, "duration", elapsed, "bytes", size)
	m.observer.ModelLoaded(name, elapsed, nil)

	return nil, nil
}

// reserve accounts size bytes against the memory budget, evicting idle,
// unleased entries (least recently used first) until the new model fits.
func (m *Manager) reserve(name string, size int64) error {
	if size <= 0 || m.resources.TryAcquireMemory(size) {
		return nil
	}

	for {
		victim := m.oldestIdle()
		if victim == nil {
			return fmt.Errorf("%w: %d bytes for %q", ErrMemoryLimit, size, name)
		}

		m.closeEntry(victim, ReasonPressure)

		if m.resources.TryAcquireMemory(size) {
			return nil
		}
	}
}

func (m *Manager) oldestIdle() *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victim *entry
	for _, e := range m.entries {
		if e.refs > 0 {
			continue
		}
		if victim == nil || e.lastAccess.Before(victim.lastAccess) {
			victim = e
		}
	}

	if victim != nil {
		delete(m.entries, victim.name)
		victim.removed = true
	}

	return victim
}

// Unload removes the named model. The instance is closed immediately when no
// lease is outstanding, otherwise when the last lease is released. Unloading
// a name that is not cached is a no-op.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.entries, name)
	e.removed = true
	closeNow := e.refs == 0
	m.mu.Unlock()

	if closeNow {
		return m.closeEntry(e, ReasonUnload)
	}

	m.logger.Info("Model unloaded", "model", name, "deferred", true)

	return nil
}

// UnloadAll unloads every cached model.
func (m *Manager) UnloadAll() error {
	var firstErr error
	for _, name := range m.Loaded() {
		if err := m.Unload(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Sweep evicts every unleased entry whose last access is older than the idle
// timeout, relative to now. It returns the evicted names.
func (m *Manager) Sweep(now time.Time) []string {
	if m.idleTimeout <= 0 {
		return nil
	}

	m.mu.Lock()
	var idle []*entry
	for name, e := range m.entries {
		if e.refs > 0 || now.Sub(e.lastAccess) <= m.idleTimeout {
			continue
		}
		delete(m.entries, name)
		e.removed = true
		idle = append(idle, e)
	}
	m.mu.Unlock()

	names := make([]string, 0, len(idle))
	for _, e := range idle {
		_ = m.closeEntry(e, ReasonIdle)
		names = append(names, e.name)
	}
	sort.Strings(names)

	return names
}

func (m *Manager) evictLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// closeEntry closes an entry that has already been removed from the map.
func (m *Manager) closeEntry(e *entry, reason string) error {
	m.mu.Lock()
	if e.closed {
		m.mu.Unlock()
		return nil
	}
	e.closed = true
	m.mu.Unlock()

	err := e.model.Close()
	m.resources.ReleaseMemory(e.size)

	if err != nil {
		m.logger.Warn("Model close failed", "model", e.name, "reason", reason, "error", err)
	} else {
		m.logger.Info("Model evicted", "model", e.name, "reason", reason)
	}
	m.observer.ModelEvicted(e.name, reason)

	return err
}

func (m *Manager) release(e *entry) {
	m.mu.Lock()
	e.refs--
	e.lastAccess = m.now()
	closeNow := e.removed && e.refs == 0
	m.mu.Unlock()

	if closeNow {
		_ = m.closeEntry(e, ReasonUnload)
	}
}

// IsLoaded reports whether name is currently cached.
func (m *Manager) IsLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[name]

	return ok
}

// Loaded returns the sorted names of cached models.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Stats describes the cache contents.
type Stats struct {
	Loaded      int
	Leased      int
	MemoryBytes int64
}

// Stats returns a snapshot of the cache.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, e := range m.entries {
		s.Loaded++
		s.MemoryBytes += e.size
		if e.refs > 0 {
			s.Leased++
		}
	}

	return s
}

// Close stops the eviction loop and unloads every model. Loads attempted
// afterwards fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancelLoad()
	close(m.stop)
	m.wg.Wait()

	return m.UnloadAll()
}

// Lease pins a cached model until Release.
type Lease struct {
	m    *Manager
	e    *entry
	once sync.Once
}

// Model returns the leased instance.
func (l *Lease) Model() Model { return l.e.model }

// Name returns the cache key.
func (l *Lease) Name() string { return l.e.name }

// Release returns the lease. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.release(l.e) })
}

// Acquire loads name and asserts the instance to T.
func Acquire[T Model](ctx context.Context, m *Manager, name string, loader Loader) (T, *Lease, error) {
	var zero T

	lease, err := m.Load(ctx, name, loader)
	if err != nil {
		return zero, nil, err
	}

	model, ok := lease.Model().(T)
	if !ok {
		lease.Release()
		return zero, nil, fmt.Errorf("%w: %q is %T", ErrTypeMismatch, name, lease.Model())
	}

	return model, lease, nil
}
