package cloudforge

import (
	"sync/atomic"
	"time"

	"github.com/Silversoul-07/cloudforge/modelcache"
)

// MetricsCollector defines an interface for collecting operational metrics.
// The metrics package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordIngest is called once per model for every ingested image.
	RecordIngest(model string, duration time.Duration, err error)

	// RecordSearch is called after each search. Color searches report the
	// model "color".
	RecordSearch(model string, k int, duration time.Duration, err error)

	// RecordModelLoad is called after each cache construction.
	RecordModelLoad(model string, duration time.Duration, err error)

	// RecordEviction is called when a model leaves the cache.
	RecordEviction(model, reason string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(string, time.Duration, error)      {}
func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordModelLoad(string, time.Duration, error)   {}
func (NoopMetricsCollector) RecordEviction(string, string)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount      atomic.Int64
	IngestErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	EvictionCount    atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(_ string, _ time.Duration, err error) {
	b.IngestCount.Add(1)
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ string, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordModelLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordModelLoad(_ string, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(string, string) {
	b.EvictionCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:    b.IngestCount.Load(),
		IngestErrors:   b.IngestErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		EvictionCount:  b.EvictionCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount    int64
	IngestErrors   int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	LoadCount      int64
	LoadErrors     int64
	EvictionCount  int64
}

// cacheObserver forwards model cache events to metrics and the logger.
type cacheObserver struct {
	metrics MetricsCollector
	logger  *Logger
}

var _ modelcache.Observer = cacheObserver{}

func (o cacheObserver) ModelLoaded(name string, took time.Duration, err error) {
	o.metrics.RecordModelLoad(name, took, err)
	o.logger.LogModelLoad(name, took, err)
}

func (o cacheObserver) ModelEvicted(name, reason string) {
	o.metrics.RecordEviction(name, reason)
	if reason != modelcache.ReasonUnload {
		o.logger.LogEviction(name, reason)
	}
}
