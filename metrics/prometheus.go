// Package metrics exports engine metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cloudforge"

// Prometheus records engine operations as Prometheus metrics. It implements
// cloudforge.MetricsCollector.
type Prometheus struct {
	ingestTotal    *prometheus.CounterVec
	ingestFailures *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	searchTotal    *prometheus.CounterVec
	searchFailures *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec

	loadTotal    *prometheus.CounterVec
	loadFailures *prometheus.CounterVec
	loadLatency  *prometheus.HistogramVec

	evictionsTotal *prometheus.CounterVec
	modelsLoaded   prometheus.Gauge
}

// NewPrometheus registers the collectors with reg. A nil reg uses the
// default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Prometheus{
		ingestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of per-model image ingestions",
		}, []string{"model"}),
		ingestFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Total number of failed per-model image ingestions",
		}, []string{"model"}),
		ingestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Per-model ingestion latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),

		searchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Total number of searches",
		}, []string{"model"}),
		searchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_failures_total",
			Help:      "Total number of failed searches",
		}, []string{"model"}),
		searchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),

		loadTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Total number of model constructions",
		}, []string{"model"}),
		loadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_load_failures_total",
			Help:      "Total number of failed model constructions",
		}, []string{"model"}),
		loadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Model construction latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model"}),

		evictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_evictions_total",
			Help:      "Total number of models removed from the cache",
		}, []string{"model", "reason"}),
		modelsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "Current number of cached models",
		}),
	}
}

// RecordIngest implements cloudforge.MetricsCollector.
func (p *Prometheus) RecordIngest(model string, duration time.Duration, err error) {
	p.ingestTotal.WithLabelValues(model).Inc()
	p.ingestLatency.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		p.ingestFailures.WithLabelValues(model).Inc()
	}
}

// RecordSearch implements cloudforge.MetricsCollector.
func (p *Prometheus) RecordSearch(model string, _ int, duration time.Duration, err error) {
	p.searchTotal.WithLabelValues(model).Inc()
	p.searchLatency.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		p.searchFailures.WithLabelValues(model).Inc()
	}
}

// RecordModelLoad implements cloudforge.MetricsCollector.
func (p *Prometheus) RecordModelLoad(model string, duration time.Duration, err error) {
	p.loadTotal.WithLabelValues(model).Inc()
	p.loadLatency.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		p.loadFailures.WithLabelValues(model).Inc()
		return
	}
	p.modelsLoaded.Inc()
}

// RecordEviction implements cloudforge.MetricsCollector.
func (p *Prometheus) RecordEviction(model, reason string) {
	p.evictionsTotal.WithLabelValues(model, reason).Inc()
	p.modelsLoaded.Dec()
}
