package cloudforge

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/codec"
	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/index/chromem"
	"github.com/Silversoul-07/cloudforge/index/durable"
	"github.com/Silversoul-07/cloudforge/index/flat"
	"github.com/Silversoul-07/cloudforge/internal/compression"
	"github.com/Silversoul-07/cloudforge/resource"
)

// DefaultMediaPrefix is the object prefix ingested images are stored under.
const DefaultMediaPrefix = "media/"

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	kinds            []embed.Kind
	idleTimeout      time.Duration
	resources        *resource.Controller
	assets           blobstore.BlobStore
	aestheticWeights string
	tagVocabulary    string
	indexFactory     index.Factory
	cosineOnly       bool
	mediaPrefix      string
	colorCorpus      string
	parallelism      int
	durable          *durableConfig
	limits           imaging.Limits
	httpClient       *http.Client
}

type durableConfig struct {
	store  blobstore.BlobStore
	prefix string
	ct     compression.Type
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() options {
	return options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		kinds:            embed.EmbeddingKinds(),
		mediaPrefix:      DefaultMediaPrefix,
		indexFactory:     FlatIndexes(),
		limits:           imaging.DefaultLimits,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
	}
}

// WithCodec configures the codec used for persisted engine state.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cloudforge.NewJSONLogger(slog.LevelInfo)
//	engine, _ := cloudforge.New(ctx, store, runtime, cloudforge.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithModels selects the embedding models images are ingested with.
// Defaults to clip, siglip and dino.
func WithModels(kinds ...embed.Kind) Option {
	return func(o *options) {
		o.kinds = kinds
	}
}

// WithIdleTimeout sets how long an unused model stays loaded. Negative
// disables idle eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithResources bounds model memory and concurrent inference calls.
func WithResources(c *resource.Controller) Option {
	return func(o *options) {
		o.resources = c
	}
}

// WithAssets sets the store holding model weights and vocabularies. It
// defaults to the media store.
func WithAssets(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.assets = store
	}
}

// WithAssetNames overrides the blob names of the aesthetic weights and the
// tag vocabulary. Empty names keep the defaults.
func WithAssetNames(aestheticWeights, tagVocabulary string) Option {
	return func(o *options) {
		o.aestheticWeights = aestheticWeights
		o.tagVocabulary = tagVocabulary
	}
}

// WithIndexFactory sets how per-model indexes are created.
func WithIndexFactory(f index.Factory) Option {
	return func(o *options) {
		o.indexFactory = f
		o.durable = nil
		o.cosineOnly = false
	}
}

// Compression selects the codec of durable index segments.
type Compression = compression.Type

// Segment compression codecs.
const (
	CompressionNone = compression.None
	CompressionLZ4  = compression.LZ4
	CompressionZSTD = compression.ZSTD
)

// WithDurableIndexes persists every model index under prefix in store.
// Segments are compressed with ct.
func WithDurableIndexes(store blobstore.BlobStore, prefix string, ct Compression) Option {
	return func(o *options) {
		o.durable = &durableConfig{store: store, prefix: prefix, ct: ct}
		o.cosineOnly = false
	}
}

// WithChromemIndexes stores every model index in a chromem-go collection.
// An empty dir keeps collections in memory. All models rank by cosine.
func WithChromemIndexes(dir string) Option {
	return func(o *options) {
		o.indexFactory = ChromemIndexes(dir)
		o.durable = nil
		o.cosineOnly = true
	}
}

// WithMediaPrefix sets the object prefix of ingested images.
func WithMediaPrefix(prefix string) Option {
	return func(o *options) {
		o.mediaPrefix = prefix
	}
}

// WithColorCorpus persists color fingerprints to the named blob on Flush and
// restores them on Load.
func WithColorCorpus(name string) Option {
	return func(o *options) {
		o.colorCorpus = name
	}
}

// WithIngestParallelism bounds how many models embed one image concurrently.
func WithIngestParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithMaxImageBytes caps the encoded size of ingested and query images,
// including downloads by IngestURL. Defaults to 100 MiB; non-positive
// disables the cap.
func WithMaxImageBytes(n int64) Option {
	return func(o *options) {
		o.limits.MaxBytes = n
	}
}

// WithMaxImagePixels caps width×height of ingested and query images. The
// header is checked before pixels are decoded. Non-positive disables the cap.
func WithMaxImagePixels(n int64) Option {
	return func(o *options) {
		o.limits.MaxPixels = n
	}
}

// WithHTTPClient sets the client IngestURL downloads with.
//
// If nil is passed, a client with a 60s timeout is used.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c == nil {
			c = &http.Client{Timeout: 60 * time.Second}
		}
		o.httpClient = c
	}
}

// FlatIndexes creates exact in-memory indexes.
func FlatIndexes() index.Factory {
	return func(_ string, dim int, metric distance.Metric) (index.Index, error) {
		return flat.New(func(o *flat.Options) {
			o.Dimension = dim
			o.Metric = metric
		})
	}
}

// DurableIndexes creates indexes persisted under prefix/<model> in store.
func DurableIndexes(store blobstore.BlobStore, prefix string, ct Compression, logger *slog.Logger) index.Factory {
	return func(name string, dim int, metric distance.Metric) (index.Index, error) {
		return durable.New(store, prefix+name, func(o *durable.Options) {
			o.Dimension = dim
			o.Metric = metric
			o.Compression = ct
			o.Logger = logger
		})
	}
}

// ChromemIndexes creates chromem-go collections, persisted under dir/<model>
// when dir is set.
func ChromemIndexes(dir string) index.Factory {
	return func(name string, dim int, _ distance.Metric) (index.Index, error) {
		return chromem.New(name, func(o *chromem.Options) {
			o.Dimension = dim
			if dir != "" {
				o.Dir = filepath.Join(dir, name)
			}
		})
	}
}
