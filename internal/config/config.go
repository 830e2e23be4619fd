// Package config loads cloudforge settings for the command-line binary.
//
// Values are layered defaults, then an optional YAML file, then environment
// variables prefixed with CLOUDFORGE_. Nested keys are separated by the first
// underscore after the prefix, so CLOUDFORGE_MODELS_IDLE_TIMEOUT sets
// models.idle_timeout.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/internal/compression"
)

// Config is the root configuration.
type Config struct {
	Models    ModelsConfig    `koanf:"models"`
	Inference InferenceConfig `koanf:"inference"`
	Images    ImagesConfig    `koanf:"images"`
	Storage   StorageConfig   `koanf:"storage"`
	Index     IndexConfig     `koanf:"index"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ModelsConfig controls the model cache.
type ModelsConfig struct {
	// Enabled lists the embedding models images are ingested into.
	Enabled []string `koanf:"enabled"`

	// IdleTimeout evicts models unused for this long. Negative disables
	// eviction.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// MemoryLimit caps the bytes held by loaded models. 0 is unlimited.
	MemoryLimit int64 `koanf:"memory_limit"`

	// Parallelism bounds concurrent per-model ingestion. 0 is unbounded.
	Parallelism int `koanf:"parallelism"`
}

// InferenceConfig points at the model server.
type InferenceConfig struct {
	URL             string        `koanf:"url"`
	RPS             float64       `koanf:"rps"`
	Timeout         time.Duration `koanf:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerOpen     time.Duration `koanf:"breaker_open"`
}

// ImagesConfig bounds accepted images, local files and downloads alike.
type ImagesConfig struct {
	// MaxBytes caps the encoded size. 0 is unlimited.
	MaxBytes int64 `koanf:"max_bytes"`

	// MaxPixels caps width×height, checked before decoding. 0 is unlimited.
	MaxPixels int64 `koanf:"max_pixels"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageMinio  = "minio"
	StorageS3     = "s3"
)

// StorageConfig selects where media, index blobs and model assets live.
type StorageConfig struct {
	Backend   string `koanf:"backend"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	PublicURL string `koanf:"public_url"`
	LocalDir  string `koanf:"local_dir"`
}

// Index backends.
const (
	IndexFlat    = "flat"
	IndexDurable = "durable"
	IndexChromem = "chromem"
)

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `koanf:"backend"`

	// Dir is the blob prefix for durable indexes or the directory for
	// chromem collections.
	Dir string `koanf:"dir"`

	// Compression applies to durable index segments.
	Compression string `koanf:"compression"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`

	// Textfile, when set, receives the metrics in text exposition format
	// when a command finishes.
	Textfile string `koanf:"textfile"`
}

// Validate checks the configuration for inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Models.Enabled) == 0 {
		errs = append(errs, errors.New("models.enabled must name at least one model"))
	}
	for _, name := range c.Models.Enabled {
		if _, err := ParseModel(name); err != nil {
			errs = append(errs, fmt.Errorf("models.enabled: %w", err))
		}
	}
	if c.Models.MemoryLimit < 0 {
		errs = append(errs, errors.New("models.memory_limit must not be negative"))
	}
	if c.Models.Parallelism < 0 {
		errs = append(errs, errors.New("models.parallelism must not be negative"))
	}

	if c.Inference.URL == "" {
		errs = append(errs, errors.New("inference.url is required"))
	} else if u, err := url.Parse(c.Inference.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("inference.url %q must be an http(s) URL", c.Inference.URL))
	}
	if c.Inference.RPS < 0 {
		errs = append(errs, errors.New("inference.rps must not be negative"))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference.timeout must be positive"))
	}

	if c.Images.MaxBytes < 0 || c.Images.MaxPixels < 0 {
		errs = append(errs, errors.New("images limits must not be negative"))
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case StorageMinio:
		if c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage.endpoint is required for the minio backend"))
		}
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the minio backend"))
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of memory, local, minio, s3", c.Storage.Backend))
	}

	switch c.Index.Backend {
	case IndexFlat:
	case IndexDurable:
		if c.Storage.Backend == StorageMemory {
			errs = append(errs, errors.New("index.backend durable needs a persistent storage.backend"))
		}
		if _, err := compression.ParseType(c.Index.Compression); err != nil {
			errs = append(errs, fmt.Errorf("index.compression: %w", err))
		}
	case IndexChromem:
		// An empty dir keeps chromem collections in memory.
	default:
		errs = append(errs, fmt.Errorf("index.backend %q must be one of flat, durable, chromem", c.Index.Backend))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a level", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.Metrics.Textfile != "" && !c.Metrics.Enabled {
		errs = append(errs, errors.New("metrics.textfile requires metrics.enabled"))
	}

	return errors.Join(errs...)
}

// ParseModel resolves a configured model name to an embedding kind.
func ParseModel(name string) (embed.Kind, error) {
	kind, err := embed.ParseKind(strings.TrimSpace(name))
	if err != nil {
		return 0, err
	}
	if spec, _ := embed.Lookup(kind); !spec.IsEmbedding() {
		return 0, fmt.Errorf("%s is not an embedding model", kind)
	}
	return kind, nil
}

// EnabledModels returns the enabled embedding kinds. Call it after Validate.
func (c *Config) EnabledModels() []embed.Kind {
	kinds := make([]embed.Kind, 0, len(c.Models.Enabled))
	for _, name := range c.Models.Enabled {
		if kind, err := ParseModel(name); err == nil {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
