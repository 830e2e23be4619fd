package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/imaging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "cloudforge.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []embed.Kind{embed.KindCLIP, embed.KindSigLIP, embed.KindDINO}, cfg.EnabledModels())
	assert.Equal(t, 5*time.Minute, cfg.Models.IdleTimeout)
	assert.Equal(t, IndexDurable, cfg.Index.Backend)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, int64(imaging.DefaultMaxBytes), cfg.Images.MaxBytes)
	assert.Equal(t, int64(imaging.DefaultMaxPixels), cfg.Images.MaxPixels)
}

func TestLoad_Layers(t *testing.T) {
	path := writeConfig(t, `
models:
  enabled: [clip]
  idle_timeout: 90s
inference:
  url: http://models:9000
  rps: 4
storage:
  backend: minio
  endpoint: minio:9000
  bucket: media
index:
  backend: chromem
  dir: /var/lib/cloudforge/chromem
log:
  level: debug
  format: json
`)

	t.Setenv("CLOUDFORGE_INFERENCE_TIMEOUT", "15s")
	t.Setenv("CLOUDFORGE_STORAGE_ACCESS_KEY", "minioadmin")
	t.Setenv("CLOUDFORGE_METRICS_ENABLED", "true")
	t.Setenv("CLOUDFORGE_IMAGES_MAX_PIXELS", "1000000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip"}, cfg.Models.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Models.IdleTimeout)
	assert.Equal(t, "http://models:9000", cfg.Inference.URL)
	assert.InDelta(t, 4.0, cfg.Inference.RPS, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, uint32(5), cfg.Inference.BreakerFailures, "default survives")
	assert.Equal(t, "minioadmin", cfg.Storage.AccessKey)
	assert.Equal(t, "media", cfg.Storage.Bucket)
	assert.Equal(t, IndexChromem, cfg.Index.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, int64(1000000), cfg.Images.MaxPixels)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_EnvSlice(t *testing.T) {
	t.Setenv("CLOUDFORGE_MODELS_ENABLED", "siglip, dino")

	cfg, err := Load(writeConfig(t, "log:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, []embed.Kind{embed.KindSigLIP, embed.KindDINO}, cfg.EnabledModels())
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "index:\n  backend: flat\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, IndexFlat, cfg.Index.Backend)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  backend: ftp\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid", func(*Config) {}, ""},
		{"NoModels", func(c *Config) { c.Models.Enabled = nil }, "models.enabled"},
		{"UnknownModel", func(c *Config) { c.Models.Enabled = []string{"resnet"} }, "models.enabled"},
		{"ScorerNotIndexable", func(c *Config) { c.Models.Enabled = []string{"aesthetic"} }, "not an embedding model"},
		{"BadURL", func(c *Config) { c.Inference.URL = "grpc://models" }, "inference.url"},
		{"NegativeImageLimit", func(c *Config) { c.Images.MaxBytes = -1 }, "images"},
		{"NoTimeout", func(c *Config) { c.Inference.Timeout = 0 }, "inference.timeout"},
		{"LocalWithoutDir", func(c *Config) { c.Storage.LocalDir = "" }, "storage.local_dir"},
		{"MinioWithoutEndpoint", func(c *Config) {
			c.Storage.Backend = StorageMinio
			c.Storage.Bucket = "media"
		}, "storage.endpoint"},
		{"S3WithoutBucket", func(c *Config) { c.Storage.Backend = StorageS3 }, "storage.bucket"},
		{"DurableInMemory", func(c *Config) { c.Storage.Backend = StorageMemory }, "persistent storage.backend"},
		{"FlatInMemory", func(c *Config) {
			c.Storage.Backend = StorageMemory
			c.Index.Backend = IndexFlat
		}, ""},
		{"BadCompression", func(c *Config) { c.Index.Compression = "gzip" }, "index.compression"},
		{"BadIndex", func(c *Config) { c.Index.Backend = "hnsw" }, "index.backend"},
		{"BadLevel", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"BadFormat", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"TextfileWithoutMetrics", func(c *Config) { c.Metrics.Textfile = "/tmp/m.prom" }, "metrics.textfile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "models.idle_timeout", envTransformFunc("CLOUDFORGE_MODELS_IDLE_TIMEOUT"))
	assert.Equal(t, "storage.secret_key", envTransformFunc("CLOUDFORGE_STORAGE_SECRET_KEY"))
	assert.Equal(t, "", envTransformFunc("CLOUDFORGE_CONFIG"))
}
