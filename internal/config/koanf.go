package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Silversoul-07/cloudforge/imaging"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"cloudforge.yaml",
	"cloudforge.yml",
	"/etc/cloudforge/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CLOUDFORGE_CONFIG"

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CLOUDFORGE_"

func defaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Enabled:     []string{"clip", "siglip", "dino"},
			IdleTimeout: 5 * time.Minute,
		},
		Inference: InferenceConfig{
			URL:             "http://127.0.0.1:8000",
			Timeout:         60 * time.Second,
			BreakerFailures: 5,
			BreakerOpen:     30 * time.Second,
		},
		Images: ImagesConfig{
			MaxBytes:  imaging.DefaultMaxBytes,
			MaxPixels: imaging.DefaultMaxPixels,
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			LocalDir: "data",
			Region:   "us-east-1",
			UseSSL:   true,
		},
		Index: IndexConfig{
			Backend:     IndexDurable,
			Dir:         "indexes/",
			Compression: "lz4",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from defaults, the YAML file at path (or the
// first file found in DefaultConfigPaths when path is empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// CLOUDFORGE_INFERENCE_URL -> inference.url
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

// sliceConfigPaths are parsed as comma-separated lists when set from the
// environment.
var sliceConfigPaths = []string{
	"models.enabled",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// SlogLevel returns the configured log level. Call it after Validate.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
