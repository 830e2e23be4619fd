package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Silversoul-07/cloudforge"
	"github.com/Silversoul-07/cloudforge/blobstore"
	miniostore "github.com/Silversoul-07/cloudforge/blobstore/minio"
	s3store "github.com/Silversoul-07/cloudforge/blobstore/s3"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/internal/compression"
	"github.com/Silversoul-07/cloudforge/internal/config"
	"github.com/Silversoul-07/cloudforge/metrics"
	"github.com/Silversoul-07/cloudforge/resource"
)

// colorCorpusBlob holds the color fingerprints on persistent storage.
const colorCorpusBlob = "color/corpus.json"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "cloudforge",
	Short:         "Image similarity search over learned embeddings and color histograms",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: $"+config.ConfigPathEnvVar+" or ./cloudforge.yaml)")
}

// session is one engine opened for the duration of a command.
type session struct {
	cfg      *config.Config
	engine   *cloudforge.Engine
	registry *prometheus.Registry
}

// withEngine loads the configuration, opens an engine and runs fn. The engine
// is closed afterwards, flushing indexes and the color corpus.
func withEngine(ctx context.Context, fn func(*cloudforge.Engine) error) error {
	return withSession(ctx, func(s *session) error { return fn(s.engine) })
}

func withSession(ctx context.Context, fn func(*session) error) (err error) {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close())
	}()

	return fn(s)
}

// read reads an image argument within the configured byte limit.
func (s *session) read(cmd *cobra.Command, name string) ([]byte, error) {
	return readInput(cmd, name, s.cfg.Images.MaxBytes)
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := cloudforge.NewTextLogger(cfg.Log.SlogLevel())
	if cfg.Log.Format == "json" {
		logger = cloudforge.NewJSONLogger(cfg.Log.SlogLevel())
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	runtime, err := inference.NewClient(cfg.Inference.URL,
		inference.WithTimeout(cfg.Inference.Timeout),
		inference.WithRateLimit(cfg.Inference.RPS),
		inference.WithCircuitBreaker(cfg.Inference.BreakerFailures, cfg.Inference.BreakerOpen),
		inference.WithLogger(logger.Logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []cloudforge.Option{
		cloudforge.WithLogger(logger),
		cloudforge.WithModels(cfg.EnabledModels()...),
		cloudforge.WithIdleTimeout(cfg.Models.IdleTimeout),
		cloudforge.WithIngestParallelism(cfg.Models.Parallelism),
		cloudforge.WithMaxImageBytes(cfg.Images.MaxBytes),
		cloudforge.WithMaxImagePixels(cfg.Images.MaxPixels),
		cloudforge.WithResources(resource.NewController(resource.Config{
			MemoryLimitBytes: cfg.Models.MemoryLimit,
		})),
	}

	switch cfg.Index.Backend {
	case config.IndexDurable:
		ct, _ := compression.ParseType(cfg.Index.Compression)
		opts = append(opts, cloudforge.WithDurableIndexes(store, cfg.Index.Dir, ct))
	case config.IndexChromem:
		opts = append(opts, cloudforge.WithChromemIndexes(cfg.Index.Dir))
	}

	if cfg.Storage.Backend != config.StorageMemory {
		opts = append(opts, cloudforge.WithColorCorpus(colorCorpusBlob))
	}

	s := &session{cfg: cfg}
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		opts = append(opts, cloudforge.WithMetricsCollector(metrics.NewPrometheus(s.registry)))
	}

	s.engine, err = cloudforge.New(ctx, store, runtime, opts...)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *session) close() error {
	err := s.engine.Close()
	if s.registry != nil && s.cfg.Metrics.Textfile != "" {
		err = errors.Join(err, prometheus.WriteToTextfile(s.cfg.Metrics.Textfile, s.registry))
	}
	return err
}

func openStore(ctx context.Context, cfg config.StorageConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return blobstore.NewMemoryStore(), nil

	case config.StorageLocal:
		if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		return blobstore.NewLocalStore(cfg.LocalDir, cfg.PublicURL), nil

	case config.StorageMinio:
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}

		baseURL := cfg.PublicURL
		if baseURL == "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
		}

		store := miniostore.NewStore(client, cfg.Bucket, cfg.Prefix, baseURL)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case config.StorageS3:
		store, err := s3store.New(ctx, cfg.Bucket,
			s3store.WithPrefix(cfg.Prefix),
			s3store.WithRegion(cfg.Region),
			s3store.WithBaseURL(cfg.PublicURL),
		)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// readInput reads a file argument, with "-" meaning standard input. Reads
// stop once more than limit bytes arrive; a non-positive limit is unlimited.
func readInput(cmd *cobra.Command, name string, limit int64) ([]byte, error) {
	if name == "-" {
		return imaging.ReadLimited(cmd.InOrStdin(), limit)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := imaging.ReadLimited(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}

// isURL reports whether an argument names an http(s) resource.
func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
