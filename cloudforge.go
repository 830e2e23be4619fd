package cloudforge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/histogram"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/modelcache"
	"github.com/Silversoul-07/cloudforge/pipeline"
)

// colorModel is the model name color searches are recorded under.
const colorModel = "color"

// allowedExtensions are the file extensions Ingest accepts.
var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// Engine owns the model cache, the per-model indexes and the color corpus.
// It is safe for concurrent use.
type Engine struct {
	store   blobstore.BlobStore
	opts    options
	logger  *Logger
	metrics MetricsCollector

	manager  *modelcache.Manager
	deps     embed.Deps
	indexes  *index.Registry
	models   *pipeline.Models
	ingestor *pipeline.Ingestor
	searcher *pipeline.Searcher
	colors   *histogram.Matcher

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates an Engine that stores images in store and runs models on
// runtime, then loads persisted indexes and color fingerprints.
func New(ctx context.Context, store blobstore.BlobStore, runtime inference.Runtime, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("cloudforge: blob store is required")
	}
	if runtime == nil {
		return nil, errors.New("cloudforge: inference runtime is required")
	}

	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.assets == nil {
		o.assets = store
	}
	if o.durable != nil {
		o.indexFactory = DurableIndexes(o.durable.store, o.durable.prefix, o.durable.ct, o.logger.Logger)
	}

	cacheOpts := []func(*modelcache.Options){
		modelcache.WithResources(o.resources),
		modelcache.WithObserver(cacheObserver{metrics: o.metricsCollector, logger: o.logger}),
	}
	if o.idleTimeout != 0 {
		cacheOpts = append(cacheOpts, modelcache.WithIdleTimeout(o.idleTimeout))
	}
	manager := modelcache.New(cacheOpts...)

	e := &Engine{
		store:   store,
		opts:    o,
		logger:  o.logger,
		metrics: o.metricsCollector,
		manager: manager,
		deps: embed.Deps{
			Runtime:          runtime,
			Resources:        o.resources,
			Assets:           o.assets,
			Manager:          manager,
			AestheticWeights: o.aestheticWeights,
			TagVocabulary:    o.tagVocabulary,
		},
		indexes: index.NewRegistry(o.indexFactory),
		colors:  histogram.NewMatcher(),
	}
	e.models = &pipeline.Models{
		Manager: manager,
		Deps:    e.deps,
		Indexes: e.indexes,
		Cosine:  o.cosineOnly,
	}

	var err error
	e.ingestor, err = pipeline.NewIngestor(e.models, func(in *pipeline.IngestorOptions) {
		in.Kinds = o.kinds
		in.Parallelism = o.parallelism
		in.Logger = o.logger.Logger
	})
	if err != nil {
		_ = manager.Close()
		return nil, translateError(err)
	}

	e.searcher, err = pipeline.NewSearcher(e.models, func(so *pipeline.SearcherOptions) {
		so.Logger = o.logger.Logger
	})
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	if err := e.Load(ctx); err != nil {
		_ = manager.Close()
		return nil, err
	}

	return e, nil
}

// Load creates the index of every configured model, loads the durable ones
// and restores the color corpus.
func (e *Engine) Load(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}

	for _, name := range e.ingestor.Models() {
		kind, _ := embed.ParseKind(name)
		spec, err := e.models.Spec(kind)
		if err != nil {
			return translateError(err)
		}
		idx, err := e.models.Index(spec)
		if err != nil {
			return translateError(err)
		}
		if d, ok := idx.(index.Durable); ok {
			if err := d.Load(ctx); err != nil {
				return fmt.Errorf("load %s index: %w", name, err)
			}
		}
	}

	if e.opts.colorCorpus != "" {
		if err := e.colors.Load(ctx, e.store, e.opts.colorCorpus, e.opts.codec); err != nil {
			return err
		}
	}

	return nil
}

// Flush persists pending durable index inserts and the color corpus.
func (e *Engine) Flush(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.flush(ctx)
}

func (e *Engine) flush(ctx context.Context) error {
	err := e.indexes.Each(func(name string, idx index.Index) error {
		if d, ok := idx.(index.Durable); ok {
			if err := d.Flush(ctx); err != nil {
				return fmt.Errorf("flush %s index: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if e.opts.colorCorpus != "" {
		return e.colors.Save(ctx, e.store, e.opts.colorCorpus, e.opts.codec)
	}
	return nil
}

// IngestResult describes one ingested image.
type IngestResult struct {
	// ID is the index identifier: the storage URL of the image.
	ID string `json:"id"`

	// Object is the blob name the image was stored under.
	Object string `json:"object"`

	ContentType string            `json:"content_type"`
	Models      []pipeline.Status `json:"models"`
}

// Succeeded returns the models that indexed the image.
func (r *IngestResult) Succeeded() []string {
	report := pipeline.Report{ID: r.ID, Models: r.Models}
	return report.Succeeded()
}

// Ingest stores data under a generated name, fingerprints its colors and
// indexes it with every configured model. Per-model failures are reported
// in the result and do not fail the call.
func (e *Engine) Ingest(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	img, err := e.decode(data)
	if err != nil {
		return nil, translateError(err)
	}

	name, err := e.objectName(filename, img.Format())
	if err != nil {
		return nil, err
	}

	id, err := blobstore.PutObject(ctx, e.store, name, data)
	if err != nil {
		return nil, err
	}

	e.colors.Add(id, histogram.ExtractImage(img.Image()))

	report, err := e.ingestor.Ingest(ctx, img, id)
	if err != nil {
		return nil, err
	}

	for _, st := range report.Models {
		e.metrics.RecordIngest(st.Model, st.Duration, st.Err)
	}
	e.logger.LogIngest(ctx, id, len(report.Succeeded()), len(report.Failed()))

	return &IngestResult{
		ID:          id,
		Object:      name,
		ContentType: blobstore.ContentType(name),
		Models:      report.Models,
	}, nil
}

// IngestURL downloads an image over HTTP(S) and ingests it like Ingest. The
// download is cut off once it exceeds the configured byte limit.
func (e *Engine) IngestURL(ctx context.Context, rawURL string) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	data, filename, err := e.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return e.Ingest(ctx, data, filename)
}

func (e *Engine) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q is not an http(s) URL", ErrDownload, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	resp, err := e.opts.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s returned %s", ErrDownload, u.Redacted(), resp.Status)
	}

	limit := e.opts.limits.MaxBytes
	if limit > 0 && resp.ContentLength > limit {
		return nil, "", translateError(fmt.Errorf("%w: content length %d exceeds %d",
			imaging.ErrTooLarge, resp.ContentLength, limit))
	}

	data, err := imaging.ReadLimited(resp.Body, limit)
	if err != nil {
		if errors.Is(err, imaging.ErrTooLarge) {
			return nil, "", translateError(err)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	e.logger.Debug("Image downloaded", "url", u.Redacted(), "bytes", len(data))

	return data, path.Base(u.Path), nil
}

func (e *Engine) decode(data []byte) (*imaging.Image, error) {
	return imaging.DecodeLimited(data, e.opts.limits)
}

// objectName returns a random object name keeping the extension of filename,
// or of the decoded format when filename has none.
func (e *Engine) objectName(filename, format string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(path.Base(filename))), ".")
	if ext == "" {
		ext = format
		if ext == "jpeg" {
			ext = "jpg"
		}
	}
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return e.opts.mediaPrefix + uuid.NewString() + "." + ext, nil
}

// SearchRequest is a similarity query against one model.
type SearchRequest struct {
	Model string `json:"model"`
	Text  string `json:"text,omitempty"`
	Image []byte `json:"-"`
	K     int    `json:"k"`
}

// Search returns the K images most similar to the request's text or image
// according to its model, best first. A model with nothing indexed yields an
// empty slice.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]pipeline.Hit, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	hits, err := e.search(ctx, req)
	e.metrics.RecordSearch(req.Model, req.K, time.Since(start), err)
	e.logger.LogSearch(ctx, req.Model, req.K, len(hits), err)

	return hits, err
}

func (e *Engine) search(ctx context.Context, req SearchRequest) ([]pipeline.Hit, error) {
	kind, err := embed.ParseKind(req.Model)
	if err != nil {
		return nil, translateError(err)
	}

	q := pipeline.Query{Model: kind, Text: req.Text, K: req.K}
	if len(req.Image) > 0 {
		q.Image, err = e.decode(req.Image)
		if err != nil {
			return nil, translateError(err)
		}
	}

	hits, err := e.searcher.Search(ctx, q)
	return hits, translateError(err)
}

// Tag returns tag probabilities for the first limit vocabulary entries.
// A non-positive limit returns the whole vocabulary.
func (e *Engine) Tag(ctx context.Context, data []byte, limit int) (map[string]float32, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	img, err := e.decode(data)
	if err != nil {
		return nil, translateError(err)
	}

	loader, err := embed.LoaderFor(embed.KindTagger, e.deps)
	if err != nil {
		return nil, err
	}
	tagger, lease, err := modelcache.Acquire[*embed.Tagger](ctx, e.manager, embed.KindTagger.String(), loader)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	scores, err := tagger.Tag(ctx, img, limit)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float32, len(scores))
	for _, s := range scores {
		out[s.Tag] = s.Probability
	}
	return out, nil
}

// Score predicts the aesthetic score of an image. Higher is better; the
// range is not fixed.
func (e *Engine) Score(ctx context.Context, data []byte) (float32, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}

	img, err := e.decode(data)
	if err != nil {
		return 0, translateError(err)
	}

	loader, err := embed.LoaderFor(embed.KindAesthetic, e.deps)
	if err != nil {
		return 0, err
	}
	scorer, lease, err := modelcache.Acquire[*embed.AestheticScorer](ctx, e.manager, embed.KindAesthetic.String(), loader)
	if err != nil {
		return 0, err
	}
	defer lease.Release()

	return scorer.Predict(ctx, img)
}

// ColorMatch is one result of a color search.
type ColorMatch struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
}

// SearchByColor ranks ingested images by color-histogram correlation with
// data. A non-positive limit returns every image.
func (e *Engine) SearchByColor(ctx context.Context, data []byte, limit int) ([]ColorMatch, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	img, err := e.decode(data)
	if err != nil {
		err = translateError(err)
		e.metrics.RecordSearch(colorModel, limit, time.Since(start), err)
		return nil, err
	}

	matches := e.colors.Search(histogram.ExtractImage(img.Image()), limit)
	out := make([]ColorMatch, len(matches))
	for i, m := range matches {
		out[i] = ColorMatch{ID: m.ID, URL: m.ID, Similarity: m.Similarity}
	}

	e.metrics.RecordSearch(colorModel, limit, time.Since(start), nil)
	e.logger.LogSearch(ctx, colorModel, limit, len(out), nil)

	return out, nil
}

// Forget removes id from every index and from the color corpus, and deletes
// the stored image when id is one this engine generated. It returns the
// number of index entries removed.
func (e *Engine) Forget(ctx context.Context, id string) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}

	removed := 0
	err := e.indexes.Each(func(name string, idx index.Index) error {
		n, err := idx.Forget(ctx, id)
		if err != nil {
			return fmt.Errorf("forget in %s index: %w", name, err)
		}
		removed += n
		return nil
	})
	if err == nil {
		e.colors.Remove(id)

		if name := e.opts.mediaPrefix + path.Base(id); e.store.URL(name) == id {
			err = e.store.Delete(ctx, name)
		}
	}

	e.logger.LogForget(ctx, id, removed, err)

	return removed, err
}

// Unload drops a model from the cache. Unknown names are a no-op.
func (e *Engine) Unload(model string) error {
	err := e.manager.Unload(model)
	e.logger.LogModelUnload(model, err)
	return err
}

// Stats describes the engine's state.
type Stats struct {
	Models  modelcache.Stats `json:"models"`
	Loaded  []string         `json:"loaded"`
	Indexes map[string]int   `json:"indexes"`
	Colors  int              `json:"colors"`

	// ReservedBytes is the model memory accounted by the resource
	// controller; zero without one.
	ReservedBytes int64 `json:"reserved_bytes"`

	// InferenceInFlight counts inference calls holding a slot.
	InferenceInFlight int64 `json:"inference_in_flight"`
}

// Stats returns a snapshot of cache and index sizes.
func (e *Engine) Stats() Stats {
	st := Stats{
		Models:  e.manager.Stats(),
		Loaded:  e.manager.Loaded(),
		Indexes: make(map[string]int),
		Colors:  e.colors.Len(),

		ReservedBytes:     e.opts.resources.MemoryUsage(),
		InferenceInFlight: e.opts.resources.InFlight(),
	}
	_ = e.indexes.Each(func(name string, idx index.Index) error {
		st.Indexes[name] = idx.Len()
		return nil
	})
	return st
}
