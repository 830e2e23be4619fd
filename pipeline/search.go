package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/index"
)

var (
	// ErrNoQuery is returned for a query with neither text nor image.
	ErrNoQuery = errors.New("query needs text or an image")

	// ErrAmbiguousQuery is returned for a query with both text and image.
	ErrAmbiguousQuery = errors.New("query has both text and an image")
)

// Query selects a model and carries exactly one of Text or Image.
type Query struct {
	Model embed.Kind
	Text  string
	Image *imaging.Image
	K     int
}

// Hit is one hydrated search result.
type Hit struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Score float32 `json:"score"`
	Rank  int     `json:"rank"`
}

// Resolver maps an index identifier to a URL clients can fetch.
type Resolver interface {
	Resolve(id string) string
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) string

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(id string) string { return f(id) }

// identity is the default resolver: identifiers already are URLs.
var identity = ResolverFunc(func(id string) string { return id })

// SearcherOptions configures a Searcher.
type SearcherOptions struct {
	Resolver Resolver
	Logger   *slog.Logger
}

// Searcher answers similarity queries.
type Searcher struct {
	models   *Models
	resolver Resolver
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(models *Models, optFns ...func(*SearcherOptions)) (*Searcher, error) {
	opts := SearcherOptions{Resolver: identity}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := models.validate(); err != nil {
		return nil, err
	}
	if opts.Resolver == nil {
		opts.Resolver = identity
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Searcher{models: models, resolver: opts.Resolver, logger: opts.Logger}, nil
}

// Search embeds the query and returns the k best hits in index order. A model
// with nothing indexed yields an empty slice.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.K <= 0 {
		return nil, index.ErrInvalidK
	}

	text := strings.TrimSpace(q.Text)
	switch {
	case text == "" && q.Image == nil:
		return nil, ErrNoQuery
	case text != "" && q.Image != nil:
		return nil, ErrAmbiguousQuery
	}

	spec, err := s.models.Spec(q.Model)
	if err != nil {
		return nil, err
	}
	if text != "" && !spec.SupportsText() {
		return nil, fmt.Errorf("%w: %s", embed.ErrUnsupportedModality, spec.Name)
	}

	idx, ok := s.models.Indexes.Get(spec.Name)
	if !ok {
		return []Hit{}, nil
	}

	vec, err := s.embed(ctx, spec, text, q.Image)
	if err != nil {
		return nil, err
	}

	results, err := idx.Query(ctx, vec, q.K)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, URL: s.resolver.Resolve(r.ID), Score: r.Score, Rank: i}
	}

	s.logger.Debug("Searched", "model", spec.Name, "text", text != "", "k", q.K, "hits", len(hits))

	return hits, nil
}

func (s *Searcher) embed(ctx context.Context, spec embed.Spec, text string, img *imaging.Image) ([]float32, error) {
	model, lease, err := s.models.Acquire(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if img != nil {
		return model.EmbedImage(ctx, img)
	}
	return model.EmbedText(ctx, text)
}
