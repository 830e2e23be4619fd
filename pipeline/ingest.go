package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/imaging"
)

// Stage names where a model's ingestion failed.
const (
	StageLoad  = "load"
	StageEmbed = "embed"
	StageIndex = "index"
)

// Status is the outcome of ingesting one image with one model.
type Status struct {
	Model    string        `json:"model"`
	OK       bool          `json:"ok"`
	Stage    string        `json:"stage,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report lists per-model outcomes in the Ingestor's model order.
type Report struct {
	ID     string   `json:"id"`
	Models []Status `json:"models"`
}

// Succeeded returns the names of the models that indexed the image.
func (r *Report) Succeeded() []string {
	var out []string
	for _, s := range r.Models {
		if s.OK {
			out = append(out, s.Model)
		}
	}
	return out
}

// Failed returns the statuses of the models that did not.
func (r *Report) Failed() []Status {
	var out []Status
	for _, s := range r.Models {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}

// Err joins the per-model errors; nil when every model succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, s := range r.Models {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// IngestorOptions configures an Ingestor.
type IngestorOptions struct {
	// Kinds are the embedding models every image is ingested with.
	Kinds []embed.Kind

	// Parallelism bounds concurrent models per image; zero means all.
	Parallelism int

	Logger *slog.Logger
}

// Ingestor embeds images and inserts them into per-model indexes.
type Ingestor struct {
	models *Models
	specs  []embed.Spec
	limit  int
	logger *slog.Logger
}

// NewIngestor creates an Ingestor. Kinds default to every embedding kind.
func NewIngestor(models *Models, optFns ...func(*IngestorOptions)) (*Ingestor, error) {
	opts := IngestorOptions{Kinds: embed.EmbeddingKinds()}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := models.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	specs := make([]embed.Spec, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		spec, err := models.Spec(k)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return &Ingestor{
		models: models,
		specs:  specs,
		limit:  opts.Parallelism,
		logger: opts.Logger,
	}, nil
}

// Models returns the names of the models images are ingested with.
func (in *Ingestor) Models() []string {
	names := make([]string, len(in.specs))
	for i, s := range in.specs {
		names[i] = s.Name
	}
	return names
}

// Ingest embeds img with every model and indexes it under id. Per-model
// failures are reported in the result; the error is non-nil only when ctx
// ends before ingestion starts.
func (in *Ingestor) Ingest(ctx context.Context, img *imaging.Image, id string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{ID: id, Models: make([]Status, len(in.specs))}

	var g errgroup.Group
	if in.limit > 0 {
		g.SetLimit(in.limit)
	}

	for i, spec := range in.specs {
		g.Go(func() error {
			report.Models[i] = in.ingestOne(ctx, spec, img, id)
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, spec embed.Spec, img *imaging.Image, id string) Status {
	start := time.Now()
	st := Status{Model: spec.Name}

	fail := func(stage string, err error) Status {
		st.Stage = stage
		st.Err = err
		st.Error = err.Error()
		st.Duration = time.Since(start)
		in.logger.Warn("Ingestion failed", "model", spec.Name, "id", id, "stage", stage, "error", err)
		return st
	}

	model, lease, err := in.models.Acquire(ctx, spec)
	if err != nil {
		return fail(StageLoad, err)
	}
	defer lease.Release()

	vec, err := model.EmbedImage(ctx, img)
	if err != nil {
		return fail(StageEmbed, err)
	}

	idx, err := in.models.Index(spec)
	if err != nil {
		return fail(StageIndex, err)
	}
	if err := idx.Insert(ctx, vec, id); err != nil {
		return fail(StageIndex, err)
	}

	st.OK = true
	st.Duration = time.Since(start)
	in.logger.Debug("Ingested", "model", spec.Name, "id", id, "duration", st.Duration)

	return st
}
