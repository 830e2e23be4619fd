package cloudforge

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/embed"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/inference"
	"github.com/Silversoul-07/cloudforge/internal/compression"
	"github.com/Silversoul-07/cloudforge/resource"
	"github.com/Silversoul-07/cloudforge/testutil"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func newRuntime() *testutil.FakeRuntime {
	rt := testutil.NewFakeRuntime()
	for _, k := range embed.EmbeddingKinds() {
		spec, _ := embed.Lookup(k)
		rt.AddModel(inference.Info{Name: spec.RuntimeModel, Dimension: spec.Dimension, Modalities: spec.Modalities})
	}
	tagger, _ := embed.Lookup(embed.KindTagger)
	rt.AddModel(inference.Info{Name: tagger.RuntimeModel, ImageSize: 16})
	rt.SetLogits(tagger.RuntimeModel, []float32{4, -4, 0})
	return rt
}

func newAssets(t *testing.T) *blobstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	assets := blobstore.NewMemoryStore()

	mlp := embed.NewMLP(embed.AestheticLayout...)
	mlp.Layers[len(mlp.Layers)-1].B[0] = 5
	blob, err := embed.EncodeMLP(mlp)
	require.NoError(t, err)
	require.NoError(t, assets.Put(ctx, embed.DefaultAestheticWeights, blob))
	require.NoError(t, assets.Put(ctx, embed.DefaultTagVocabulary, []byte("sky\nsea\nsand\n")))

	return assets
}

func newEngine(t *testing.T, store blobstore.BlobStore, rt inference.Runtime, opts ...Option) *Engine {
	t.Helper()

	opts = append([]Option{WithAssets(newAssets(t)), WithIdleTimeout(-1)}, opts...)
	e, err := New(context.Background(), store, rt, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestNew_RequiresCollaborators(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil, newRuntime())
	assert.Error(t, err)

	_, err = New(ctx, blobstore.NewMemoryStore(), nil)
	assert.Error(t, err)

	_, err = New(ctx, blobstore.NewMemoryStore(), newRuntime(), WithModels(embed.KindTagger))
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestEngine_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	metrics := &BasicMetricsCollector{}
	e := newEngine(t, store, newRuntime(), WithMetricsCollector(metrics))

	redPNG := testutil.SolidPNG(t, 8, 8, red)
	res, err := e.Ingest(ctx, redPNG, "holiday/Beach.PNG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.ID, "mem://media/"))
	assert.True(t, strings.HasSuffix(res.Object, ".png"))
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, []string{"clip", "siglip", "dino"}, res.Succeeded())

	stored, err := blobstore.ReadAll(ctx, store, res.Object)
	require.NoError(t, err)
	assert.Equal(t, redPNG, stored)

	other, err := e.Ingest(ctx, testutil.SolidPNG(t, 8, 8, blue), "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(other.Object, ".png"), "extension from the decoded format")

	for _, model := range []string{"clip", "siglip", "dino"} {
		t.Run(model, func(t *testing.T) {
			hits, err := e.Search(ctx, SearchRequest{Model: model, Image: redPNG, K: 5})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, res.ID, hits[0].ID)
			assert.Equal(t, res.ID, hits[0].URL)
			assert.Equal(t, 0, hits[0].Rank)
		})
	}

	st := metrics.GetStats()
	assert.Equal(t, int64(6), st.IngestCount)
	assert.Equal(t, int64(3), st.SearchCount)
	assert.Equal(t, int64(3), st.LoadCount)

	stats := e.Stats()
	assert.Equal(t, map[string]int{"clip": 2, "siglip": 2, "dino": 2}, stats.Indexes)
	assert.Equal(t, 2, stats.Colors)
	assert.Zero(t, stats.InferenceInFlight)
}

func TestEngine_StatsResources(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MaxConcurrentInference: 2})
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime(), WithResources(rc))

	_, err := e.Ingest(ctx, testutil.SolidPNG(t, 4, 4, red), "r.png")
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, st.Models.MemoryBytes, st.ReservedBytes)
	assert.Equal(t, rc.MemoryUsage(), st.ReservedBytes)
	assert.Zero(t, st.InferenceInFlight)
}

func TestEngine_IngestErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime())

	_, err := e.Ingest(ctx, []byte("plain text"), "notes.txt")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = e.Ingest(ctx, testutil.SolidPNG(t, 4, 4, red), "clip.mp4")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, 0, e.Stats().Colors)
}

func TestEngine_ImageLimits(t *testing.T) {
	ctx := context.Background()
	png := testutil.SolidPNG(t, 8, 8, red)

	t.Run("Bytes", func(t *testing.T) {
		e := newEngine(t, blobstore.NewMemoryStore(), newRuntime(), WithMaxImageBytes(int64(len(png))-1))

		_, err := e.Ingest(ctx, png, "red.png")
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.ErrorIs(t, err, ErrDecode)

		_, err = e.SearchByColor(ctx, png, 1)
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Equal(t, 0, e.Stats().Colors)
	})

	t.Run("Pixels", func(t *testing.T) {
		rt := newRuntime()
		e := newEngine(t, blobstore.NewMemoryStore(), rt, WithMaxImagePixels(63))

		_, err := e.Ingest(ctx, png, "red.png")
		assert.ErrorIs(t, err, ErrTooLarge)

		_, err = e.Search(ctx, SearchRequest{Model: "clip", Image: png, K: 1})
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Equal(t, 0, rt.Calls("EmbedImage"))
	})
}

func TestEngine_IngestURL(t *testing.T) {
	ctx := context.Background()
	png := testutil.SolidPNG(t, 8, 8, green)

	mux := http.NewServeMux()
	mux.HandleFunc("/photos/sunset.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(png)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, _ *http.Request) {
		// Flushing before the body forces chunked encoding, so no
		// Content-Length is announced.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write(png)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime(), WithHTTPClient(srv.Client()))

	res, err := e.IngestURL(ctx, srv.URL+"/photos/sunset.png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Object, ".png"))
	assert.Equal(t, []string{"clip", "siglip", "dino"}, res.Succeeded())

	_, err = e.IngestURL(ctx, srv.URL+"/missing.png")
	assert.ErrorIs(t, err, ErrDownload)

	_, err = e.IngestURL(ctx, "ftp://example.com/a.png")
	assert.ErrorIs(t, err, ErrDownload)

	capped := newEngine(t, blobstore.NewMemoryStore(), newRuntime(),
		WithHTTPClient(srv.Client()), WithMaxImageBytes(int64(len(png))-1))

	_, err = capped.IngestURL(ctx, srv.URL+"/photos/sunset.png")
	assert.ErrorIs(t, err, ErrTooLarge, "rejected on Content-Length")

	_, err = capped.IngestURL(ctx, srv.URL+"/stream")
	assert.ErrorIs(t, err, ErrTooLarge, "rejected while reading")

	assert.Equal(t, 1, e.Stats().Colors)
	assert.Equal(t, 0, capped.Stats().Colors)
}

func TestEngine_PartialIngest(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime()
	dino, _ := embed.Lookup(embed.KindDINO)
	rt.Fail(dino.RuntimeModel, "EmbedImage", errors.New("device lost"))

	metrics := &BasicMetricsCollector{}
	e := newEngine(t, blobstore.NewMemoryStore(), rt, WithMetricsCollector(metrics), WithIngestParallelism(1))

	res, err := e.Ingest(ctx, testutil.SolidPNG(t, 4, 4, green), "g.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"clip", "siglip"}, res.Succeeded())
	assert.ErrorIs(t, res.Models[2].Err, ErrEmbeddingFailure)
	assert.Equal(t, int64(1), metrics.GetStats().IngestErrors)
	assert.Equal(t, 0, e.Stats().Indexes["dino"])
}

func TestEngine_SearchErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime())
	png := testutil.SolidPNG(t, 4, 4, red)

	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"UnknownModel", SearchRequest{Model: "resnet", Text: "x", K: 1}, ErrUnknownModel},
		{"NotAnEmbeddingModel", SearchRequest{Model: "tagger", Text: "x", K: 1}, ErrUnknownModel},
		{"TextOnImageOnlyModel", SearchRequest{Model: "dino", Text: "x", K: 1}, ErrUnsupportedModality},
		{"NoQuery", SearchRequest{Model: "clip", K: 1}, ErrNoQuery},
		{"BothQueries", SearchRequest{Model: "clip", Text: "x", Image: png, K: 1}, ErrNoQuery},
		{"InvalidK", SearchRequest{Model: "clip", Text: "x"}, ErrInvalidK},
		{"BadImage", SearchRequest{Model: "clip", Image: []byte{1, 2, 3}, K: 1}, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	hits, err := e.Search(ctx, SearchRequest{Model: "siglip", Text: "anything", K: 3})
	require.NoError(t, err)
	assert.Empty(t, hits, "empty index is not an error")
}

func TestEngine_TagAndScore(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime())
	png := testutil.SolidPNG(t, 10, 6, blue)

	tags, err := e.Tag(ctx, png, 2)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Greater(t, tags["sky"], float32(0.9))
	assert.Less(t, tags["sea"], float32(0.1))

	all, err := e.Tag(ctx, png, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, all["sand"], 1e-6)

	score, err := e.Score(ctx, png)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, score, 1e-6)

	assert.ElementsMatch(t, []string{"tagger", "aesthetic", "clip"}, e.Stats().Loaded)

	require.NoError(t, e.Unload("tagger"))
	require.NoError(t, e.Unload("tagger"))
	assert.NotContains(t, e.Stats().Loaded, "tagger")

	_, err = e.Tag(ctx, []byte("nope"), 1)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEngine_ScoreWithoutWeights(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, blobstore.NewMemoryStore(), newRuntime(), WithIdleTimeout(-1))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Score(ctx, testutil.SolidPNG(t, 4, 4, red))
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestEngine_SearchByColor(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime(), WithModels(embed.KindCLIP))

	redRes, err := e.Ingest(ctx, testutil.SolidPNG(t, 8, 8, red), "r.png")
	require.NoError(t, err)
	mixed, err := e.Ingest(ctx, testutil.EncodePNG(t, testutil.SplitImage(8, 8, red, green)), "m.png")
	require.NoError(t, err)
	_, err = e.Ingest(ctx, testutil.SolidPNG(t, 8, 8, blue), "b.png")
	require.NoError(t, err)

	matches, err := e.SearchByColor(ctx, testutil.SolidPNG(t, 2, 2, red), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, redRes.ID, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, mixed.ID, matches[1].ID)

	_, err = e.SearchByColor(ctx, []byte("?"), 2)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEngine_Forget(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	e := newEngine(t, store, newRuntime(), WithModels(embed.KindCLIP, embed.KindDINO))

	res, err := e.Ingest(ctx, testutil.SolidPNG(t, 4, 4, red), "a.png")
	require.NoError(t, err)

	n, err := e.Forget(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, e.Stats().Colors)

	_, err = blobstore.ReadAll(ctx, store, res.Object)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	n, err = e.Forget(ctx, "https://elsewhere/x.png")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_DurableRestart(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	rt := newRuntime()
	opts := []Option{
		WithModels(embed.KindCLIP, embed.KindSigLIP),
		WithDurableIndexes(store, "indexes/", compression.ZSTD),
		WithColorCorpus("indexes/colors.json"),
	}

	first, err := New(ctx, store, rt, append(opts, WithIdleTimeout(-1))...)
	require.NoError(t, err)

	png := testutil.SolidPNG(t, 6, 6, green)
	res, err := first.Ingest(ctx, png, "g.png")
	require.NoError(t, err)

	// Pending inserts are not queryable before Flush.
	hits, err := first.Search(ctx, SearchRequest{Model: "clip", Image: png, K: 1})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	_, err = first.Search(ctx, SearchRequest{Model: "clip", Image: png, K: 1})
	assert.ErrorIs(t, err, ErrClosed)

	second := newEngine(t, store, rt, opts...)

	for _, model := range []string{"clip", "siglip"} {
		hits, err := second.Search(ctx, SearchRequest{Model: model, Image: png, K: 1})
		require.NoError(t, err)
		require.Len(t, hits, 1, model)
		assert.Equal(t, res.ID, hits[0].ID)
	}

	matches, err := second.SearchByColor(ctx, png, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.ID, matches[0].ID)
}

func TestEngine_ChromemIndexes(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, blobstore.NewMemoryStore(), newRuntime(),
		WithModels(embed.KindCLIP), WithChromemIndexes(""))

	png := testutil.SolidPNG(t, 4, 4, red)
	res, err := e.Ingest(ctx, png, "a.jpg")
	require.NoError(t, err)
	require.Equal(t, []string{"clip"}, res.Succeeded())

	idx, ok := e.indexes.Get("clip")
	require.True(t, ok)
	assert.Equal(t, distance.MetricCosine, idx.Metric())

	hits, err := e.Search(ctx, SearchRequest{Model: "clip", Image: png, K: 3})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestTranslateError(t *testing.T) {
	err := translateError(&index.ErrDimensionMismatch{Expected: 3, Actual: 2})

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.ErrorIs(t, err, index.ErrDimension)

	assert.NoError(t, translateError(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, translateError(plain))
}
