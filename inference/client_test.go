package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/models/clip", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":          "clip",
			"embedding_dim": 3,
			"modalities":    []string{"text", "image"},
		})
	})

	mux.HandleFunc("/api/embed/image", func(w http.ResponseWriter, r *http.Request) {
		var req embedImageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		raw, err := base64.StdEncoding.DecodeString(req.Image)
		assert.NoError(t, err)

		_ = json.NewEncoder(w).Encode(embedResponse{
			Embedding: []float32{float32(len(raw)), 0, 0},
			Model:     req.Model,
			Dimension: 3,
		})
	})

	mux.HandleFunc("/api/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req embedTextRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Model == "dino" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(errorResponse{Error: "model has no text encoder", Code: "unsupported"})
			return
		}

		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0, float32(len(req.Text)), 0}})
	})

	mux.HandleFunc("/api/infer", func(w http.ResponseWriter, r *http.Request) {
		var req inferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := make([]float32, len(req.Input))
		for i, v := range req.Input {
			out[i] = v * 2
		}
		_ = json.NewEncoder(w).Encode(inferResponse{Output: out, Shape: req.Shape})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	t.Run("Info", func(t *testing.T) {
		info, err := c.Info(ctx, "clip")
		require.NoError(t, err)
		assert.Equal(t, 3, info.Dimension)
		assert.True(t, info.Supports(ModalityText))
		assert.True(t, info.Supports(ModalityImage))
	})

	t.Run("EmbedImage", func(t *testing.T) {
		vec, err := c.EmbedImage(ctx, "clip", []byte("12345"))
		require.NoError(t, err)
		assert.Equal(t, []float32{5, 0, 0}, vec)
	})

	t.Run("EmbedText", func(t *testing.T) {
		vec, err := c.EmbedText(ctx, "clip", "cat")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 3, 0}, vec)
	})

	t.Run("APIError", func(t *testing.T) {
		_, err := c.EmbedText(ctx, "dino", "cat")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "unsupported", apiErr.Code)
		assert.False(t, apiErr.Temporary())
	})

	t.Run("Infer", func(t *testing.T) {
		out, err := c.Infer(ctx, "tagger", []float32{1, 2, 3, 4}, []int{1, 4})
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4, 6, 8}, out)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := c.Info(ctx, "unknown")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}

func TestClient_BadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2}, Dimension: 3})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.EmbedImage(context.Background(), "clip", []byte("x"))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_CircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithCircuitBreaker(2, time.Hour))
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.EmbedText(ctx, "clip", "x")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.Temporary())
		assert.Equal(t, "overloaded", apiErr.Message)
	}

	_, err = c.EmbedText(ctx, "clip", "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithCircuitBreaker(1, time.Hour))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.EmbedText(context.Background(), "clip", "x")
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("ftp://models")
	assert.Error(t, err)
}
