package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Silversoul-07/cloudforge/codec"
)

const maxErrorBody = 64 << 10

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient performs the requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds a single request. Defaults to 60s.
	Timeout time.Duration

	// RequestsPerSec caps the request rate. 0 means unlimited.
	RequestsPerSec float64

	// FailureThreshold is the number of consecutive server-side failures that
	// opens the circuit. Defaults to 5.
	FailureThreshold uint32

	// OpenTimeout is how long the circuit stays open before probing.
	// Defaults to 30s.
	OpenTimeout time.Duration

	// Codec encodes request and response bodies. Defaults to codec.Default.
	Codec codec.Codec

	Logger *slog.Logger
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) func(*ClientOptions) {
	return func(o *ClientOptions) { o.HTTPClient = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) func(*ClientOptions) {
	return func(o *ClientOptions) { o.Timeout = d }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) func(*ClientOptions) {
	return func(o *ClientOptions) { o.RequestsPerSec = rps }
}

// WithCircuitBreaker configures the breaker thresholds.
func WithCircuitBreaker(failures uint32, openTimeout time.Duration) func(*ClientOptions) {
	return func(o *ClientOptions) {
		o.FailureThreshold = failures
		o.OpenTimeout = openTimeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(*ClientOptions) {
	return func(o *ClientOptions) { o.Logger = l }
}

// Client is a Runtime talking JSON over HTTP to a model server.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	codec   codec.Codec
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

var _ Runtime = (*Client)(nil)

// NewClient creates a client for the model server at baseURL.
func NewClient(baseURL string, optFns ...func(*ClientOptions)) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("inference: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("inference: unsupported url scheme %q", u.Scheme)
	}

	opts := ClientOptions{
		Timeout:          60 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		Codec:            codec.Default,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		base:    u,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		codec:   opts.Codec,
		logger:  opts.Logger,
	}

	if opts.RequestsPerSec > 0 {
		burst := int(opts.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	threshold := opts.FailureThreshold
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors say nothing about server health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// Info implements Runtime.
func (c *Client) Info(ctx context.Context, model string) (Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(model), nil, &info); err != nil {
		return Info{}, err
	}
	if info.Name == "" {
		info.Name = model
	}

	return info, nil
}

// EmbedImage implements Runtime.
func (c *Client) EmbedImage(ctx context.Context, model string, image []byte) ([]float32, error) {
	req := embedImageRequest{
		Model: model,
		Image: base64.StdEncoding.EncodeToString(image),
	}

	var resp embedResponse
	if err := c.do(ctx, http.MethodPost, "/api/embed/image", req, &resp); err != nil {
		return nil, err
	}

	return checkEmbedding(resp)
}

// EmbedText implements Runtime.
func (c *Client) EmbedText(ctx context.Context, model string, text string) ([]float32, error) {
	req := embedTextRequest{Model: model, Text: text}

	var resp embedResponse
	if err := c.do(ctx, http.MethodPost, "/api/embed/text", req, &resp); err != nil {
		return nil, err
	}

	return checkEmbedding(resp)
}

// Infer implements Runtime.
func (c *Client) Infer(ctx context.Context, model string, input []float32, shape []int) ([]float32, error) {
	req := inferRequest{Model: model, Input: input, Shape: shape}

	var resp inferResponse
	if err := c.do(ctx, http.MethodPost, "/api/infer", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Output) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrBadResponse)
	}

	return resp.Output, nil
}

func checkEmbedding(resp embedResponse) ([]float32, error) {
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrBadResponse)
	}
	if resp.Dimension != 0 && resp.Dimension != len(resp.Embedding) {
		return nil, fmt.Errorf("%w: dimension %d, got %d values", ErrBadResponse, resp.Dimension, len(resp.Embedding))
	}

	return resp.Embedding, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body []byte
	if in != nil {
		b, err := c.codec.Marshal(in)
		if err != nil {
			return fmt.Errorf("inference: encode request: %w", err)
		}
		body = b
	}

	start := time.Now()
	data, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.logger.Debug("Inference request failed", "method", method, "path", path, "duration", time.Since(start), "error", err)
		return err
	}

	if err := c.codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.decodeError(resp)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := c.codec.Unmarshal(raw, &er); err == nil && er.Error != "" {
		apiErr.Message = er.Error
		apiErr.Code = er.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}

	return apiErr
}
