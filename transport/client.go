// Package transport is the HTTP collaborator shared by every provider: it
// applies one retry, timeout and TLS policy to JSON, multipart and streaming
// requests.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a synchronous request and the wait for response headers.
	DefaultTimeout = 60 * time.Second
	// DefaultRetrySleep is the initial delay between retries.
	DefaultRetrySleep = 200 * time.Millisecond
	// MaxRetryInterval caps the exponential delay between retries.
	MaxRetryInterval = 10 * time.Second
	// MaxRetryAfter caps how long a server-sent Retry-After can stall a retry.
	MaxRetryAfter = 60 * time.Second

	maxErrorBody = 2048
)

// Config is the retry/timeout/TLS policy applied uniformly to every request.
type Config struct {
	Timeout            time.Duration
	RetryTimes         int
	RetrySleep         time.Duration
	InsecureSkipVerify bool
	CABundle           string // Path to a PEM bundle added to the system roots
	UserAgent          string
}

// Client issues HTTP requests on behalf of providers. It is immutable after
// construction and safe for concurrent use.
type Client struct {
	http   *http.Client // Bounded by Config.Timeout
	stream *http.Client // No overall deadline; header wait bounded by the transport
	cfg    Config
	logger zerolog.Logger
}

// New builds a Client from cfg.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetrySleep <= 0 {
		cfg.RetrySleep = DefaultRetrySleep
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //#nosec G402 -- opt-in for self-hosted gateways
	}
	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle) //#nosec G304 -- configured CA bundle path
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", cfg.CABundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", cfg.CABundle)
		}
		tlsConfig.RootCAs = pool
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig
	base.ResponseHeaderTimeout = cfg.Timeout

	return newClient(&http.Client{Transport: base, Timeout: cfg.Timeout}, &http.Client{Transport: base}, cfg, logger), nil
}

// NewWithHTTPClient wraps an existing http.Client, used for both synchronous
// and streaming requests.
func NewWithHTTPClient(hc *http.Client, cfg Config, logger zerolog.Logger) *Client {
	if cfg.RetrySleep <= 0 {
		cfg.RetrySleep = DefaultRetrySleep
	}
	return newClient(hc, hc, cfg, logger)
}

func newClient(hc, stream *http.Client, cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		http:   hc,
		stream: stream,
		cfg:    cfg,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Config returns the policy the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Request describes one call. Body is JSON-encoded unless it is already
// []byte/json.RawMessage; Form takes precedence over Body.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Form    *Multipart
}

// Response is a fully-read synchronous response.
type Response struct {
	Status int
	Header http.Header
	body   []byte
}

// Raw returns the response body bytes.
func (r *Response) Raw() []byte {
	return r.body
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// RawJSON returns the body as an llm.RawResponse, failing when it is not JSON.
func (r *Response) RawJSON() (llm.RawResponse, error) {
	raw := llm.RawResponse(r.body)
	if !raw.Valid() {
		return nil, fmt.Errorf("response is not valid JSON (content-type %q)", r.Header.Get("Content-Type"))
	}
	return raw, nil
}

// StreamResponse is an open streaming response. The caller owns Body.
type StreamResponse struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Do sends req and reads the whole body. Non-2xx statuses are returned as
// classified *llm.Error values.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var out *Response
	err := c.withRetry(ctx, req, func(httpReq *http.Request) error {
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return classifyNetworkError(ctx, err)
		}
		defer resp.Body.Close() //nolint:errcheck // Body fully read below

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return classifyNetworkError(ctx, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classifyStatus(resp.StatusCode, resp.Header, body)
		}
		out = &Response{Status: resp.StatusCode, Header: resp.Header, body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream sends req and returns as soon as response headers arrive. Only
// establishing the connection is retried.
func (c *Client) Stream(ctx context.Context, req Request) (*StreamResponse, error) {
	var out *StreamResponse
	err := c.withRetry(ctx, req, func(httpReq *http.Request) error {
		httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")
		resp, err := c.stream.Do(httpReq)
		if err != nil {
			return classifyNetworkError(ctx, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close() //nolint:errcheck // Error body read below
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return classifyStatus(resp.StatusCode, resp.Header, body)
		}
		out = &StreamResponse{Status: resp.StatusCode, Header: resp.Header, Body: resp.Body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withRetry encodes req once and runs attempt with a fresh *http.Request per
// try until it succeeds, fails permanently, or retries are exhausted.
func (c *Client) withRetry(ctx context.Context, req Request, attempt func(*http.Request) error) error {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return err
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
		if body == nil {
			method = http.MethodGet
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetrySleep
	eb.MaxInterval = MaxRetryInterval
	eb.MaxElapsedTime = 0
	eb.Reset()
	hinted := &retryAfterBackOff{BackOff: eb}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(max(c.cfg.RetryTimes, 0))), ctx)
	logURL := redactURL(req.URL)

	tries := 0
	operation := func() error {
		tries++
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		if c.cfg.UserAgent != "" {
			httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		c.logger.Debug().Str("method", method).Str("url", logURL).Int("attempt", tries).Msg("Sending request")
		err = attempt(httpReq)
		if err == nil {
			return nil
		}
		if !llm.IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		hinted.hint = llm.ExtractRetryAfter(err)
		c.logger.Warn().Err(err).Str("url", logURL).Int("attempt", tries).Msg("Request failed, will retry if attempts remain")
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !llm.IsTransportFailure(err) {
			return classifyNetworkError(ctx, ctxErr)
		}
		return err
	}
	return nil
}

// retryAfterBackOff waits for the server's Retry-After, capped at
// MaxRetryAfter, instead of the exponential delay when the last failure
// carried one.
type retryAfterBackOff struct {
	backoff.BackOff
	hint *time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	hint := b.hint
	b.hint = nil
	if next == backoff.Stop || hint == nil {
		return next
	}
	return min(*hint, MaxRetryAfter)
}

// redactURL drops the query string, which may carry an API key.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.User = nil
	return u.String()
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.Form != nil {
		return req.Form.encode()
	}
	switch b := req.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/json", nil
	case json.RawMessage:
		return b, "application/json", nil
	case llm.RawResponse:
		return b, "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}
