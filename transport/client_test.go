package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, retries int) *Client {
	t.Helper()
	c, err := New(Config{Timeout: 5 * time.Second, RetryTimes: retries, RetrySleep: time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestDo_JSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m"}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, 0).Do(context.Background(), Request{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer k"},
		Body:    map[string]any{"model": "m"},
	})
	require.NoError(t, err)
	raw, err := resp.RawJSON()
	require.NoError(t, err)
	assert.True(t, raw.Get("ok").Bool())
}

func TestDo_GetWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, 0).Do(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, 3).Do(context.Background(), Request{URL: server.URL, Body: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, 3).Do(context.Background(), Request{URL: server.URL, Body: map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, llm.IsTransportFailure(err))

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrorTypeInvalidRequest, llmErr.Type)
	assert.Equal(t, http.StatusUnauthorized, llmErr.StatusCode)
	assert.Equal(t, "bad key", llmErr.Message)
}

func TestDo_RateLimitRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(t, 0).Do(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimitError(err))
	retryAfter := llm.ExtractRetryAfter(err)
	require.NotNil(t, retryAfter)
	assert.Equal(t, 7*time.Second, *retryAfter)
}

func TestDo_WaitsForRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var first time.Time
	var gap atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap.Store(int64(time.Since(first)))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, 1).Do(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	raw, err := resp.RawJSON()
	require.NoError(t, err)
	assert.True(t, raw.Get("ok").Bool())
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Duration(gap.Load()), time.Second)
}

func TestRetryAfterBackOff(t *testing.T) {
	b := &retryAfterBackOff{BackOff: &backoff.ConstantBackOff{Interval: time.Millisecond}}
	assert.Equal(t, time.Millisecond, b.NextBackOff())

	hint := 3 * time.Second
	b.hint = &hint
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, time.Millisecond, b.NextBackOff(), "hint applies once")

	long := 10 * time.Minute
	b.hint = &long
	assert.Equal(t, MaxRetryAfter, b.NextBackOff())

	stopped := &retryAfterBackOff{BackOff: &backoff.StopBackOff{}, hint: &hint}
	assert.Equal(t, backoff.Stop, stopped.NextBackOff())
}

func TestDo_LogsRedactedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var logs strings.Builder
	c, err := New(Config{Timeout: 5 * time.Second, RetryTimes: 1, RetrySleep: time.Millisecond}, zerolog.New(&logs).Level(zerolog.DebugLevel))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{URL: server.URL + "/v1/models?key=secret-key"})
	require.Error(t, err)
	assert.NotContains(t, logs.String(), "secret-key")
	assert.Contains(t, logs.String(), "/v1/models?redacted")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1/chat", redactURL("https://api.example.com/v1/chat"))
	assert.Equal(t, "https://api.example.com/v1?redacted", redactURL("https://user:pw@api.example.com/v1?key=abc"))
}

func TestDo_RequestTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	_, err := newTestClient(t, 2).Do(context.Background(), Request{URL: server.URL})
	assert.True(t, llm.IsRequestTooLargeError(err))
	assert.False(t, llm.IsRetryableError(err))
}

func TestDo_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, 3).Do(ctx, Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, llm.IsTransportFailure(err))
	assert.False(t, llm.IsRetryableError(err))
}

func TestStream_ReturnsOpenBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"x\":1}\n\n"))
	}))
	defer server.Close()

	resp, err := newTestClient(t, 0).Stream(context.Background(), Request{URL: server.URL, Body: map[string]any{"stream": true}})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `data: {"x":1}`)
}

func TestStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, 0).Stream(context.Background(), Request{URL: server.URL, Body: map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestDo_Multipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.wav", header.Filename)
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, 0).Do(context.Background(), Request{
		URL:  server.URL,
		Form: &Multipart{Fields: map[string]string{"model": "whisper-1"}, FilePath: path},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello"}`, string(resp.Raw()))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Nil(t, parseRetryAfter(""))
	assert.Nil(t, parseRetryAfter("soon"))
	d := parseRetryAfter("1.5")
	require.NotNil(t, d)
	assert.Equal(t, 1500*time.Millisecond, *d)

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d = parseRetryAfter(future)
	require.NotNil(t, d)
	assert.Greater(t, *d, 20*time.Second)
}

func TestUpstreamMessage(t *testing.T) {
	assert.Equal(t, "nested", upstreamMessage([]byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "flat", upstreamMessage([]byte(`{"error":"flat"}`)))
	assert.Equal(t, "top", upstreamMessage([]byte(`{"message":"top"}`)))
	assert.Equal(t, "plain text", upstreamMessage([]byte("plain text")))
}
