package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/tidwall/gjson"
)

// classifyStatus maps a non-2xx response to a typed *llm.Error.
func classifyStatus(status int, header http.Header, body []byte) error {
	message := upstreamMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}
	snippet := truncate(string(body), maxErrorBody)

	var out *llm.Error
	switch {
	case status == http.StatusTooManyRequests:
		out = llm.NewRateLimitError(message, parseRetryAfter(header.Get("Retry-After")), nil)
	case status == http.StatusRequestEntityTooLarge:
		out = llm.NewRequestTooLargeError(message, nil)
	case status == http.StatusBadRequest || status == http.StatusUnauthorized ||
		status == http.StatusForbidden || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		out = &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: message}
	case status >= 500:
		out = llm.NewProviderError(message, nil)
		out.Retryable = true
		out.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	default:
		out = &llm.Error{Type: llm.ErrorTypeTransport, Message: message}
	}
	out.StatusCode = status
	out.Body = snippet
	return out
}

// classifyNetworkError maps connection failures. Timeouts and resets are
// retryable; context cancellation is not.
func classifyNetworkError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) {
		return &llm.Error{Type: llm.ErrorTypeNetwork, Message: "request canceled", ProviderErr: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return &llm.Error{Type: llm.ErrorTypeTimeout, Message: "request timed out", ProviderErr: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &llm.Error{Type: llm.ErrorTypeTimeout, Message: "request timed out", Retryable: true, ProviderErr: err}
	}
	return &llm.Error{Type: llm.ErrorTypeNetwork, Message: "network error", Retryable: true, ProviderErr: err}
}

// upstreamMessage pulls the human readable message out of the common error
// envelopes ({"error":{"message"}}, {"error":"..."}, {"message":"..."}).
func upstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		d := time.Duration(secs * float64(time.Second))
		return &d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...(truncated)", s[:n])
}
