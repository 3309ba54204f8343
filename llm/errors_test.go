package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}
	if IsRetryableError(err) {
		t.Error("Expected request too large error to be non-retryable")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestUnsupportedCapability(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewUnsupportedCapabilityError("ollama", "textToSpeech"))
	if !IsUnsupportedCapability(err) {
		t.Fatal("Expected wrapped error to be an unsupported capability error")
	}
	if IsTransportFailure(err) {
		t.Error("Unsupported capability must not be classified as a transport failure")
	}

	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatal("Expected *Error")
	}
	if llmErr.Provider != "ollama" || llmErr.Operation != "textToSpeech" {
		t.Errorf("Unexpected provider/operation: %q/%q", llmErr.Provider, llmErr.Operation)
	}
}

func TestNewTransportError_KeepsClassification(t *testing.T) {
	retryAfter := time.Second
	base := NewRateLimitError("slow down", &retryAfter, nil)

	err := NewTransportError("openai", "chat", base)
	if !IsRateLimitError(err) {
		t.Error("Expected rate limit classification to survive")
	}
	if err.Provider != "openai" || err.Operation != "chat" {
		t.Errorf("Expected provider/operation to be set, got %q/%q", err.Provider, err.Operation)
	}
	if base.Provider != "" {
		t.Error("Expected original error to be left untouched")
	}

	plain := NewTransportError("ollama", "chat", errors.New("connection refused"))
	if plain.Type != ErrorTypeTransport {
		t.Errorf("Expected transport type, got %s", plain.Type)
	}
	if !IsTransportFailure(plain) {
		t.Error("Expected transport failure")
	}
}
