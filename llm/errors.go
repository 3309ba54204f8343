package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	Provider    string
	Operation   string
	Body        string // Upstream response body, truncated
	ProviderErr error  // Original transport or provider error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeUnsupportedCapability ErrorType = "unsupported_capability"
	ErrorTypeTransport             ErrorType = "transport"
	ErrorTypeRateLimit             ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge       ErrorType = "request_too_large"
	ErrorTypeInvalidRequest        ErrorType = "invalid_request"
	ErrorTypeProvider              ErrorType = "provider"
	ErrorTypeNetwork               ErrorType = "network"
	ErrorTypeTimeout               ErrorType = "timeout"
	ErrorTypeUnknown               ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.ProviderErr != nil {
		return msg + ": " + e.ProviderErr.Error()
	}
	return msg
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

func errorType(err error) (ErrorType, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type, true
	}
	return "", false
}

// IsUnsupportedCapability checks if err reports a capability the provider lacks.
func IsUnsupportedCapability(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeUnsupportedCapability
}

// IsTransportFailure checks if err came from the network/HTTP layer.
func IsTransportFailure(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeTransport, ErrorTypeRateLimit, ErrorTypeRequestTooLarge,
		ErrorTypeInvalidRequest, ErrorTypeProvider, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeRateLimit
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeRequestTooLarge
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewUnsupportedCapabilityError reports that provider does not implement operation.
func NewUnsupportedCapabilityError(provider, operation string) *Error {
	return &Error{
		Type:      ErrorTypeUnsupportedCapability,
		Message:   fmt.Sprintf("provider %q does not support %s", provider, operation),
		Provider:  provider,
		Operation: operation,
	}
}

// NewUnresolvedProviderError reports a provider name that cannot be resolved
// to an instance; cause is kept for errors.Is.
func NewUnresolvedProviderError(provider string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeUnsupportedCapability,
		Message:     fmt.Sprintf("provider %q is unavailable", provider),
		Provider:    provider,
		ProviderErr: cause,
	}
}

// NewTransportError wraps a transport failure for provider/operation.
// Typed transport errors keep their classification.
func NewTransportError(provider, operation string, err error) *Error {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		cp := *llmErr
		cp.Provider = provider
		cp.Operation = operation
		return &cp
	}
	return &Error{
		Type:        ErrorTypeTransport,
		Message:     fmt.Sprintf("%s %s failed", provider, operation),
		Provider:    provider,
		Operation:   operation,
		ProviderErr: err,
	}
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  429,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError creates a new request too large error.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   false,
		StatusCode:  413,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewDecodeError reports a response body that could not be decoded.
func NewDecodeError(provider, operation string, err error) *Error {
	return &Error{
		Type:        ErrorTypeTransport,
		Message:     fmt.Sprintf("%s %s: invalid response body", provider, operation),
		Provider:    provider,
		Operation:   operation,
		ProviderErr: err,
	}
}
