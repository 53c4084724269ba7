package hacienda

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a provider call failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindServer         Kind = "server"
	KindNetwork        Kind = "network"
	KindUnknown        Kind = "unknown"
)

// Retryable reports whether the submission client may retry this kind of
// failure within its synchronous attempt budget.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindNetwork, KindUnknown:
		return true
	}
	return false
}

// Error classifies failures of the receiving endpoint exchange.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("hacienda %s error", e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable reports whether an error should be retried by the client.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// KindOf extracts the classification from an error chain, defaulting to
// KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func kindForStatus(statusCode int) Kind {
	switch {
	case statusCode == 400:
		return KindValidation
	case statusCode == 401:
		return KindAuthentication
	case statusCode == 403:
		return KindAuthorization
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}
