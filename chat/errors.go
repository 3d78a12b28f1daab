package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind is the error taxonomy surfaced on the event stream.
type ErrorKind string

const (
	// ErrorKindValidation rejects empty or oversized input before any
	// backend call.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindProviderUnavailable marks an embedding or completion
	// backend failure that survived one retry.
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable"
	// ErrorKindRateLimited carries a retry-after hint.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindGenerationTimeout marks a generation that did not start or
	// finish within its bounds; partial output is persisted incomplete.
	ErrorKindGenerationTimeout ErrorKind = "generation_timeout"
	// ErrorKindCancelled is the expected user-driven outcome, not a failure.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindInternal covers everything else.
	ErrorKindInternal ErrorKind = "internal"
)

// Error is a typed chat error carried on the stream's error event.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// Classify maps an arbitrary failure to the stream taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrorKindCancelled, Message: "request cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrorKindGenerationTimeout, Message: "generation timed out"}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &Error{Kind: ErrorKindRateLimited, Message: "provider rate limit hit, try again shortly", RetryAfter: 10 * time.Second}
		case apiErr.HTTPStatusCode >= 500:
			return &Error{Kind: ErrorKindProviderUnavailable, Message: "provider is unavailable, try again"}
		}
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "rate limit") || strings.Contains(message, "429"):
		return &Error{Kind: ErrorKindRateLimited, Message: "provider rate limit hit, try again shortly", RetryAfter: 10 * time.Second}
	case strings.Contains(message, "connection refused"),
		strings.Contains(message, "no such host"),
		strings.Contains(message, "unavailable"):
		return &Error{Kind: ErrorKindProviderUnavailable, Message: "provider is unavailable, try again"}
	}

	return &Error{Kind: ErrorKindInternal, Message: err.Error()}
}
