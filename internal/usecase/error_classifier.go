package usecase

import (
	"context"
	"errors"
	"net"
	"strings"

	"relay-ai/internal/domain"
)

// ErrorCategory indicates whether an invocation error may succeed on a
// retry of the same request.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // timeouts, connection-level failures
	ErrorCategoryPermanent               // JSON-RPC application errors, bad input
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original error
	Category ErrorCategory
	Sentinel error // mapped domain sentinel, or nil
}

// ErrorClassifier categorizes A2A invocation errors into retryable and
// permanent classes. Only idempotent-safe failures (the request never
// reached application logic) are retryable; a JSON-RPC error object is
// the backend speaking and is never retried.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify inspects an invocation error and returns its category.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	switch {
	case errors.Is(err, domain.ErrRPC):
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: domain.ErrRPC}
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTimeout}
	case errors.Is(err, context.Canceled):
		// The caller gave up; retrying on their behalf is wrong.
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent}
	case errors.Is(err, domain.ErrTransport):
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTransport}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTimeout}
		}
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTransport}
	}

	return c.classifyByString(err)
}

// classifyByString is the fallback for errors that reach us as plain
// strings (wrapped transport errors from the HTTP stack).
func (c *ErrorClassifier) classifyByString(err error) ClassifiedError {
	lower := strings.ToLower(err.Error())

	for _, p := range []string{"timeout", "deadline exceeded"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTimeout}
		}
	}
	for _, p := range []string{
		"connection refused", "connection reset", "no such host", "broken pipe", "eof",
	} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTransport}
		}
	}

	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}

// IsRetryable reports whether err belongs to a retryable class.
func (c *ErrorClassifier) IsRetryable(err error) bool {
	return c.Classify(err).Category == ErrorCategoryRetryable
}
