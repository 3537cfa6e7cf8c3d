package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	KindTimeout         ErrorKind = "TIMEOUT"
	KindRateLimit       ErrorKind = "RATE_LIMIT"
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
	KindUnavailable     ErrorKind = "UNAVAILABLE"
)

// Error carries a closed kind set so callers can branch without inspecting
// provider-specific detail.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "llm error"
	}
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm %s (status=%d)", e.Kind, e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf classifies any error from a Client call. Unknown errors count as
// UNAVAILABLE so callers always get a member of the closed set.
func KindOf(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return KindUnavailable
}
