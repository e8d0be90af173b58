package translation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is returned when no request could be built (empty name, malformed URL)
	ErrBadRequest = errors.New("invalid translation request")

	// ErrEmptyResponse is returned for a successful status with an empty body
	ErrEmptyResponse = errors.New("empty response body")

	// ErrClosed is returned by lookups made after Close
	ErrClosed = errors.New("translation client is closed")
)

// StatusError is returned for any non-2xx status. 5xx statuses are retried
// until the retry budget runs out; 4xx statuses surface immediately.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error %d", e.Code)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is a server-side failure worth retrying
func (e *StatusError) Transient() bool {
	return e.Code >= 500 && e.Code <= 599
}

// DecodeError wraps a body that arrived with a successful status but could not be parsed
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify names the failure category of a lookup error for logs and metrics
func Classify(err error) string {
	var statusErr *StatusError
	var decodeErr *DecodeError

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.As(err, &statusErr):
		if statusErr.Transient() {
			return "status_5xx"
		}
		return "status_4xx"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
