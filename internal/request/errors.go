package request

import (
	"errors"
	"fmt"
)

// TransportError is a network-level failure: connection refused, DNS, reset,
// or the per-attempt timeout firing.
type TransportError struct {
	Method  string
	URL     string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request timed out (%s %s): %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("request failed (%s %s): %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	Method      string
	URL         string
	Code        int
	Status      string
	BodySnippet string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s (%s %s)", e.Code, e.Status, e.Method, e.URL)
	if e.BodySnippet != "" {
		msg += ": " + e.BodySnippet
	}
	return msg
}

// EmptyBodyError is returned when a 2xx response carries no body.
type EmptyBodyError struct {
	URL string
}

func (e *EmptyBodyError) Error() string {
	return fmt.Sprintf("response body is empty (%s)", e.URL)
}

// MalformedBodyError is returned when the body is not JSON, or is JSON but
// not an object.
type MalformedBodyError struct {
	URL     string
	Reason  string
	Snippet string
}

func (e *MalformedBodyError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s (%s): %q", e.Reason, e.URL, e.Snippet)
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.URL)
}

// IsRetryable reports whether err belongs to the classes the Executor retries.
func IsRetryable(err error) bool {
	var (
		te *TransportError
		he *HTTPStatusError
		ee *EmptyBodyError
		me *MalformedBodyError
	)
	return errors.As(err, &te) || errors.As(err, &he) || errors.As(err, &ee) || errors.As(err, &me)
}
