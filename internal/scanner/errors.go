package scanner

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a page could not be fetched.
type FetchErrorKind string

// Fetch failure kinds. All of them are terminal for the task.
const (
	FetchInvalidInput FetchErrorKind = "invalid_input"
	FetchHTTPStatus   FetchErrorKind = "http_status"
	FetchNoResponse   FetchErrorKind = "no_response"
	FetchOther        FetchErrorKind = "other"
)

// Reasons written to Error rows.
const (
	ReasonInvalidInput = "Empty or invalid URL"
	ReasonNoResponse   = "No response received from server or request timed out"
	ReasonUnknownError = "Unknown error occurred"
	ReasonNoMarkers    = "No CMS markers found"
)

// FetchError describes a failed fetch.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	StatusText string
	Err        error
}

// NewInvalidInputError reports a URL that cannot be fetched at all.
func NewInvalidInputError() *FetchError {
	return &FetchError{Kind: FetchInvalidInput}
}

// NewHTTPStatusError reports a response with an error status.
func NewHTTPStatusError(code int, text string) *FetchError {
	return &FetchError{Kind: FetchHTTPStatus, StatusCode: code, StatusText: text}
}

// NewNoResponseError reports a request that never got a response.
func NewNoResponseError(err error) *FetchError {
	return &FetchError{Kind: FetchNoResponse, Err: err}
}

// NewOtherError wraps any other fetch fault.
func NewOtherError(err error) *FetchError {
	return &FetchError{Kind: FetchOther, Err: err}
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Kind, e.Reason())
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Reason renders the human-readable cause stored on Error rows.
func (e *FetchError) Reason() string {
	switch e.Kind {
	case FetchInvalidInput:
		return ReasonInvalidInput
	case FetchHTTPStatus:
		return fmt.Sprintf("HTTP %d - %s", e.StatusCode, e.StatusText)
	case FetchNoResponse:
		return ReasonNoResponse
	default:
		if e.Err != nil && e.Err.Error() != "" {
			return e.Err.Error()
		}
		return ReasonUnknownError
	}
}

// Reason returns the row reason for any error, using the FetchError taxonomy when present.
func Reason(err error) string {
	if err == nil {
		return ReasonUnknownError
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Reason()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ReasonUnknownError
}

// ErrorKind returns the fetch failure kind for err, or FetchOther.
func ErrorKind(err error) FetchErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return FetchOther
}

// ErrQueueClosed is returned by a drained, closed work queue.
var ErrQueueClosed = errors.New("queue closed")
