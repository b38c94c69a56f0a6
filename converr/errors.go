// Package converr defines the error kinds a conversion can fail with and
// how each kind is reported over HTTP.
package converr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind classifies a conversion failure
type Kind int

const (
	KindUnknown Kind = iota
	KindInput
	KindUnauthorized
	KindConfiguration
	KindRemoteService
	KindTimeout
	KindLocalProcessing
	KindCancelled
	KindConflict
)

// String returns the name stored in history records and logs
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUnauthorized:
		return "unauthorized"
	case KindConfiguration:
		return "configuration"
	case KindRemoteService:
		return "remote_service"
	case KindTimeout:
		return "timeout"
	case KindLocalProcessing:
		return "local_processing"
	case KindCancelled:
		return "cancelled"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// ErrTimedOut is the message carried by every KindTimeout error
var ErrTimedOut = errors.New("conversion timed out")

// Error is a classified failure. Msg is what the caller sees; Err is the
// underlying cause and is kept for logs and errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// RemoteJobID is set when a remote job was created before the failure
	RemoteJobID string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Input reports a problem with what the caller sent
func Input(format string, args ...any) *Error {
	return newf(KindInput, nil, format, args...)
}

// InputWrap is Input with an underlying cause
func InputWrap(err error, format string, args ...any) *Error {
	return newf(KindInput, err, format, args...)
}

// Unauthorized reports a missing or rejected bearer token
func Unauthorized(err error) *Error {
	return newf(KindUnauthorized, err, "unauthorized")
}

// MissingCredential reports an API key that is not configured. It is
// returned before any network call is made.
func MissingCredential(name string) *Error {
	return newf(KindConfiguration, nil, "missing credential: %s is not configured", name)
}

// Configuration reports a server-side setup problem
func Configuration(format string, args ...any) *Error {
	return newf(KindConfiguration, nil, format, args...)
}

// MaxRemoteBody caps how much of an upstream error body ReadBody keeps
const MaxRemoteBody = 64 << 10

// ReadBody returns an upstream error body as received, cut at MaxRemoteBody
func ReadBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, MaxRemoteBody))
	return string(b)
}

// Remote reports a non-success answer from an external service. body is
// embedded unmodified; callers read it with ReadBody.
func Remote(service string, status int, body string) *Error {
	return newf(KindRemoteService, nil, "%s failed (status %d): %s", service, status, body)
}

// RemoteFailure reports a remote job that ran and ended in error
func RemoteFailure(service, detail string) *Error {
	return newf(KindRemoteService, nil, "%s failed: %s", service, detail)
}

// RemoteWrap reports a transport failure talking to an external service
func RemoteWrap(service string, err error) *Error {
	return newf(KindRemoteService, err, "%s request failed", service)
}

// Timeout reports that a bounded wait expired
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Msg: ErrTimedOut.Error(), Err: err}
}

// Local reports a failure inside a local encoder or decoder
func Local(err error, format string, args ...any) *Error {
	return newf(KindLocalProcessing, err, format, args...)
}

// Cancelled reports that the caller went away or the request was cancelled
func Cancelled(err error) *Error {
	return newf(KindCancelled, err, "conversion cancelled")
}

// Conflict reports a request ID that another live request already owns
func Conflict(err error, format string, args ...any) *Error {
	return newf(KindConflict, err, format, args...)
}

// WithRemoteJob records the remote job ID on err when err is an *Error
func WithRemoteJob(err error, jobID string) error {
	var ce *Error
	if errors.As(err, &ce) && ce.RemoteJobID == "" {
		ce.RemoteJobID = jobID
	}
	return err
}

// KindOf returns the kind of err. Context errors that were never
// classified map to cancelled or timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// RemoteJobID returns the remote job attached to err, if any
func RemoteJobID(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RemoteJobID
	}
	return ""
}

// HTTPStatus is the single place error kinds become status codes
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message is the plain-text body sent to the caller
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Error()
	}
	switch KindOf(err) {
	case KindCancelled:
		return "conversion cancelled"
	case KindTimeout:
		return ErrTimedOut.Error()
	}
	return fmt.Sprintf("Error during conversion: %v", err)
}
