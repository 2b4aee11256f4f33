package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRouteNotFound is returned by Dispatch when no registered route matches
// the request's method and path.
var ErrRouteNotFound = errors.New("route not found")

// ErrTaskRetired is the failure of a Future spawned under a task whose own
// function has already returned.
var ErrTaskRetired = errors.New("task retired")

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is an error with an HTTP status code. Returning one from a
// handler produces a response with that status; Detail, when set, becomes
// the response payload in place of the default {"error": Message} body.
type HTTPError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ErrorDetail returns an error whose detail payload is written verbatim as
// the response body.
func ErrorDetail(status int, message string, detail any) error {
	return &HTTPError{Status: status, Message: message, Detail: detail}
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// DependencyError reports a provider that failed before yielding a value.
// Providers acquired earlier in the same Resolve call have already been
// closed, in reverse acquisition order, by the time this error is returned.
type DependencyError struct {
	Provider string
	Err      error
}

// Error returns the provider name and underlying cause.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("resolve dependency %q: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *DependencyError) Unwrap() error { return e.Err }

// StatusCode returns http.StatusInternalServerError.
func (e *DependencyError) StatusCode() int { return http.StatusInternalServerError }

// CleanupError reports a provider closer that failed during scope teardown.
// Teardown collects these and keeps going; one failing closer never blocks
// the rest.
type CleanupError struct {
	Provider string
	Err      error
}

// Error returns the provider name and underlying cause.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %q: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying closer error.
func (e *CleanupError) Unwrap() error { return e.Err }

// TaskError reports a failed background task. It is logged and passed to the
// pipeline's OnTaskError hook; it never reaches the client and never cancels
// sibling tasks.
type TaskError struct {
	Index int    // position in registration order
	Err   error
	Stack string // captured stack for panics, empty otherwise
}

// Error returns the task index and underlying cause.
func (e *TaskError) Error() string {
	return fmt.Sprintf("background task %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying task error.
func (e *TaskError) Unwrap() error { return e.Err }

// PanicError wraps a panic recovered from a handler or spawned function.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the panic value.
func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
