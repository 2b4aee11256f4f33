package relay

import (
	"errors"
	"net/http"
)

// Response is the (payload, status, header) tuple produced once per request,
// strictly before any background task runs. The header map is optional; a
// nil Header is the two-element form.
type Response struct {
	Body   any
	Status int
	Header http.Header
}

// NewResponse builds a response with the given payload and status.
func NewResponse(body any, status int) *Response {
	return &Response{Body: body, Status: status}
}

// WithHeader sets a response header and returns the response for chaining.
func (r *Response) WithHeader(key, value string) *Response {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
	return r
}

// notFoundResponse is the fixed payload for a dispatch miss.
func notFoundResponse() *Response {
	return &Response{
		Body:   map[string]any{"error": "not found"},
		Status: http.StatusNotFound,
	}
}

// internalErrorResponse is the generic 500 used for unhandled handler
// failures. No detail from the underlying error leaks to the client.
func internalErrorResponse() *Response {
	return &Response{
		Body:   map[string]any{"error": "internal server error"},
		Status: http.StatusInternalServerError,
	}
}

// errorResponse converts a structured error into a response. *HTTPError uses
// its status and message (or its Detail payload verbatim); any other
// StatusCoder keeps its status with the error text as the payload; everything
// else becomes the generic 500.
func errorResponse(err error) *Response {
	var he *HTTPError
	if errors.As(err, &he) {
		body := he.Detail
		if body == nil {
			body = map[string]any{"error": he.Message}
		}
		return &Response{Body: body, Status: he.Status}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return &Response{
			Body:   map[string]any{"error": err.Error()},
			Status: sc.StatusCode(),
		}
	}

	return internalErrorResponse()
}
