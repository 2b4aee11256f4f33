package relay

import (
	"net/http"
	"net/url"
)

// IncomingRequest is the transport-built request abstraction the core
// consumes. The transport has already done the wire work: the body arrives
// parsed, the query arrives split. Method and Path drive dispatch.
type IncomingRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Input is the normalized handler input: path parameters captured by the
// router plus whatever the InputBuilder carried over from the request.
type Input struct {
	Params PathParams
	Query  url.Values
	Body   any
}

// InputBuilder normalizes a matched request into handler input. Validation
// and body decoding belong behind this seam; the core treats the builder as
// an external collaborator. A builder error aborts the request with the
// error's status (400 when the error carries none).
type InputBuilder interface {
	BuildInput(req *IncomingRequest, params PathParams) (*Input, error)
}

// passthroughBuilder copies the already-parsed request fields verbatim.
// It is the default when no InputBuilder is configured.
type passthroughBuilder struct{}

func (passthroughBuilder) BuildInput(req *IncomingRequest, params PathParams) (*Input, error) {
	return &Input{Params: params, Query: req.Query, Body: req.Body}, nil
}
