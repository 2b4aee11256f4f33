// Package pipetest provides typed test helpers for relay pipelines.
package pipetest

import (
	"context"
	"net/url"
	"testing"

	"github.com/bjaus/relay"
)

// Client drives a Pipeline in-process, standing in for the transport.
type Client struct {
	Pipeline *relay.Pipeline
}

// NewClient creates a test client for a pipeline.
func NewClient(t testing.TB, p *relay.Pipeline) *Client {
	t.Helper()
	return &Client{Pipeline: p}
}

// Get executes a GET request against the pipeline.
func (c *Client) Get(t testing.TB, rawPath string) *relay.Response {
	t.Helper()
	return c.Do(t, "GET", rawPath, nil)
}

// Post executes a POST request with an already-parsed body.
func (c *Client) Post(t testing.TB, rawPath string, body any) *relay.Response {
	t.Helper()
	return c.Do(t, "POST", rawPath, body)
}

// Delete executes a DELETE request against the pipeline.
func (c *Client) Delete(t testing.TB, rawPath string) *relay.Response {
	t.Helper()
	return c.Do(t, "DELETE", rawPath, nil)
}

// Do executes an arbitrary request. rawPath may carry a query string.
func (c *Client) Do(t testing.TB, method, rawPath string, body any) *relay.Response {
	t.Helper()

	u, err := url.Parse(rawPath)
	if err != nil {
		t.Fatalf("pipetest: parse path %q: %v", rawPath, err)
	}

	resp := c.Pipeline.Execute(context.Background(), &relay.IncomingRequest{
		Method: method,
		Path:   u.Path,
		Query:  u.Query(),
		Body:   body,
	})
	if resp == nil {
		t.Fatal("pipetest: Execute returned nil response")
	}
	return resp
}
