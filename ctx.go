package relay

import (
	"context"
	"net/url"
)

// Handler handles one matched request. It returns the response tuple or an
// error; an *HTTPError becomes a response with its status and detail, any
// other error becomes a generic 500.
type Handler func(c *Ctx) (*Response, error)

// Ctx is the handler's view of one request: normalized input, resolved
// dependencies, the structured-concurrency spawn point, and the
// background-task queue. A Ctx and everything it owns belong to exactly one
// request; background tasks registered through it are continuations of the
// same request and may keep using its dependencies.
type Ctx struct {
	task  *Task
	req   *IncomingRequest
	input *Input
	deps  map[string]any
	tasks *Tasks
}

// Context returns the request's context, cancelled when the request's task
// tree is cancelled.
func (c *Ctx) Context() context.Context { return c.task.Context() }

// Request returns the raw transport request.
func (c *Ctx) Request() *IncomingRequest { return c.req }

// Input returns the normalized input.
func (c *Ctx) Input() *Input { return c.input }

// Param returns the captured path parameter, or "" if absent.
func (c *Ctx) Param(name string) string { return c.input.Params.Get(name) }

// Params returns all captured path parameters.
func (c *Ctx) Params() PathParams { return c.input.Params }

// Query returns the parsed query parameters.
func (c *Ctx) Query() url.Values { return c.input.Query }

// Body returns the parsed request body.
func (c *Ctx) Body() any { return c.input.Body }

// Dep returns the resolved dependency registered under name for this
// request's route, and whether it was resolved.
func (c *Ctx) Dep(name string) (any, bool) {
	v, ok := c.deps[name]
	return v, ok
}

// Spawn starts fn concurrently as a child of the request's root task.
// Children the handler does not Await keep running until the pipeline
// retires the request's task tree, before scope teardown.
func (c *Ctx) Spawn(fn func(ctx context.Context) (any, error)) *Future {
	return c.task.sched.Spawn(c.task, fn)
}

// Tasks returns the request's background-task queue.
func (c *Ctx) Tasks() *Tasks { return c.tasks }
