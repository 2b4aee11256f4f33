package relay

import (
	"fmt"
	"net/http"
	"sync"
)

// Router compiles path templates and maps (method, path) pairs to handlers.
// Routes are registered during application construction; the table is frozen
// when a Pipeline is built and is read lock-free thereafter.
type Router struct {
	mu     sync.Mutex
	routes []*route
	frozen bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Register compiles pattern and appends the route. Dispatch scans in
// registration order and the first full match wins, so overlapping patterns
// must be registered most-specific-first.
//
// Register panics on a malformed pattern or when called after the router has
// been frozen; both are build-time programming errors.
func (r *Router) Register(method, pattern string, h Handler, opts ...RouteOption) {
	re, params, err := compilePattern(pattern)
	if err != nil {
		panic(fmt.Sprintf("relay: %v", err))
	}

	rt := &route{
		method:  method,
		pattern: pattern,
		re:      re,
		params:  params,
		handler: h,
	}
	for _, opt := range opts {
		opt(rt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("relay: Register(%q) after router was frozen", pattern))
	}
	r.routes = append(r.routes, rt)
}

// Get registers a GET handler.
func (r *Router) Get(pattern string, h Handler, opts ...RouteOption) {
	r.Register(http.MethodGet, pattern, h, opts...)
}

// Post registers a POST handler.
func (r *Router) Post(pattern string, h Handler, opts ...RouteOption) {
	r.Register(http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT handler.
func (r *Router) Put(pattern string, h Handler, opts ...RouteOption) {
	r.Register(http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH handler.
func (r *Router) Patch(pattern string, h Handler, opts ...RouteOption) {
	r.Register(http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE handler.
func (r *Router) Delete(pattern string, h Handler, opts ...RouteOption) {
	r.Register(http.MethodDelete, pattern, h, opts...)
}

// freeze ends the build phase. Called once by New; subsequent Register
// calls panic.
func (r *Router) freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Match is the result of a successful dispatch.
type Match struct {
	Handler Handler
	Params  PathParams
	Pattern string
	Deps    []string
	Meta    map[string]any
}

// Dispatch returns the first registered route whose method matches and whose
// pattern matches path in full. It returns ErrRouteNotFound when no route
// matches.
func (r *Router) Dispatch(method, path string) (*Match, error) {
	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		params, ok := rt.match(path)
		if !ok {
			continue
		}
		return &Match{
			Handler: rt.handler,
			Params:  params,
			Pattern: rt.pattern,
			Deps:    rt.deps,
			Meta:    rt.meta,
		}, nil
	}
	return nil, ErrRouteNotFound
}
