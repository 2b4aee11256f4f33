package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// Provider acquires one request-scoped resource. It returns the resource
// value and a closer that releases it; the closer may be nil when nothing
// needs releasing. The closer runs exactly once, at scope teardown — after
// the handler has returned and every background task has finished.
//
// A Provider that fails must not leak: anything it acquired before the
// failure is its own responsibility to release before returning.
type Provider func(ctx context.Context) (value any, closer func(context.Context) error, err error)

// Providers is the application-level provider registry. Register providers
// while building the application; each request resolves the names its route
// declares via WithDeps.
type Providers struct {
	mu sync.Mutex
	m  map[string]Provider
}

// NewProviders creates an empty registry.
func NewProviders() *Providers {
	return &Providers{m: make(map[string]Provider)}
}

// Register stores fn under name. Registering the same name twice panics;
// provider names are part of the application's wiring and collisions are
// build-time programming errors.
func (p *Providers) Register(name string, fn Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[name]; ok {
		panic(fmt.Sprintf("relay: provider %q already registered", name))
	}
	p.m[name] = fn
}

// Resolve acquires the named providers in order and returns their values
// along with the Scope that owns the pending closers. If any provider fails,
// every provider acquired earlier in this call is closed immediately in
// reverse acquisition order and a *DependencyError is returned. Closer
// failures during that unwind are joined into the returned error alongside
// the acquisition failure.
func (p *Providers) Resolve(ctx context.Context, names []string) (map[string]any, *Scope, error) {
	scope := &Scope{}
	values := make(map[string]any, len(names))

	for _, name := range names {
		p.mu.Lock()
		fn, ok := p.m[name]
		p.mu.Unlock()
		if !ok {
			return nil, nil, abort(ctx, scope, name, errors.New("not registered"))
		}

		value, closer, err := acquire(ctx, fn)
		if err != nil {
			return nil, nil, abort(ctx, scope, name, err)
		}

		values[name] = value
		scope.entries = append(scope.entries, scopeEntry{name: name, value: value, closer: closer})
	}

	return values, scope, nil
}

// abort unwinds the providers acquired so far and builds the resolution
// error. Cleanup failures must stay visible, so they are joined with the
// acquisition failure rather than discarded.
func abort(ctx context.Context, scope *Scope, name string, err error) *DependencyError {
	if cerr := scope.Teardown(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return &DependencyError{Provider: name, Err: err}
}

// acquire invokes fn, converting a provider panic into an error.
func acquire(ctx context.Context, fn Provider) (value any, closer func(context.Context) error, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, closer = nil, nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

type scopeEntry struct {
	name   string
	value  any
	closer func(context.Context) error
}

// Scope owns the resolved dependency values of a single request and their
// pending closers. It is created by Resolve and torn down exactly once by
// the pipeline, strictly after the background-task join.
type Scope struct {
	mu      sync.Mutex
	done    bool
	entries []scopeEntry
}

// Value returns the resolved value for name, if present in the scope.
func (s *Scope) Value(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// Teardown runs every pending closer exactly once, in reverse acquisition
// order. Closer failures are collected as *CleanupError and joined; a
// failing closer never prevents the remaining closers from running. Calls
// after the first are no-ops returning nil.
func (s *Scope) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.closer == nil {
			continue
		}
		if err := closeEntry(ctx, e); err != nil {
			errs = append(errs, &CleanupError{Provider: e.name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// closeEntry invokes one closer, converting a panic into an error so the
// remaining closers still run.
func closeEntry(ctx context.Context, e scopeEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.closer(ctx)
}
