package relay

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Scheduler spawns units of work organized in a parent-child tree. One
// Scheduler serves the whole process; every spawned unit is rooted under
// some request's root Task, so cancelling a request reaches all work it
// fanned out.
type Scheduler struct {
	sem *semaphore.Weighted
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrent caps how many spawned functions run at once across the
// whole scheduler. Spawns beyond the cap wait for a slot; a cancelled task
// stops waiting and fails with the cancellation cause.
func WithMaxConcurrent(n int64) SchedulerOption {
	return func(s *Scheduler) {
		s.sem = semaphore.NewWeighted(n)
	}
}

// NewScheduler creates a Scheduler. The zero configuration places no limit
// on concurrent work.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Task is a node in the spawn tree. Each request owns a root Task; handler
// and background work spawn children under it. Cancelling a Task cancels
// every descendant through context propagation — advisory for running code,
// effective at the next blocking point.
type Task struct {
	sched  *Scheduler
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup // direct children; each child retires only after its own subtree
	closed atomic.Bool    // set once the task's own function returns; no new children after
}

// Root creates a root Task for one unit of work, typically a request.
// Release it with Cancel (or let the pipeline do so) once the tree is
// retired.
func (s *Scheduler) Root(ctx context.Context) *Task {
	cctx, cancel := context.WithCancelCause(ctx)
	return &Task{sched: s, ctx: cctx, cancel: cancel}
}

// Context returns the task's context. It is cancelled when the task or any
// ancestor is cancelled.
func (t *Task) Context() context.Context { return t.ctx }

// Cancel marks the task and all its descendants cancelled with the given
// cause. Running work is interrupted at its next suspension point (an Await,
// a ctx.Done check, blocking I/O that honors the context).
func (t *Task) Cancel(cause error) { t.cancel(cause) }

// Join blocks until every task spawned under t — awaited or not — has
// completed. The pipeline uses this to retire a request's tree before
// tearing down its scope.
func (t *Task) Join() { t.wg.Wait() }

// Future is the handle to a spawned unit of work.
type Future struct {
	task *Task
	done chan struct{}
	val  any
	err  error
}

// Spawn starts fn concurrently as a child of parent. Multiple spawns from
// one handler run concurrently with respect to each other. A panic inside
// fn is captured as a *PanicError on the returned Future.
//
// The child inherits the parent's cancellation: if the parent's subtree is
// cancelled before fn starts, fn is skipped and the Future fails with the
// cancellation cause. Spawning under a task whose own function has already
// returned fails with ErrTaskRetired (or the parent's cancellation cause);
// the check runs before the parent's accounting is touched, so a late spawn
// never races the parent's retirement.
func (s *Scheduler) Spawn(parent *Task, fn func(ctx context.Context) (any, error)) *Future {
	if parent.closed.Load() {
		// Normal retirement cancels the task's context with no cause;
		// only a deliberate cancellation cause is worth surfacing instead.
		cause := context.Cause(parent.ctx)
		if cause == nil || errors.Is(cause, context.Canceled) {
			cause = ErrTaskRetired
		}
		return failedFuture(s, parent, cause)
	}

	cctx, cancel := context.WithCancelCause(parent.ctx)
	child := &Task{sched: s, ctx: cctx, cancel: cancel}
	f := &Future{task: child, done: make(chan struct{})}

	parent.wg.Add(1)
	go func() {
		defer func() {
			child.closed.Store(true)
			child.wg.Wait() // retire grandchildren before the child itself
			cancel(nil)
			close(f.done)
			parent.wg.Done()
		}()

		if s.sem != nil {
			if err := s.sem.Acquire(cctx, 1); err != nil {
				f.err = context.Cause(cctx)
				return
			}
			defer s.sem.Release(1)
		}

		if cctx.Err() != nil {
			f.err = context.Cause(cctx)
			return
		}

		f.val, f.err = protect(cctx, fn)
	}()

	return f
}

// failedFuture builds an already-completed Future for a spawn that was
// rejected before starting.
func failedFuture(s *Scheduler, parent *Task, cause error) *Future {
	cctx, cancel := context.WithCancelCause(parent.ctx)
	cancel(cause)
	child := &Task{sched: s, ctx: cctx, cancel: cancel}
	child.closed.Store(true)
	f := &Future{task: child, done: make(chan struct{}), err: cause}
	close(f.done)
	return f
}

// protect runs fn, converting a panic into a *PanicError.
func protect(ctx context.Context, fn func(ctx context.Context) (any, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// Task returns the spawned child task, for cancelling it or spawning
// grandchildren under it. Grandchildren may only be spawned while the
// child's function is still running; once it returns, Spawn on this task
// fails with ErrTaskRetired.
func (f *Future) Task() *Task { return f.task }

// Cancel cancels the spawned task and its descendants.
func (f *Future) Cancel(cause error) { f.task.cancel(cause) }

// Await suspends the caller until the child (and its subtree) completes,
// returning the child's result or re-raising its failure. A cancelled ctx
// interrupts the wait with the cancellation cause; the child keeps running.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Done returns a channel closed when the child completes.
func (f *Future) Done() <-chan struct{} { return f.done }
