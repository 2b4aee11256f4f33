package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Args carries the positional and named arguments of a background task.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Arg returns the i'th positional argument, or nil when out of range.
func (a Args) Arg(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Get returns the named argument and whether it was set.
func (a Args) Get(name string) (any, bool) {
	v, ok := a.Named[name]
	return v, ok
}

// TaskFunc is a deferred unit of work registered during handler execution
// and run after the response is finalized. The context belongs to the
// request's root task; the function still sees the request's resolved
// dependencies through whatever it closed over or received in args.
type TaskFunc func(ctx context.Context, args Args) error

type taskRecord struct {
	fn   TaskFunc
	args Args
}

// Tasks is the per-request background queue. Handlers append to it; the
// pipeline executes it once the response exists. Appends are accepted until
// execution drains the queue.
type Tasks struct {
	mu    sync.Mutex
	queue []taskRecord
}

// Add appends fn with positional arguments.
func (t *Tasks) Add(fn TaskFunc, positional ...any) {
	t.AddArgs(fn, Args{Positional: positional})
}

// AddArgs appends fn with a full argument bag.
func (t *Tasks) AddArgs(fn TaskFunc, args Args) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, taskRecord{fn: fn, args: args})
}

// Len returns the number of queued, not-yet-executed tasks.
func (t *Tasks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Empty reports whether the queue holds no tasks.
func (t *Tasks) Empty() bool { return t.Len() == 0 }

// drain removes and returns the queued records.
func (t *Tasks) drain() []taskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queue
	t.queue = nil
	return q
}

// RunConfig configures background-task execution.
type RunConfig struct {
	// Concurrent spawns every task before awaiting any of them. The default
	// awaits each task before starting the next, which preserves
	// registration order in observed completions.
	Concurrent bool

	// Rate, when set, paces task starts.
	Rate *rate.Limiter

	// OnError receives each failed task's *TaskError after it has been
	// logged. Optional.
	OnError func(*TaskError)

	// Logger receives one error line per failed task. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Run executes every queued task under root, starting them in registration
// order, then joins. A failing task is caught at its own boundary, logged
// with its kind, message, and stack, and reported to cfg.OnError; it never
// cancels or blocks its siblings. The caller's response is already final by
// the time Run is invoked, so task outcomes cannot affect it.
func (t *Tasks) Run(root *Task, cfg RunConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queue := t.drain()
	futs := make([]*Future, len(queue))

	for i, rec := range queue {
		if cfg.Rate != nil {
			if err := cfg.Rate.Wait(root.Context()); err != nil {
				// Request tree cancelled while pacing; remaining tasks are
				// reported as cancelled rather than silently dropped.
				for j := i; j < len(queue); j++ {
					reportTaskError(logger, cfg.OnError, &TaskError{Index: j, Err: context.Cause(root.Context())})
				}
				break
			}
		}

		rec := rec
		futs[i] = root.sched.Spawn(root, func(ctx context.Context) (any, error) {
			return nil, rec.fn(ctx, rec.args)
		})

		if !cfg.Concurrent {
			awaitTask(futs[i], i, logger, cfg.OnError)
			futs[i] = nil
		}
	}

	for i, f := range futs {
		if f != nil {
			awaitTask(f, i, logger, cfg.OnError)
		}
	}

	root.Join()
}

func awaitTask(f *Future, index int, logger *slog.Logger, onError func(*TaskError)) {
	// Await against the future's own completion, not the root context: a
	// cancelled root still drains cleanly because the spawned child observes
	// the cancellation itself.
	<-f.Done()
	if _, err := f.Await(context.Background()); err != nil {
		te := &TaskError{Index: index, Err: err}
		var pe *PanicError
		if errors.As(err, &pe) {
			te.Stack = string(pe.Stack)
		}
		reportTaskError(logger, onError, te)
	}
}

func reportTaskError(logger *slog.Logger, onError func(*TaskError), te *TaskError) {
	attrs := []slog.Attr{
		slog.Int("task", te.Index),
		slog.String("kind", fmt.Sprintf("%T", te.Err)),
		slog.String("error", te.Err.Error()),
	}
	if te.Stack != "" {
		attrs = append(attrs, slog.String("stack", te.Stack))
	}
	logger.LogAttrs(context.Background(), slog.LevelError, "background task failed", attrs...)

	if onError != nil {
		onError(te)
	}
}
