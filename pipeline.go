package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// phase tracks a request's progress through the pipeline.
type phase int

const (
	phaseMatching phase = iota
	phaseInputReady
	phaseDependenciesResolved
	phaseHandlerDone
	phaseResponseReady
	phaseBackgroundDone
	phaseTornDown
)

func (p phase) String() string {
	switch p {
	case phaseMatching:
		return "matching"
	case phaseInputReady:
		return "input_ready"
	case phaseDependenciesResolved:
		return "dependencies_resolved"
	case phaseHandlerDone:
		return "handler_done"
	case phaseResponseReady:
		return "response_ready"
	case phaseBackgroundDone:
		return "background_done"
	case phaseTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// BackgroundPolicy controls whether background tasks registered before a
// handler failure still run.
type BackgroundPolicy int

const (
	// BackgroundAlways runs tasks registered up to the point of failure,
	// for structured and unhandled failures alike. This is the default.
	BackgroundAlways BackgroundPolicy = iota

	// BackgroundOnSuccess discards the queue whenever the handler fails.
	BackgroundOnSuccess
)

// Pipeline drives requests through the full lifecycle: dispatch, input
// normalization, dependency resolution, handler execution, background
// tasks, and scope teardown. Build one per application; Execute is safe for
// concurrent use.
type Pipeline struct {
	router    *Router
	providers *Providers
	sched     *Scheduler
	logger    *slog.Logger
	builder   InputBuilder

	policy      BackgroundPolicy
	concurrent  bool
	taskRate    *rate.Limiter
	onTaskError func(*TaskError)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProviders sets the dependency-provider registry.
func WithProviders(p *Providers) Option {
	return func(pl *Pipeline) { pl.providers = p }
}

// WithScheduler sets the scheduler used for handler spawns and background
// tasks. Defaults to an unbounded scheduler.
func WithScheduler(s *Scheduler) Option {
	return func(pl *Pipeline) { pl.sched = s }
}

// WithLogger sets the pipeline's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithInputBuilder sets the input-normalization collaborator. Defaults to a
// passthrough of the transport-parsed fields.
func WithInputBuilder(b InputBuilder) Option {
	return func(pl *Pipeline) { pl.builder = b }
}

// WithBackgroundPolicy sets the failure policy for queued background tasks.
func WithBackgroundPolicy(policy BackgroundPolicy) Option {
	return func(pl *Pipeline) { pl.policy = policy }
}

// WithConcurrentTasks spawns all background tasks before awaiting any of
// them, letting their execution overlap. Without it, each task is awaited
// before the next starts, so completions observe registration order.
func WithConcurrentTasks() Option {
	return func(pl *Pipeline) { pl.concurrent = true }
}

// WithTaskRate paces background-task starts at rps with the given burst.
func WithTaskRate(rps float64, burst int) Option {
	return func(pl *Pipeline) { pl.taskRate = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithOnTaskError registers a hook receiving each failed background task's
// *TaskError after it has been logged.
func WithOnTaskError(fn func(*TaskError)) Option {
	return func(pl *Pipeline) { pl.onTaskError = fn }
}

// New builds a Pipeline over the given router and freezes the route table;
// registration is over once a pipeline exists.
func New(router *Router, opts ...Option) *Pipeline {
	pl := &Pipeline{
		router:    router,
		providers: NewProviders(),
		sched:     NewScheduler(),
		logger:    slog.Default(),
		builder:   passthroughBuilder{},
	}
	for _, opt := range opts {
		opt(pl)
	}
	router.freeze()
	return pl
}

// Execute runs one request through the full lifecycle and returns its
// response. The response is final before any background task starts, and
// the request's dependency scope is torn down exactly once, strictly after
// every background task and unawaited handler child has finished. Execute
// never returns nil and never panics on handler misbehavior.
func (pl *Pipeline) Execute(ctx context.Context, req *IncomingRequest) *Response {
	start := time.Now()
	id := uuid.NewString()
	ph := pl.phase(ctx, id, phaseMatching)

	match, err := pl.router.Dispatch(req.Method, req.Path)
	if err != nil {
		// No scope was opened; nothing to tear down.
		resp := notFoundResponse()
		ph = pl.phase(ctx, id, phaseTornDown)
		pl.logRequest(ctx, id, req, resp, start, ph)
		return resp
	}

	input, err := pl.builder.BuildInput(req, match.Params)
	if err != nil {
		resp := pl.inputError(err)
		ph = pl.phase(ctx, id, phaseTornDown)
		pl.logRequest(ctx, id, req, resp, start, ph)
		return resp
	}
	ph = pl.phase(ctx, id, phaseInputReady)

	deps, scope, err := pl.providers.Resolve(ctx, match.Deps)
	if err != nil {
		// Resolve already closed whatever had been acquired, in reverse order.
		resp := errorResponse(err)
		pl.logger.LogAttrs(ctx, slog.LevelError, "dependency resolution failed",
			slog.String("request_id", id),
			slog.String("pattern", match.Pattern),
			slog.String("error", err.Error()),
		)
		ph = pl.phase(ctx, id, phaseTornDown)
		pl.logRequest(ctx, id, req, resp, start, ph)
		return resp
	}
	ph = pl.phase(ctx, id, phaseDependenciesResolved)

	root := pl.sched.Root(ctx)
	tasks := &Tasks{}
	c := &Ctx{task: root, req: req, input: input, deps: deps, tasks: tasks}

	resp, herr := pl.invokeHandler(match.Handler, c)
	ph = pl.phase(ctx, id, phaseHandlerDone)

	if herr != nil {
		resp = pl.handlerError(ctx, id, herr)
	} else if resp == nil {
		resp = NewResponse(nil, http.StatusNoContent)
	}
	ph = pl.phase(ctx, id, phaseResponseReady)

	// The response is finalized here; nothing past this point may change it.
	if herr != nil && pl.policy == BackgroundOnSuccess {
		tasks.drain()
	}
	tasks.Run(root, RunConfig{
		Concurrent: pl.concurrent,
		Rate:       pl.taskRate,
		OnError:    pl.onTaskError,
		Logger:     pl.logger,
	})
	root.Join() // unawaited handler children retire with the tree
	root.Cancel(nil)
	ph = pl.phase(ctx, id, phaseBackgroundDone)

	if terr := scope.Teardown(ctx); terr != nil {
		pl.logger.LogAttrs(ctx, slog.LevelError, "scope teardown failed",
			slog.String("request_id", id),
			slog.String("error", terr.Error()),
		)
	}
	ph = pl.phase(ctx, id, phaseTornDown)

	pl.logRequest(ctx, id, req, resp, start, ph)
	return resp
}

// phase records a state transition at debug level and returns the new phase.
func (pl *Pipeline) phase(ctx context.Context, id string, ph phase) phase {
	pl.logger.LogAttrs(ctx, slog.LevelDebug, "phase",
		slog.String("request_id", id),
		slog.String("phase", ph.String()),
	)
	return ph
}

// invokeHandler runs the handler with panic recovery. A panic surfaces as a
// *PanicError so the pipeline's error conversion and teardown guarantees
// hold even for crashing handlers.
func (pl *Pipeline) invokeHandler(h Handler, c *Ctx) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(c)
}

// handlerError converts a handler failure into a response. A structured
// *HTTPError maps directly; anything else is logged and becomes the generic
// 500 with no detail leakage.
func (pl *Pipeline) handlerError(ctx context.Context, id string, err error) *Response {
	var he *HTTPError
	if errors.As(err, &he) {
		return errorResponse(err)
	}

	attrs := []slog.Attr{
		slog.String("request_id", id),
		slog.String("error", err.Error()),
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	pl.logger.LogAttrs(ctx, slog.LevelError, "unhandled handler error", attrs...)

	return internalErrorResponse()
}

// inputError converts an InputBuilder failure. Builder errors carrying a
// status keep it; bare errors become a 400.
func (pl *Pipeline) inputError(err error) *Response {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return errorResponse(err)
	}
	return errorResponse(Error(http.StatusBadRequest, err.Error()))
}

func (pl *Pipeline) logRequest(ctx context.Context, id string, req *IncomingRequest, resp *Response, start time.Time, ph phase) {
	pl.logger.LogAttrs(ctx, slog.LevelInfo, "request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.Status),
		slog.Duration("latency", time.Since(start)),
		slog.String("request_id", id),
		slog.String("phase", ph.String()),
	)
}
