// Package runner implements the session router: it maps participants to their
// live channel and current session, routes input, and drives session hooks.
//
// Every table and every session instance is owned by the goroutine executing
// Run. Public operations submit a task to that goroutine and block until it
// has executed, so session code never needs its own locking.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

const (
	// FirstSessionID is the id assigned to the first session a router creates.
	FirstSessionID int64 = 1001
	// DefaultQueueSize is the task buffer used when no option overrides it.
	DefaultQueueSize = 256
	// DefaultResultTimeout bounds a single result store write.
	DefaultResultTimeout = 5 * time.Second

	tracerName = "github.com/cory-johannsen/gamerunner/internal/runner"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Resolver maps a game type to a session factory.
type Resolver interface {
	Resolve(gameType string) (session.Factory, bool)
}

// Option configures a Router.
type Option func(*Router)

// WithResultStore archives completed sessions to s.
func WithResultStore(s ResultStore) Option {
	return func(r *Router) { r.store = s }
}

// WithResultTimeout bounds each result store write. Non-positive values are ignored.
func WithResultTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.resultTimeout = d
		}
	}
}

// WithQueueSize sets the task buffer. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithTracerProvider sets the provider used for per-task spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Router) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

type task struct {
	op   string
	run  func(ctx context.Context) error
	done chan error
}

// Router is the single owner of routing state. The zero value is not usable;
// construct with New.
type Router struct {
	resolver      Resolver
	logger        *zap.Logger
	tracer        trace.Tracer
	store         ResultStore
	resultTimeout time.Duration
	queueSize     int
	now           func() time.Time

	tasks   chan task
	stopped chan struct{}
	running atomic.Bool
	saves   sync.WaitGroup

	// Owned by the Run goroutine.
	participants   map[string]session.Participant
	channels       map[string]channel.Channel
	playerSessions map[string]int64
	sessions       map[int64]*liveSession
	nextID         int64
}

// New creates a Router resolving game types through resolver.
//
// Precondition: resolver and logger must be non-nil.
// Postcondition: Returns a Router that accepts operations once Run is called.
func New(resolver Resolver, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		resolver:       resolver,
		logger:         logger,
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
		resultTimeout:  DefaultResultTimeout,
		queueSize:      DefaultQueueSize,
		now:            time.Now,
		stopped:        make(chan struct{}),
		participants:   make(map[string]session.Participant),
		channels:       make(map[string]channel.Channel),
		playerSessions: make(map[string]int64),
		sessions:       make(map[int64]*liveSession),
		nextID:         FirstSessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tasks = make(chan task, r.queueSize)
	return r
}

// Run executes tasks until ctx is cancelled. On exit every pending tick is
// cancelled and in-flight result writes are awaited. A Router runs once.
//
// Postcondition: Returns nil after ctx is cancelled, or ErrAlreadyRunning.
func (r *Router) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	r.logger.Info("session router started", zap.Int("queue_size", r.queueSize))
	defer func() {
		close(r.stopped)
		for _, ls := range r.sessions {
			ls.tick.stop()
		}
		r.saves.Wait()
		r.logger.Info("session router stopped", zap.Int("sessions", len(r.sessions)))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-r.tasks:
			r.execute(ctx, t)
		}
	}
}

func (r *Router) execute(ctx context.Context, t task) {
	ctx, span := r.tracer.Start(ctx, "runner."+t.op)
	err := r.safeRun(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if t.done != nil {
		t.done <- err
	}
}

// safeRun keeps a bug in router bookkeeping from taking the loop down.
func (r *Router) safeRun(ctx context.Context, t task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("router task panicked",
				zap.String("op", t.op),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("runner: %s panicked: %v", t.op, rec)
		}
	}()
	return t.run(ctx)
}

// do submits fn and waits for it to execute on the loop.
func (r *Router) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	select {
	case r.tasks <- task{op: op, run: fn, done: done}:
	case <-r.stopped:
		return ErrRouterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-r.stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrRouterStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post submits fn without waiting. Used by timer callbacks.
func (r *Router) post(op string, fn func(ctx context.Context) error) {
	select {
	case r.tasks <- task{op: op, run: fn}:
	case <-r.stopped:
	}
}
