// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It should block until the service is stopped
	// or an error occurs.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// ContextService adapts a loop driven by a context, such as the session
// router, into the Service interface. Stop cancels the context and waits for
// the loop to return.
type ContextService struct {
	run     func(ctx context.Context) error
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// NewContextService wraps run.
//
// Precondition: run must return once its context is cancelled.
func NewContextService(run func(ctx context.Context) error) *ContextService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ContextService{run: run, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start runs the loop until Stop. Cancellation is not an error.
func (s *ContextService) Start() error {
	s.started.Store(true)
	defer close(s.done)
	if err := s.run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels the loop and waits for Start to return.
func (s *ContextService) Stop() {
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
}

// DefaultStopTimeout bounds each service's Stop during shutdown.
const DefaultStopTimeout = 10 * time.Second

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	services    []namedService
	stopTimeout time.Duration
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout bounds how long shutdown waits for each service.
//
// Precondition: d must be positive.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimeout = d
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until a termination signal is received
// (SIGINT or SIGTERM), ctx is cancelled, or a service fails. Services are then
// stopped in reverse order.
//
// Postcondition: All services are stopped when this method returns. The
// returned error is the service failure that triggered shutdown, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start services
	errCh := make(chan error, len(l.services))
	for _, ns := range l.services {
		go func() {
			l.logger.Info("starting service",
				zap.String("service", ns.name),
			)
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
				cancel()
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(l.services)),
		zap.Duration("startup", time.Since(start)),
	)

	// Wait for signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var failure error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-errCh:
		failure = err
		l.logger.Error("service error, shutting down",
			zap.Error(err),
		)
	case <-ctx.Done():
		select {
		case err := <-errCh:
			failure = err
			l.logger.Error("service error, shutting down", zap.Error(err))
		default:
			l.logger.Info("context cancelled, shutting down")
		}
	}

	// Stop services in reverse order
	l.shutdown()

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return failure
}

func (l *Lifecycle) shutdown() {
	shutdownStart := time.Now()
	for i := len(l.services) - 1; i >= 0; i-- {
		l.stop(l.services[i])
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}

// stop stops ns, giving up after the stop timeout so one stuck service
// cannot hold the others up.
func (l *Lifecycle) stop(ns namedService) {
	svcStart := time.Now()
	l.logger.Info("stopping service", zap.String("service", ns.name))

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ns.service.Stop()
	}()

	timer := time.NewTimer(l.stopTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	case <-timer.C:
		l.logger.Warn("service did not stop in time",
			zap.String("service", ns.name),
			zap.Duration("timeout", l.stopTimeout),
		)
	}
}
