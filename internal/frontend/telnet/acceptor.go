package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/config"
)

// SessionHandler runs the conversation with one connected client. ctx is
// cancelled when the acceptor stops.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor accepts Telnet clients and runs a SessionHandler for each.
type Acceptor struct {
	cfg     config.TelnetConfig
	handler SessionHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
}

// NewAcceptor creates an Acceptor.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready for ListenAndServe or Serve.
func NewAcceptor(cfg config.TelnetConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until Stop.
func (a *Acceptor) ListenAndServe() error {
	lis, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(lis)
}

// Serve accepts clients from lis until Stop.
//
// Postcondition: Returns nil after Stop, or the accept error that ended the loop.
func (a *Acceptor) Serve(lis net.Listener) error {
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		_ = lis.Close()
		return nil
	}
	a.listener = lis
	a.mu.Unlock()

	a.logger.Info("telnet acceptor listening", zap.String("addr", lis.Addr().String()))

	var backoff time.Duration
	for {
		raw, err := lis.Accept()
		if err != nil {
			if a.ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				a.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accepting telnet client: %w", err)
		}
		backoff = 0

		conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
		if !a.track(conn) {
			_ = raw.Close()
			return nil
		}
		go a.serveConn(conn)
	}
}

func (a *Acceptor) serveConn(conn *Conn) {
	defer a.untrack(conn)
	defer conn.Close()

	start := time.Now()
	logger := a.logger.With(
		zap.String("conn_id", uuid.NewString()),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Info("telnet client connected")

	if err := conn.Negotiate(); err != nil {
		logger.Debug("telnet negotiation failed", zap.Error(err))
		return
	}
	if err := a.handler.HandleSession(a.ctx, conn); err != nil && !errors.Is(err, ErrInterrupted) {
		logger.Debug("telnet session ended", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("telnet session ended cleanly", zap.Duration("duration", time.Since(start)))
}

func (a *Acceptor) track(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	a.wg.Done()
}

// Stop closes the listener, interrupts every client read, and waits for all
// handlers to return. Safe to call more than once.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.cancel()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	for conn := range a.conns {
		conn.Interrupt()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("telnet acceptor stopped")
}

// Addr returns the listening address, or empty string before Serve.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Active returns the number of connected clients.
func (a *Acceptor) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
