package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/config"
)

// Server is the HTTP listener hosting a Handler at the configured path plus
// a /healthz probe.
type Server struct {
	cfg     config.WebSocketConfig
	handler *Handler
	logger  *zap.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// NewServer creates a Server.
//
// Precondition: handler and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, handler *Handler, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Mux returns the routes served by this Server.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe listens on the configured address and serves until Stop.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
//
// Postcondition: Returns nil after Stop, or the serve error.
func (s *Server) Serve(lis net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.Mux(), "websocket"),
		ReadHeaderTimeout: s.cfg.HandshakeTimeout,
	}
	s.mu.Lock()
	s.http = srv
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop stops accepting requests, then closes every open socket.
// Hijacked connections are not tracked by http.Server, so the handler closes them.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket server shutdown", zap.Error(err))
	}
	s.handler.CloseAll()
	s.logger.Info("websocket server stopped")
}

// Addr returns the listening address, or empty string before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
