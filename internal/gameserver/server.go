package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/runner"
)

// Server implements RunnerServer on top of a channel.Dispatcher.
type Server struct {
	router     channel.Dispatcher
	cfg        config.GameServerConfig
	outboxSize int
	logger     *zap.Logger

	mu       sync.Mutex
	grpc     *grpc.Server
	listener net.Listener
}

// NewServer creates a Server.
//
// Precondition: router and logger must be non-nil.
// Postcondition: Returns a Server ready for ListenAndServe or Register.
func NewServer(router channel.Dispatcher, cfg config.GameServerConfig, outboxSize int, logger *zap.Logger) *Server {
	return &Server{
		router:     router,
		cfg:        cfg,
		outboxSize: outboxSize,
		logger:     logger,
	}
}

// Connect runs one participant connection:
//  1. Send need-participant and wait for identify
//  2. Register a fresh outbox with the router
//  3. Forward outbox events to the stream from a writer goroutine
//  4. Dispatch inbound events until the stream ends
//  5. Disconnect the channel from the router, then close the outbox and wait
//     for the writer to flush what is left
func (s *Server) Connect(stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	p, err := s.handshake(ctx, stream)
	if err != nil {
		s.logger.Debug("grpc handshake failed", zap.Error(err))
		return err
	}

	out := channel.NewOutbox(uuid.NewString(), s.outboxSize)
	logger := s.logger.With(zap.String("participant_id", p.ID), zap.String("channel_id", out.ID()))
	if err := s.router.RegisterParticipant(ctx, p, out); err != nil {
		return status.Errorf(codes.Unavailable, "registering participant: %v", err)
	}
	logger.Info("grpc participant connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.forward(out, stream); err != nil {
			logger.Debug("grpc writer stopped", zap.Error(err))
			cancel()
		}
	}()

	err = s.receiveLoop(ctx, p.ID, stream)

	if derr := s.router.DisconnectChannel(context.Background(), p.ID, out.ID()); derr != nil {
		logger.Debug("disconnecting channel", zap.Error(derr))
	}
	out.Close()
	wg.Wait()
	logger.Info("grpc participant disconnected")

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handshake prompts for and validates the identify event. Recv runs on its
// own goroutine so the handshake timeout applies.
func (s *Server) handshake(ctx context.Context, stream grpc.ServerStream) (p session.Participant, err error) {
	if err := sendEvent(stream, channel.Event{Name: channel.EventNeedParticipant}); err != nil {
		return p, err
	}

	type received struct {
		ev  channel.Event
		err error
	}
	recvCh := make(chan received, 1)
	go func() {
		ev, err := recvEvent(stream)
		recvCh <- received{ev: ev, err: err}
	}()

	var timeout <-chan time.Time
	if s.cfg.HandshakeTimeout > 0 {
		timer := time.NewTimer(s.cfg.HandshakeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return p, status.FromContextError(ctx.Err()).Err()
	case <-timeout:
		return p, status.Error(codes.DeadlineExceeded, "no identify event before handshake timeout")
	case r := <-recvCh:
		if r.err != nil {
			return p, r.err
		}
		p, err = channel.ParseIdentify(r.ev)
		if err != nil {
			_ = sendEvent(stream, channel.Event{
				Name:    channel.EventSessionError,
				Payload: channel.SessionError{Message: "First message must be identify with a participant id"},
			})
			return p, status.Error(codes.InvalidArgument, err.Error())
		}
		return p, nil
	}
}

func (s *Server) receiveLoop(ctx context.Context, participantID string, stream grpc.ServerStream) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		ev, err := FromStruct(msg)
		if err != nil {
			s.logger.Debug("dropping malformed envelope",
				zap.String("participant_id", participantID),
				zap.Error(err),
			)
			continue
		}
		if err := s.router.Dispatch(ctx, participantID, ev); err != nil {
			if errors.Is(err, runner.ErrRouterStopped) || errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Debug("dispatch rejected",
				zap.String("participant_id", participantID),
				zap.String("event", ev.Name),
				zap.Error(err),
			)
		}
	}
}

// forward drains out onto the stream until out is closed, so events queued
// before a client half-close are still delivered. It is the only sender after
// the handshake.
//
// Postcondition: Returns nil once out is closed and drained, or the first send
// error.
func (s *Server) forward(out *channel.Outbox, stream grpc.ServerStream) error {
	for ev := range out.Events() {
		if err := sendEvent(stream, ev); err != nil {
			return err
		}
	}
	return nil
}

// Register adds the Runner service to g.
func (s *Server) Register(g grpc.ServiceRegistrar) {
	RegisterRunnerServer(g, s)
}

// ListenAndServe serves the Runner service on the configured address until Stop.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves the Runner service on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	g := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.Register(g)

	s.mu.Lock()
	s.grpc = g
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving grpc: %w", err)
	}
	return nil
}

// Stop drains open streams for up to five seconds, then closes them.
func (s *Server) Stop() {
	s.mu.Lock()
	g := s.grpc
	s.mu.Unlock()
	if g == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		g.Stop()
	}
	s.logger.Info("grpc server stopped")
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

// msgStream is the part of grpc.ServerStream and grpc.ClientStream used here.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

func sendEvent(stream msgStream, ev channel.Event) error {
	msg, err := ToStruct(ev)
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}

func recvEvent(stream msgStream) (channel.Event, error) {
	msg := new(structpb.Struct)
	if err := stream.RecvMsg(msg); err != nil {
		return channel.Event{}, err
	}
	ev, err := FromStruct(msg)
	if err != nil {
		return channel.Event{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return ev, nil
}
