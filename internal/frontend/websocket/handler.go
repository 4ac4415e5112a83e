// Package websocket serves participant connections over WebSocket. Every
// frame is a JSON envelope {"event": ..., "payload": ...}.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/runner"
)

// Handler upgrades HTTP requests and runs one participant connection per socket.
type Handler struct {
	router     channel.Dispatcher
	cfg        config.WebSocketConfig
	outboxSize int
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a Handler.
//
// Precondition: router and logger must be non-nil; cfg.PongWait must exceed cfg.PingInterval.
// Postcondition: Returns a Handler ready to be mounted on an http.ServeMux.
func NewHandler(router channel.Dispatcher, cfg config.WebSocketConfig, outboxSize int, logger *zap.Logger) *Handler {
	return &Handler{
		router:     router,
		cfg:        cfg,
		outboxSize: outboxSize,
		logger:     logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	start := time.Now()
	if err := h.serve(r.Context(), conn); err != nil {
		h.logger.Debug("websocket connection ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// serve runs the handshake, registers an outbox, and pumps events both ways.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	p, err := h.handshake(conn)
	if err != nil {
		return err
	}

	out := channel.NewOutbox(uuid.NewString(), h.outboxSize)
	logger := h.logger.With(zap.String("participant_id", p.ID), zap.String("channel_id", out.ID()))
	// The connection outlives the request context once hijacked.
	ctx = context.WithoutCancel(ctx)
	if err := h.router.RegisterParticipant(ctx, p, out); err != nil {
		h.closeWith(conn, websocket.CloseTryAgainLater, "router unavailable")
		return err
	}
	logger.Info("websocket participant connected")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(h.readDeadline())
	})
	_ = conn.SetReadDeadline(h.readDeadline())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := h.writeLoop(conn, out); err != nil {
			logger.Debug("websocket writer stopped", zap.Error(err))
			_ = conn.Close()
		}
	}()

	err = h.readLoop(ctx, conn, p.ID)

	if derr := h.router.DisconnectChannel(ctx, p.ID, out.ID()); derr != nil {
		logger.Debug("disconnecting channel", zap.Error(derr))
	}
	out.Close()
	wg.Wait()
	logger.Info("websocket participant disconnected")

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// handshake sends need-participant and reads the identify envelope.
func (h *Handler) handshake(conn *websocket.Conn) (session.Participant, error) {
	if err := h.write(conn, channel.Event{Name: channel.EventNeedParticipant}); err != nil {
		return session.Participant{}, err
	}
	if h.cfg.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	}

	var ev channel.Event
	if err := conn.ReadJSON(&ev); err != nil {
		return session.Participant{}, err
	}
	p, err := channel.ParseIdentify(ev)
	if err != nil {
		_ = h.write(conn, channel.Event{
			Name:    channel.EventSessionError,
			Payload: channel.SessionError{Message: "First message must be identify with a participant id"},
		})
		h.closeWith(conn, websocket.ClosePolicyViolation, "identify required")
		return session.Participant{}, err
	}
	return p, nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, participantID string) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev channel.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			h.logger.Debug("dropping malformed frame",
				zap.String("participant_id", participantID),
				zap.Int("bytes", len(data)),
			)
			continue
		}
		if err := h.router.Dispatch(ctx, participantID, ev); err != nil {
			if errors.Is(err, runner.ErrRouterStopped) {
				h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
				return err
			}
			h.logger.Debug("dispatch rejected",
				zap.String("participant_id", participantID),
				zap.String("event", ev.Name),
				zap.Error(err),
			)
		}
	}
}

// writeLoop is the only writer after the handshake. It drains out and sends
// pings; when out is closed it sends a close frame.
func (h *Handler) writeLoop(conn *websocket.Conn, out *channel.Outbox) error {
	var pings <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case ev, ok := <-out.Events():
			if !ok {
				h.closeWith(conn, websocket.CloseNormalClosure, "")
				return nil
			}
			if err := h.write(conn, ev); err != nil {
				return err
			}
		case <-pings:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait())); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, ev channel.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait()))
	return conn.WriteJSON(ev)
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeWait()))
}

func (h *Handler) readDeadline() time.Time {
	if h.cfg.PongWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(h.cfg.PongWait)
}

func (h *Handler) writeWait() time.Duration {
	if h.cfg.WriteWait > 0 {
		return h.cfg.WriteWait
	}
	return 10 * time.Second
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.wg.Done()
}

// CloseAll closes every open socket and waits for their handlers to finish.
// Later upgrades are refused.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
