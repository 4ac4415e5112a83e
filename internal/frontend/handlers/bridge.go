// Package handlers runs the Telnet conversation for one client and bridges it
// to the game server.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/frontend/telnet"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/gameserver"
)

// EventStream is an identified participant connection to the game server.
type EventStream interface {
	Send(ev channel.Event) error
	Recv() (channel.Event, error)
	CloseSend() error
}

// Connector opens an EventStream for a participant. The stream ends when ctx
// is cancelled.
type Connector interface {
	Connect(ctx context.Context, p session.Participant) (EventStream, error)
}

// GRPCConnector connects through a gameserver.Client.
type GRPCConnector struct {
	client *gameserver.Client
}

// NewGRPCConnector wraps client.
//
// Precondition: client must be non-nil.
func NewGRPCConnector(client *gameserver.Client) *GRPCConnector {
	return &GRPCConnector{client: client}
}

// Connect implements Connector.
func (c *GRPCConnector) Connect(ctx context.Context, p session.Participant) (EventStream, error) {
	s, err := c.client.Connect(ctx, p)
	if err != nil {
		return nil, err
	}
	return s, nil
}

const welcomeBanner = telnet.Bold + telnet.BrightCyan + `
   __ _  __ _ _ __ ___   ___ _ __ _   _ _ __  _ __   ___ _ __
  / _' |/ _' | '_ ' _ \ / _ \ '__| | | | '_ \| '_ \ / _ \ '__|
 | (_| | (_| | | | | | |  __/ |  | |_| | | | | | | |  __/ |
  \__, |\__,_|_| |_| |_|\___|_|   \__,_|_| |_|_| |_|\___|_|
  |___/` + telnet.Reset + `

  Identify yourself to start. Type ` + telnet.Green + `help` + telnet.Reset + ` once connected.
`

// Bridge implements telnet.SessionHandler. It asks the client who they are,
// then relays lines to the game server and renders the events it sends back.
type Bridge struct {
	connector Connector
	logger    *zap.Logger
}

// NewBridge creates a Bridge.
//
// Precondition: connector and logger must be non-nil.
// Postcondition: Returns a Bridge ready to handle sessions.
func NewBridge(connector Connector, logger *zap.Logger) *Bridge {
	return &Bridge{connector: connector, logger: logger}
}

// bridgeSession is the state of one connected client.
type bridgeSession struct {
	conn     *telnet.Conn
	stream   EventStream
	self     session.Participant
	prompt   string
	logger   *zap.Logger
	quitting atomic.Bool
	lost     atomic.Bool
}

// HandleSession implements telnet.SessionHandler.
//
// Postcondition: Returns nil when the client quits or the game server ends the
// stream, ctx.Err() on shutdown, or a wrapped error on connection failure.
func (b *Bridge) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	start := time.Now()
	if err := conn.WriteLine(welcomeBanner); err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}

	p, err := b.identify(ctx, conn)
	if err != nil {
		return err
	}
	logger := b.logger.With(zap.String("participant_id", p.ID))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := b.connector.Connect(streamCtx, p)
	if err != nil {
		logger.Warn("connecting to game server", zap.Error(err))
		_ = conn.WriteLine(telnet.Colorize(telnet.Red, "Failed to connect to the game server. Please try again later."))
		return fmt.Errorf("connecting participant %q: %w", p.ID, err)
	}
	logger.Info("participant bridged to game server")

	s := &bridgeSession{
		conn:   conn,
		stream: stream,
		self:   p,
		prompt: telnet.Colorf(telnet.BrightCyan, "[%s]> ", p.Name()),
		logger: logger,
	}
	_ = conn.WriteLine(telnet.Colorf(telnet.Green, "Welcome, %s. Type 'help' for commands.", p.Name()))
	if err := conn.WritePrompt(s.prompt); err != nil {
		return fmt.Errorf("writing prompt: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forward(streamCtx)
	}()

	err = s.commandLoop(ctx)

	cancel()
	wg.Wait()
	logger.Info("participant left", zap.Duration("duration", time.Since(start)))

	if s.lost.Load() && errors.Is(err, telnet.ErrInterrupted) {
		return nil
	}
	return err
}

// identify prompts until the client supplies a valid participant.
func (b *Bridge) identify(ctx context.Context, conn *telnet.Conn) (session.Participant, error) {
	for {
		if err := ctx.Err(); err != nil {
			return session.Participant{}, err
		}
		id, err := ask(conn, "Participant id: ")
		if err != nil {
			return session.Participant{}, err
		}
		if id == "" {
			continue
		}
		name, err := ask(conn, telnet.Colorf(telnet.Dim, "Display name [%s]: ", id))
		if err != nil {
			return session.Participant{}, err
		}

		p := session.Participant{ID: id, DisplayName: name}
		if err := p.Validate(); err != nil {
			_ = conn.WriteLine(telnet.Colorize(telnet.Red, "Ids and names must be at most 128 characters."))
			continue
		}
		return p, nil
	}
}

func ask(conn *telnet.Conn, prompt string) (string, error) {
	if err := conn.WritePrompt(prompt); err != nil {
		return "", fmt.Errorf("writing prompt: %w", err)
	}
	line, err := conn.ReadLine()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// commandLoop reads lines and turns them into events until the client quits.
//
// Postcondition: Returns nil on quit, ctx.Err() on shutdown, or a wrapped error.
func (s *bridgeSession) commandLoop(ctx context.Context) error {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				_ = s.conn.WriteLine(telnet.Colorize(telnet.Yellow, "\r\nServer shutting down. Goodbye!"))
				return ctx.Err()
			}
			return fmt.Errorf("reading input: %w", err)
		}

		cmd, ok := parseCommand(line)
		if !ok {
			_ = s.conn.WritePrompt(s.prompt)
			continue
		}

		var ev channel.Event
		switch cmd.name {
		case CommandQuit:
			s.quitting.Store(true)
			_ = s.conn.WriteLine(telnet.Colorize(telnet.Cyan, "Goodbye."))
			if err := s.stream.CloseSend(); err != nil {
				return fmt.Errorf("closing stream: %w", err)
			}
			return nil

		case CommandHelp:
			_ = s.conn.WriteLine(helpText())
			_ = s.conn.WritePrompt(s.prompt)
			continue

		case CommandCreate:
			ev, err = createEvent(s.self.ID, cmd.args)
			if err != nil {
				_ = s.conn.WriteLine(telnet.Colorf(telnet.Red, "%s", err))
				_ = s.conn.WritePrompt(s.prompt)
				continue
			}

		default:
			ev = inputEvent(cmd)
		}

		if err := s.stream.Send(ev); err != nil {
			return fmt.Errorf("sending %s: %w", ev.Name, err)
		}
	}
}

// forward renders server events until the stream ends. When the server ends
// it first, the client is told and its pending read is interrupted.
func (s *bridgeSession) forward(ctx context.Context) {
	for {
		ev, err := s.stream.Recv()
		if err != nil {
			if ctx.Err() != nil || s.quitting.Load() {
				return
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("game server stream failed", zap.Error(err))
			}
			_ = s.conn.WriteLine(telnet.Colorize(telnet.Red, "\r\nLost connection to the game server."))
			s.lost.Store(true)
			s.conn.Interrupt()
			return
		}
		if err := s.conn.WriteLine("\r\n" + RenderEvent(ev)); err != nil {
			s.logger.Debug("writing event", zap.String("event", ev.Name), zap.Error(err))
			return
		}
		_ = s.conn.WritePrompt(s.prompt)
	}
}
