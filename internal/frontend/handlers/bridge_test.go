package handlers_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/frontend/handlers"
	"github.com/cory-johannsen/gamerunner/internal/frontend/telnet"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/testutil"
)

const wait = 3 * time.Second

// fakeStream is an EventStream fed by the test.
type fakeStream struct {
	ctx       context.Context
	sent      chan channel.Event
	events    chan channel.Event
	closeSent atomic.Bool
}

func (s *fakeStream) Send(ev channel.Event) error {
	s.sent <- ev
	return nil
}

func (s *fakeStream) Recv() (channel.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return channel.Event{}, io.EOF
		}
		return ev, nil
	case <-s.ctx.Done():
		return channel.Event{}, s.ctx.Err()
	}
}

func (s *fakeStream) CloseSend() error {
	s.closeSent.Store(true)
	return nil
}

type fakeConnector struct {
	err        error
	stream     *fakeStream
	identified chan session.Participant
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		stream: &fakeStream{
			sent:   make(chan channel.Event, 16),
			events: make(chan channel.Event, 16),
		},
		identified: make(chan session.Participant, 1),
	}
}

func (c *fakeConnector) Connect(ctx context.Context, p session.Participant) (handlers.EventStream, error) {
	c.identified <- p
	if c.err != nil {
		return nil, c.err
	}
	c.stream.ctx = ctx
	return c.stream, nil
}

func startBridge(t *testing.T, connector handlers.Connector) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	acc := telnet.NewAcceptor(
		config.TelnetConfig{ReadTimeout: 10 * time.Second, WriteTimeout: 5 * time.Second},
		handlers.NewBridge(connector, zaptest.NewLogger(t)),
		zaptest.NewLogger(t),
	)
	served := make(chan error, 1)
	go func() { served <- acc.Serve(lis) }()
	t.Cleanup(func() {
		acc.Stop()
		assert.NoError(t, <-served)
	})
	require.Eventually(t, func() bool { return acc.Addr() != "" }, wait, 5*time.Millisecond)
	return acc.Addr()
}

func login(t *testing.T, addr, id, name string) *testutil.TelnetClient {
	t.Helper()
	client := testutil.NewTelnetClient(t, addr)
	client.Expect("Participant id: ", wait)
	client.Send(id)
	client.Expect("Display name", wait)
	client.Send(name)
	return client
}

func nextSent(t *testing.T, s *fakeStream) channel.Event {
	t.Helper()
	select {
	case ev := <-s.sent:
		return ev
	case <-time.After(wait):
		t.Fatal("no event sent")
		return channel.Event{}
	}
}

func TestBridge_IdentifiesAndConnects(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "Alice")

	client.Expect("Welcome, Alice.", wait)
	client.Expect("[Alice]> ", wait)
	assert.Equal(t, session.Participant{ID: "alice", DisplayName: "Alice"}, <-connector.identified)
}

func TestBridge_BlankIdRepromptsAndNameDefaults(t *testing.T) {
	connector := newFakeConnector()
	client := testutil.NewTelnetClient(t, startBridge(t, connector))
	client.Expect("Participant id: ", wait)
	client.Send("   ")
	client.Expect("Participant id: ", wait)
	client.Send("bob")
	client.Expect("Display name", wait)
	client.Send("")

	client.Expect("[bob]> ", wait)
	assert.Equal(t, session.Participant{ID: "bob"}, <-connector.identified)
}

func TestBridge_RejectsOversizedId(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), strings.Repeat("x", 129), "")

	client.Expect("at most 128 characters", wait)
	client.Expect("Participant id: ", wait)
	assert.Empty(t, connector.identified)
}

func TestBridge_ConnectFailure(t *testing.T) {
	connector := newFakeConnector()
	connector.err = errors.New("connection refused")
	client := login(t, startBridge(t, connector), "alice", "")

	client.Expect("Failed to connect to the game server", wait)
}

func TestBridge_CreateSendsSessionRequest(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	client.Send("create firstto20 bob alice")
	ev := nextSent(t, connector.stream)
	assert.Equal(t, channel.EventCreateSession, ev.Name)
	assert.Equal(t, channel.CreateSession{Type: "firstto20", MemberIDs: []string{"alice", "bob"}}, ev.Payload)
}

func TestBridge_CreateWithoutTypeShowsUsage(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	client.Send("create")
	client.Expect("usage: create <type> [member...]", wait)
	client.Expect("[alice]> ", wait)
	assert.Empty(t, connector.stream.sent)
}

func TestBridge_OtherLinesBecomePlayerInput(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	client.Send("ROLL")
	client.Send("say hello there")
	assert.Equal(t, channel.Event{
		Name:    channel.EventPlayerInput,
		Payload: handlers.PlayerInput{Action: "roll", Args: []string{}},
	}, nextSent(t, connector.stream))
	assert.Equal(t, channel.Event{
		Name:    channel.EventPlayerInput,
		Payload: handlers.PlayerInput{Action: "say", Args: []string{"hello", "there"}},
	}, nextSent(t, connector.stream))
}

func TestBridge_HelpIsLocal(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	client.Send("help")
	client.Expect("Commands:", wait)
	client.Expect("[alice]> ", wait)
	assert.Empty(t, connector.stream.sent)
}

func TestBridge_RendersServerEvents(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	connector.stream.events <- channel.Event{
		Name:    channel.EventJoinedSession,
		Payload: map[string]any{"sessionId": float64(1001), "type": "firstto20", "state": nil},
	}
	client.Expect("Joined session #1001 (firstto20).", wait)
	client.Expect("[alice]> ", wait)

	connector.stream.events <- channel.Event{Name: channel.EventSessionError, Payload: map[string]any{"message": "not your turn"}}
	client.Expect("Error: not your turn", wait)
}

func TestBridge_QuitClosesStream(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	client.Send("quit")
	client.Expect("Goodbye.", wait)
	assert.Eventually(t, connector.stream.closeSent.Load, wait, 5*time.Millisecond)
}

func TestBridge_ServerEndingStreamEndsSession(t *testing.T) {
	connector := newFakeConnector()
	client := login(t, startBridge(t, connector), "alice", "")
	client.Expect("[alice]> ", wait)

	close(connector.stream.events)
	client.Expect("Lost connection to the game server.", wait)
	assert.False(t, connector.stream.closeSent.Load())
}
