package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/runner"
)

// recordingChannel captures every event sent to it.
type recordingChannel struct {
	id      string
	mu      sync.Mutex
	events  []channel.Event
	sendErr error
}

func newChannel(id string) *recordingChannel {
	return &recordingChannel{id: id}
}

func (c *recordingChannel) ID() string { return c.id }

func (c *recordingChannel) Send(ev channel.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *recordingChannel) Events() []channel.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channel.Event(nil), c.events...)
}

func (c *recordingChannel) Names() []string {
	var names []string
	for _, ev := range c.Events() {
		names = append(names, ev.Name)
	}
	return names
}

func (c *recordingChannel) Last(name string) (channel.Event, bool) {
	evs := c.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Name == name {
			return evs[i], true
		}
	}
	return channel.Event{}, false
}

func (c *recordingChannel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type staticResolver map[string]session.Factory

func (s staticResolver) Resolve(gameType string) (session.Factory, bool) {
	f, ok := s[gameType]
	return f, ok
}

// startRouter runs a router until the test ends.
func startRouter(t *testing.T, resolver runner.Resolver, opts ...runner.Option) *runner.Router {
	t.Helper()
	return startRouterWithLogger(t, resolver, zaptest.NewLogger(t), opts...)
}

func startRouterWithLogger(t *testing.T, resolver runner.Resolver, logger *zap.Logger, opts ...runner.Option) *runner.Router {
	t.Helper()
	r := runner.New(resolver, logger, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return r
}

func register(t *testing.T, r *runner.Router, id string) *recordingChannel {
	t.Helper()
	ch := newChannel(id + "-ch")
	require.NoError(t, r.RegisterParticipant(context.Background(), session.Participant{ID: id, DisplayName: id}, ch))
	return ch
}

// turnGame is a minimal alternating-turn session used to drive the router.
// Each accepted move is broadcast; after limit moves the mover wins.
type turnGame struct {
	host    session.Host
	info    session.Info
	rot     *session.Rotation
	moves   int
	limit   int
	calls   []string
	initErr error
	panicOn string

	tickAfter time.Duration
	tickLimit int32
	ticks     atomic.Int32
}

type gameOptions struct {
	limit     int
	initErr   error
	panicOn   string
	tickAfter time.Duration
	tickLimit int32
}

// gameFactory returns a factory and a function yielding the games built so far.
func gameFactory(opts gameOptions) (session.Factory, func() []*turnGame) {
	var (
		mu    sync.Mutex
		games []*turnGame
	)
	if opts.limit == 0 {
		opts.limit = 3
	}
	factory := func() session.Session {
		g := &turnGame{
			limit:     opts.limit,
			initErr:   opts.initErr,
			panicOn:   opts.panicOn,
			tickAfter: opts.tickAfter,
			tickLimit: opts.tickLimit,
		}
		mu.Lock()
		games = append(games, g)
		mu.Unlock()
		return g
	}
	built := func() []*turnGame {
		mu.Lock()
		defer mu.Unlock()
		return append([]*turnGame(nil), games...)
	}
	return factory, built
}

func (g *turnGame) hook(name string) {
	g.calls = append(g.calls, name)
	if g.panicOn == name {
		panic(fmt.Sprintf("%s exploded", name))
	}
}

func (g *turnGame) Initialize(host session.Host, info session.Info) error {
	g.hook("init")
	if g.initErr != nil {
		return g.initErr
	}
	g.host = host
	g.info = info
	g.rot = session.NewRotation(info.MemberIDs, info.MemberIDs[0])
	if g.tickAfter > 0 {
		host.ScheduleTick(g.tickAfter)
	}
	return nil
}

func (g *turnGame) State() any {
	return map[string]any{"turn": g.rot.Current(), "moves": g.moves}
}

func (g *turnGame) HandleInput(p session.Participant, payload any) error {
	g.hook("input:" + p.ID)
	if !g.rot.Is(p.ID) {
		return errors.New("not your turn")
	}
	g.moves++
	if g.moves >= g.limit {
		g.host.Complete(map[string]any{"winner": p.ID})
		return nil
	}
	g.rot.Advance()
	g.host.Broadcast(g.State())
	g.host.RequestInput(g.rot.Current(), map[string]any{"prompt": "your move"})
	return nil
}

func (g *turnGame) MemberConnected(p session.Participant) {
	g.hook("connected:" + p.ID)
	if g.rot.Is(p.ID) {
		g.host.RequestInput(p.ID, map[string]any{"prompt": "your move"})
	}
}

func (g *turnGame) MemberDisconnected(p session.Participant) {
	g.hook("disconnected:" + p.ID)
}

func (g *turnGame) Tick() (time.Duration, bool) {
	g.hook("tick")
	n := g.ticks.Add(1)
	g.host.Broadcast(map[string]any{"ticks": n})
	return g.tickAfter, n < g.tickLimit
}

var (
	_ session.ConnectionObserver = (*turnGame)(nil)
	_ session.Ticker             = (*turnGame)(nil)
)
