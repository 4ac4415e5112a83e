// Package firstto20 implements "First to 20": members take turns rolling a
// die and the first to roll the target value wins.
package firstto20

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/dice"
	"github.com/cory-johannsen/gamerunner/internal/game/registry"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// Name is the builtin name used in the game catalog.
const Name = "firstto20"

// ActionRoll is the only accepted input action.
const ActionRoll = "roll"

var (
	// ErrNotYourTurn rejects input from a member who is not the active player.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrUnknownAction rejects input whose action is not "roll".
	ErrUnknownAction = errors.New("unknown action")
)

// Config tunes a game.
type Config struct {
	// Sides is the die size. Defaults to 20.
	Sides int
	// Target is the winning roll. Defaults to Sides.
	Target int
	// TurnTimeout skips an idle active player after this long. Zero disables it.
	TurnTimeout time.Duration
}

// Roll is one entry of the roll log.
type Roll struct {
	PlayerID string `json:"playerId"`
	Player   string `json:"player"`
	Roll     int    `json:"roll,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// State is the snapshot sent to members.
type State struct {
	Rolls    []Roll `json:"rolls"`
	Turn     string `json:"turn"`
	TurnName string `json:"turnName"`
	Target   int    `json:"target"`
	Winner   string `json:"winner,omitempty"`
}

// Input is the decoded player-input payload.
type Input struct {
	Action string `json:"action"`
}

// Game is one First to 20 session.
type Game struct {
	cfg    Config
	roller *dice.Roller
	host   session.Host
	rot    *session.Rotation
	state  State
}

var (
	_ session.Session            = (*Game)(nil)
	_ session.ConnectionObserver = (*Game)(nil)
	_ session.Ticker             = (*Game)(nil)
)

// New creates an uninitialized game.
//
// Precondition: roller must be non-nil.
func New(cfg Config, roller *dice.Roller) *Game {
	if cfg.Sides < 2 {
		cfg.Sides = 20
	}
	if cfg.Target < 1 || cfg.Target > cfg.Sides {
		cfg.Target = cfg.Sides
	}
	return &Game{cfg: cfg, roller: roller}
}

// NewFactory returns a factory producing games that share roller.
func NewFactory(cfg Config, roller *dice.Roller) session.Factory {
	return func() session.Session { return New(cfg, roller) }
}

// Builder returns the registry builder for this game. Catalog settings
// "sides", "target" and "turn_timeout" (a duration string) override defaults.
func Builder(src dice.Source, logger *zap.Logger) registry.Builder {
	return func(def registry.Definition) (session.Factory, error) {
		cfg, err := ConfigFromSettings(def.Settings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Type, err)
		}
		roller := dice.NewRoller(src, logger.With(zap.String("type", def.Type)))
		return NewFactory(cfg, roller), nil
	}
}

// ConfigFromSettings decodes catalog settings.
func ConfigFromSettings(settings map[string]any) (Config, error) {
	var raw struct {
		Sides       int    `json:"sides"`
		Target      int    `json:"target"`
		TurnTimeout string `json:"turn_timeout"`
	}
	if len(settings) > 0 {
		if err := channel.Decode(settings, &raw); err != nil {
			return Config{}, fmt.Errorf("decoding settings: %w", err)
		}
	}
	cfg := Config{Sides: raw.Sides, Target: raw.Target}
	if raw.TurnTimeout != "" {
		d, err := time.ParseDuration(raw.TurnTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("turn_timeout: %w", err)
		}
		if d < 0 {
			return Config{}, fmt.Errorf("turn_timeout must not be negative, got %s", d)
		}
		cfg.TurnTimeout = d
	}
	return cfg, nil
}

// Initialize makes the owner the first player, or the first member if the
// owner is not one.
func (g *Game) Initialize(host session.Host, info session.Info) error {
	if len(info.MemberIDs) == 0 {
		return errors.New("first to 20 needs at least one member")
	}
	g.host = host
	g.rot = session.NewRotation(info.MemberIDs, info.OwnerID)
	g.state = State{Rolls: []Roll{}, Target: g.cfg.Target}
	g.updateTurn()
	g.prompt()
	g.armTimeout()
	return nil
}

// State returns the current snapshot.
func (g *Game) State() any {
	return g.state
}

// HandleInput rolls for the active player.
func (g *Game) HandleInput(p session.Participant, payload any) error {
	if !g.rot.Is(p.ID) {
		return ErrNotYourTurn
	}
	var in Input
	if payload != nil {
		if err := channel.Decode(payload, &in); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownAction, err)
		}
	}
	if in.Action != "" && in.Action != ActionRoll {
		return fmt.Errorf("%w %q", ErrUnknownAction, in.Action)
	}

	value := g.roller.Die(g.cfg.Sides)
	g.state.Rolls = append(g.state.Rolls, Roll{PlayerID: p.ID, Player: p.Name(), Roll: value})
	g.host.Logger().Info("player rolled", zap.String("participant_id", p.ID), zap.Int("roll", value))

	if value == g.cfg.Target {
		g.state.Winner = p.ID
		g.host.Complete(g.state)
		return nil
	}
	g.rot.Advance()
	g.updateTurn()
	g.host.Broadcast(g.state)
	g.prompt()
	g.armTimeout()
	return nil
}

// MemberConnected re-prompts the active player.
func (g *Game) MemberConnected(p session.Participant) {
	if g.rot.Is(p.ID) {
		g.prompt()
	}
}

// MemberDisconnected is a no-op; an idle player is skipped by the turn timeout.
func (g *Game) MemberDisconnected(session.Participant) {}

// Tick skips the active player when the turn timeout elapses.
func (g *Game) Tick() (time.Duration, bool) {
	if g.cfg.TurnTimeout <= 0 {
		return 0, false
	}
	idle := g.host.Participant(g.rot.Current())
	g.host.Logger().Info("turn timed out", zap.String("participant_id", idle.ID))
	g.state.Rolls = append(g.state.Rolls, Roll{PlayerID: idle.ID, Player: idle.Name(), Skipped: true})
	g.rot.Advance()
	g.updateTurn()
	g.host.Broadcast(g.state)
	g.prompt()
	return g.cfg.TurnTimeout, true
}

// armTimeout restarts the turn timeout, replacing any pending one.
func (g *Game) armTimeout() {
	if g.cfg.TurnTimeout > 0 {
		g.host.ScheduleTick(g.cfg.TurnTimeout)
	}
}

func (g *Game) updateTurn() {
	current := g.host.Participant(g.rot.Current())
	g.state.Turn = current.ID
	g.state.TurnName = current.Name()
}

func (g *Game) prompt() {
	id := g.rot.Current()
	if g.host.IsConnected(id) {
		g.host.RequestInput(id, map[string]any{"action": ActionRoll, "sides": g.cfg.Sides})
	}
}
