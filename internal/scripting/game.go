package scripting

import (
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// ErrScriptFailed is returned for input whose on_input hook raised a Lua error.
// The Lua error itself is logged, not sent to the player.
var ErrScriptFailed = errors.New("game script failed")

// game adapts one Lua state to the session contract. Hooks are optional
// globals; a missing hook is a no-op.
type game struct {
	script *Script
	L      *lua.LState
	host   session.Host
	logger *zap.Logger

	// completed is set by engine.complete; the state is then snapshotted into
	// final and the LState closed once the running hook returns.
	completed bool
	closed    bool
	final     any
}

var (
	_ session.Session            = (*game)(nil)
	_ session.ConnectionObserver = (*game)(nil)
	_ session.Ticker             = (*game)(nil)
)

func newGame(s *Script) *game {
	return &game{script: s}
}

// Initialize runs the script body and then the init hook. init may return a
// string to refuse the session.
func (g *game) Initialize(host session.Host, info session.Info) error {
	g.host = host
	g.logger = host.Logger()
	g.L = NewSandboxedState()
	g.registerEngine()

	fn := g.L.NewFunctionFromProto(g.script.proto)
	err := withBudget(g.L, g.script.limit, func() error {
		g.L.Push(fn)
		return g.L.PCall(0, 0, nil)
	})
	if err != nil {
		g.close()
		return fmt.Errorf("scripting: running %q: %w", g.script.name, err)
	}

	arg, err := ToLua(g.L, map[string]any{
		"id":       info.ID,
		"type":     info.Type,
		"owner":    info.OwnerID,
		"members":  info.MemberIDs,
		"settings": g.script.settings,
	})
	if err != nil {
		g.close()
		return fmt.Errorf("scripting: converting session info: %w", err)
	}
	ret, err := g.call(HookInit, arg)
	if err != nil {
		g.close()
		return fmt.Errorf("scripting: %s hook: %w", HookInit, err)
	}
	if reason, ok := ret.(lua.LString); ok {
		g.close()
		return errors.New(string(reason))
	}
	g.settle()
	return nil
}

// State returns the state hook's value, or the final snapshot once complete.
func (g *game) State() any {
	if g.closed {
		return g.final
	}
	ret, err := g.call(HookState)
	if err != nil {
		return nil
	}
	return ToGo(ret)
}

// HandleInput passes the player and payload to on_input. A returned string
// rejects the input with that message.
func (g *game) HandleInput(p session.Participant, payload any) error {
	if g.closed {
		return nil
	}
	arg, err := ToLua(g.L, payload)
	if err != nil {
		return fmt.Errorf("unreadable input: %w", err)
	}
	ret, err := g.call(HookInput, g.playerTable(p), arg)
	g.settle()
	if err != nil {
		return ErrScriptFailed
	}
	if reason, ok := ret.(lua.LString); ok {
		return errors.New(string(reason))
	}
	return nil
}

func (g *game) MemberConnected(p session.Participant) {
	if g.closed {
		return
	}
	_, _ = g.call(HookConnect, g.playerTable(p))
	g.settle()
}

func (g *game) MemberDisconnected(p session.Participant) {
	if g.closed {
		return
	}
	_, _ = g.call(HookDisconnect, g.playerTable(p))
	g.settle()
}

// Tick calls the tick hook. A numeric return schedules the next tick after
// that many milliseconds; anything else stops ticking.
func (g *game) Tick() (time.Duration, bool) {
	if g.closed {
		return 0, false
	}
	ret, err := g.call(HookTick)
	g.settle()
	if err != nil || g.closed {
		return 0, false
	}
	ms, ok := ret.(lua.LNumber)
	if !ok || ms < 0 {
		return 0, false
	}
	return millis(ms), true
}

// call invokes a global hook under a fresh instruction budget. Lua errors are
// logged at Warn and returned.
func (g *game) call(hook string, args ...lua.LValue) (lua.LValue, error) {
	if g.closed {
		return lua.LNil, nil
	}
	fn := g.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}
	err := withBudget(g.L, g.script.limit, func() error {
		return g.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		g.logger.Warn("lua hook failed", zap.String("hook", hook), zap.Error(err))
		return lua.LNil, err
	}
	ret := g.L.Get(-1)
	g.L.Pop(1)
	return ret, nil
}

// settle snapshots and releases the state after engine.complete.
func (g *game) settle() {
	if !g.completed || g.closed {
		return
	}
	g.final = g.State()
	g.close()
}

func (g *game) close() {
	if g.closed {
		return
	}
	g.closed = true
	g.L.Close()
}

func (g *game) playerTable(p session.Participant) *lua.LTable {
	t := g.L.NewTable()
	t.RawSetString("id", lua.LString(p.ID))
	t.RawSetString("name", lua.LString(p.Name()))
	return t
}

func millis(n lua.LNumber) time.Duration {
	return time.Duration(float64(n) * float64(time.Millisecond))
}
