package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// registerEngine installs the engine global. Every function forwards to the
// session host and is only valid while a hook is running.
func (g *game) registerEngine() {
	L := g.L
	engine := L.NewTable()
	L.SetFuncs(engine, map[string]lua.LGFunction{
		"broadcast":     g.luaBroadcast,
		"request_input": g.luaRequestInput,
		"complete":      g.luaComplete,
		"schedule_tick": g.luaScheduleTick,
		"is_connected":  g.luaIsConnected,
		"player":        g.luaPlayer,
		"roll":          g.luaRoll,
	})

	logTable := L.NewTable()
	L.SetFuncs(logTable, map[string]lua.LGFunction{
		"debug": g.luaLog(zapcore.DebugLevel),
		"info":  g.luaLog(zapcore.InfoLevel),
		"warn":  g.luaLog(zapcore.WarnLevel),
		"error": g.luaLog(zapcore.ErrorLevel),
	})
	engine.RawSetString("log", logTable)
	L.SetGlobal("engine", engine)
}

// engine.broadcast(value)
func (g *game) luaBroadcast(L *lua.LState) int {
	g.host.Broadcast(ToGo(L.Get(1)))
	return 0
}

// engine.request_input(player_id, value)
func (g *game) luaRequestInput(L *lua.LState) int {
	g.host.RequestInput(L.CheckString(1), ToGo(L.Get(2)))
	return 0
}

// engine.complete(value)
func (g *game) luaComplete(L *lua.LState) int {
	g.completed = true
	g.host.Complete(ToGo(L.Get(1)))
	return 0
}

// engine.schedule_tick(milliseconds)
func (g *game) luaScheduleTick(L *lua.LState) int {
	g.host.ScheduleTick(millis(L.CheckNumber(1)))
	return 0
}

// engine.is_connected(player_id) -> bool
func (g *game) luaIsConnected(L *lua.LState) int {
	L.Push(lua.LBool(g.host.IsConnected(L.CheckString(1))))
	return 1
}

// engine.player(player_id) -> {id, name}
func (g *game) luaPlayer(L *lua.LState) int {
	L.Push(g.playerTable(g.host.Participant(L.CheckString(1))))
	return 1
}

// engine.roll(expr) -> {total, dice, modifier, rolls}
func (g *game) luaRoll(L *lua.LState) int {
	res, err := g.script.roller.RollExpr(L.CheckString(1))
	if err != nil {
		L.RaiseError("engine.roll: %s", err.Error())
		return 0
	}
	rolls := L.CreateTable(len(res.Dice), 0)
	sum := 0
	for _, d := range res.Dice {
		rolls.Append(lua.LNumber(d))
		sum += d
	}
	t := L.NewTable()
	t.RawSetString("total", lua.LNumber(res.Total))
	t.RawSetString("dice", lua.LNumber(sum))
	t.RawSetString("modifier", lua.LNumber(res.Modifier))
	t.RawSetString("rolls", rolls)
	L.Push(t)
	return 1
}

// engine.log.<level>(message)
func (g *game) luaLog(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		if ce := g.logger.Check(level, L.CheckString(1)); ce != nil {
			ce.Write(zap.String("source", "lua"))
		}
		return 0
	}
}
