package scripting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/game/dice"
	"github.com/cory-johannsen/gamerunner/internal/game/registry"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// Hook names a script may define as globals.
const (
	HookInit       = "init"
	HookState      = "state"
	HookInput      = "on_input"
	HookConnect    = "on_connect"
	HookDisconnect = "on_disconnect"
	HookTick       = "tick"
)

// Script is a compiled game script shared by every session of one game type.
type Script struct {
	name     string
	proto    *lua.FunctionProto
	limit    int
	settings map[string]any
	roller   *dice.Roller
}

// Compile parses and compiles Lua source.
//
// Precondition: roller must be non-nil; limit <= 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Script whose sessions each run in their own LState.
func Compile(name string, src []byte, limit int, settings map[string]any, roller *dice.Roller) (*Script, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("scripting: parsing %q: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("scripting: compiling %q: %w", name, err)
	}
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	return &Script{
		name:     name,
		proto:    proto,
		limit:    limit,
		settings: settings,
		roller:   roller,
	}, nil
}

// Factory returns a session factory for this script.
func (s *Script) Factory() session.Factory {
	return func() session.Session { return newGame(s) }
}

// Builder returns the registry builder for the lua engine. Script paths in
// definitions are resolved against root.
func Builder(root string, src dice.Source, logger *zap.Logger) registry.Builder {
	return func(def registry.Definition) (session.Factory, error) {
		path := def.Script
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scripting: reading %q: %w", path, err)
		}
		gameLogger := logger.With(zap.String("type", def.Type), zap.String("script", def.Script))
		script, err := Compile(def.Script, data, def.InstructionLimit, def.Settings, dice.NewRoller(src, gameLogger))
		if err != nil {
			return nil, err
		}
		gameLogger.Info("lua game compiled", zap.Int("instruction_limit", script.limit))
		return script.Factory(), nil
	}
}
