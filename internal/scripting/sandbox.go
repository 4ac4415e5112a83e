// Package scripting runs games written in Lua. Each session owns one
// sandboxed GopherLua state; every hook call runs under a fresh instruction
// budget so a runaway script fails that call instead of hanging the router.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// hook call when the catalog sets no override.
const DefaultInstructionLimit = 100_000

// opcodeBudget is a context that cancels itself once Done has been polled
// more than its allowance. GopherLua polls Done once per opcode, so the
// allowance is an exact instruction count.
type opcodeBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opcodeBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// newOpcodeBudget returns a context that expires after limit opcodes.
//
// Precondition: limit > 0.
func newOpcodeBudget(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	b := &opcodeBudget{Context: base, cancel: cancel}
	b.left.Store(int64(limit))
	return b, cancel
}

// NewSandboxedState creates a GopherLua LState with only the base, table,
// string and math libraries, and with dofile, loadfile, load, collectgarbage
// and require removed.
//
// Postcondition: Returns a non-nil LState with no instruction budget; run code
// through withBudget. The caller must call L.Close() when done.
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// withBudget runs fn with at most limit opcodes available to L.
//
// Precondition: limit > 0.
func withBudget(L *lua.LState, limit int, fn func() error) error {
	ctx, cancel := newOpcodeBudget(limit)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()
	return fn()
}
