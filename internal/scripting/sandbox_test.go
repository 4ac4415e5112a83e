package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"
)

func TestSandbox_RemovedGlobals(t *testing.T) {
	L := NewSandboxedState()
	require.NotNil(t, L)
	t.Cleanup(L.Close)

	removed := []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"}
	for _, name := range removed {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, lua.LNil, L.GetGlobal(name))
		})
	}
}

func TestSandbox_GameLibrariesWork(t *testing.T) {
	L := NewSandboxedState()
	t.Cleanup(L.Close)

	require.NoError(t, L.DoString(`
		local order = {"carol", "alice", "bob"}
		table.sort(order)
		result = string.format("%s/%d", table.concat(order, ","), math.max(3, 7))
	`))
	assert.Equal(t, "alice,bob,carol/7", L.GetGlobal("result").String())
}

func TestOpcodeBudget_ExpiresAfterLimit(t *testing.T) {
	ctx, cancel := newOpcodeBudget(3)
	defer cancel()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			t.Fatalf("budget expired after %d polls", i+1)
		default:
		}
	}
	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestWithBudget_StopsRunawayLoop(t *testing.T) {
	L := NewSandboxedState()
	t.Cleanup(L.Close)

	err := withBudget(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err)
}

func TestWithBudget_EachCallStartsFresh(t *testing.T) {
	L := NewSandboxedState()
	t.Cleanup(L.Close)
	require.NoError(t, L.DoString(`
		function sum(n)
			local s = 0
			for i = 1, n do s = s + i end
			return s
		end
	`))

	for i := 0; i < 5; i++ {
		err := withBudget(L, 2_000, func() error {
			return L.CallByParam(lua.P{Fn: L.GetGlobal("sum"), NRet: 1, Protect: true}, lua.LNumber(100))
		})
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, lua.LNumber(5050), L.Get(-1))
		L.Pop(1)
	}
}

func TestWithBudget_StateUsableAfterExhaustion(t *testing.T) {
	L := NewSandboxedState()
	t.Cleanup(L.Close)

	require.Error(t, withBudget(L, 5, func() error { return L.DoString(`while true do end`) }))
	require.NoError(t, withBudget(L, 1_000, func() error { return L.DoString(`after = 1`) }))
	assert.Equal(t, lua.LNumber(1), L.GetGlobal("after"))
}

func TestWithBudget_AnyLimitStopsInfiniteLoop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 500).Draw(t, "limit")
		L := NewSandboxedState()
		defer L.Close()
		if err := withBudget(L, limit, func() error { return L.DoString(`local n = 0 while true do n = n + 1 end`) }); err == nil {
			t.Fatalf("loop finished under limit %d", limit)
		}
	})
}
