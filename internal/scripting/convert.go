package scripting

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/gamerunner/internal/channel"
)

// maxDepth bounds table nesting during conversion; deeper values become nil.
const maxDepth = 32

// ToGo converts a Lua value into plain JSON-shaped Go values: nil, bool,
// float64, string, []any for sequences, and map[string]any for other tables.
// Functions and userdata become nil.
func ToGo(v lua.LValue) any {
	return toGo(v, 0)
}

func toGo(v lua.LValue, depth int) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if depth >= maxDepth {
			return nil
		}
		if n := val.MaxN(); n > 0 && isSequence(val, n) {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, toGo(val.RawGetInt(i), depth+1))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[keyString(k)] = toGo(item, depth+1)
		})
		return out
	default:
		return nil
	}
}

func isSequence(t *lua.LTable, n int) bool {
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })
	return count == n
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		return fmt.Sprint(float64(n))
	}
	return k.String()
}

// ToLua converts a Go value into a Lua value. The value is first normalized
// to JSON shapes, so structs arrive as tables keyed by their JSON names.
func ToLua(L *lua.LState, v any) (lua.LValue, error) {
	norm, err := channel.Normalize(v)
	if err != nil {
		return lua.LNil, err
	}
	return toLua(L, norm), nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		keys := lo.Keys(val)
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, toLua(L, val[k]))
		}
		return t
	default:
		return lua.LNil
	}
}
