package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestInfo_IsMember(t *testing.T) {
	info := Info{ID: 1001, MemberIDs: []string{"a", "b"}}
	assert.True(t, info.IsMember("a"))
	assert.False(t, info.IsMember("c"))
}

func TestParticipant_Validate(t *testing.T) {
	require.NoError(t, Participant{ID: "p1", DisplayName: "Alice"}.Validate())
	require.NoError(t, Participant{ID: "p1"}.Validate())

	err := Participant{DisplayName: "nobody"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid participant")

	assert.Error(t, Participant{ID: strings.Repeat("x", 129)}.Validate())
}

func TestParticipant_Name(t *testing.T) {
	assert.Equal(t, "Alice", Participant{ID: "p1", DisplayName: "Alice"}.Name())
	assert.Equal(t, "p1", Participant{ID: "p1"}.Name())
}

func TestRotation_Advance(t *testing.T) {
	r := NewRotation([]string{"a", "b", "c"}, "b")
	assert.Equal(t, "b", r.Current())
	assert.Equal(t, "c", r.Advance())
	assert.Equal(t, "a", r.Advance())
	assert.True(t, r.Is("a"))
	assert.False(t, r.Is("b"))
}

func TestRotation_UnknownFirstStartsAtHead(t *testing.T) {
	r := NewRotation([]string{"a", "b"}, "zz")
	assert.Equal(t, "a", r.Current())
}

func TestRotation_DoesNotAliasInput(t *testing.T) {
	order := []string{"a", "b"}
	r := NewRotation(order, "a")
	order[1] = "mutated"
	assert.Equal(t, "b", r.Advance())
}

func TestRotation_FullCycleReturnsToStart_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "n")
		order := make([]string, n)
		for i := range order {
			order[i] = strings.Repeat("m", i+1)
		}
		start := rapid.IntRange(0, n-1).Draw(rt, "start")
		r := NewRotation(order, order[start])
		seen := map[string]bool{}
		for i := 0; i < n; i++ {
			seen[r.Advance()] = true
		}
		assert.Equal(rt, order[start], r.Current())
		assert.Len(rt, seen, n)
	})
}
