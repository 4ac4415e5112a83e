package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentify(t *testing.T) {
	p, err := ParseIdentify(Event{Name: EventIdentify, Payload: map[string]any{"id": " alice ", "displayName": "Alice"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, "Alice", p.DisplayName)
}

func TestParseIdentify_TypedPayload(t *testing.T) {
	p, err := ParseIdentify(Event{Name: EventIdentify, Payload: Identify{ID: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", p.ID)
	assert.Equal(t, "bob", p.Name())
}

func TestParseIdentify_Rejects(t *testing.T) {
	cases := map[string]Event{
		"wrong event": {Name: EventPlayerInput, Payload: map[string]any{"id": "alice"}},
		"missing id":  {Name: EventIdentify, Payload: map[string]any{"displayName": "Alice"}},
		"blank id":    {Name: EventIdentify, Payload: map[string]any{"id": "   "}},
		"wrong shape": {Name: EventIdentify, Payload: []any{"alice"}},
		"no payload":  {Name: EventIdentify},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIdentify(ev)
			assert.ErrorIs(t, err, ErrHandshake)
		})
	}
}

func TestNormalize(t *testing.T) {
	type payload struct {
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	got, err := Normalize(payload{Count: 3, Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(3), "tags": []any{"a"}}, got)

	got, err = Normalize(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Normalize(make(chan int))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	var req CreateSession
	require.NoError(t, Decode(map[string]any{"type": "example", "memberIds": []any{"a", "b"}}, &req))
	assert.Equal(t, CreateSession{Type: "example", MemberIDs: []string{"a", "b"}}, req)

	assert.Error(t, Decode(map[string]any{"type": 7}, &req))
}
