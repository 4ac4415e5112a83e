package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
	"github.com/cory-johannsen/gamerunner/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	first, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err, "reopening an already migrated database")
	require.NoError(t, second.Close())
}

func TestStore_SaveAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveResult(ctx, session.Result{
		SessionID:  1001,
		Type:       "example",
		OwnerID:    "alice",
		MemberIDs:  []string{"alice", "bob"},
		Outcome:    map[string]any{"winner": "bob", "rolls": []any{float64(20)}},
		StartedAt:  base,
		FinishedAt: base.Add(time.Minute),
	}))
	require.NoError(t, store.SaveResult(ctx, session.Result{
		SessionID:  1002,
		Type:       "race",
		OwnerID:    "carol",
		StartedAt:  base,
		FinishedAt: base.Add(2 * time.Minute),
	}))

	got, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1002), got[0].SessionID)
	assert.Empty(t, got[0].MemberIDs)
	assert.Nil(t, got[0].Outcome)

	assert.Equal(t, []string{"alice", "bob"}, got[1].MemberIDs)
	assert.Equal(t, map[string]any{"winner": "bob", "rolls": []any{float64(20)}}, got[1].Outcome)
	assert.Equal(t, base, got[1].StartedAt)
	assert.Equal(t, base.Add(time.Minute), got[1].FinishedAt)
}

func TestStore_RecentHonoursLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveResult(ctx, session.Result{
			SessionID:  int64(1001 + i),
			Type:       "example",
			OwnerID:    "alice",
			StartedAt:  now,
			FinishedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	got, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1005), got[0].SessionID)
}

func TestStore_UnencodableOutcome(t *testing.T) {
	store := openStore(t)
	err := store.SaveResult(context.Background(), session.Result{SessionID: 1001, Outcome: func() {}})
	assert.ErrorContains(t, err, "encoding outcome")
}

// Property: member lists survive storage in order.
func TestPropertyMembersRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	var id int64 = 1000
	rapid.Check(t, func(t *rapid.T) {
		id++
		members := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}`), 0, 8).Draw(t, "members")
		now := time.Now()
		if err := store.SaveResult(ctx, session.Result{
			SessionID:  id,
			Type:       "example",
			OwnerID:    "owner",
			MemberIDs:  members,
			StartedAt:  now,
			FinishedAt: now.Add(24 * time.Hour * time.Duration(id)),
		}); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		got, err := store.Recent(ctx, 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("Recent: %v (%d rows)", err, len(got))
		}
		if got[0].SessionID != id {
			t.Fatalf("latest row is session %d, want %d", got[0].SessionID, id)
		}
		if len(got[0].MemberIDs) != len(members) {
			t.Fatalf("members = %v, want %v", got[0].MemberIDs, members)
		}
		for i := range members {
			if got[0].MemberIDs[i] != members[i] {
				t.Fatalf("members = %v, want %v", got[0].MemberIDs, members)
			}
		}
	})
}
