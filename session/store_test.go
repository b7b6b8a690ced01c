package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

func TestFileStore_SaveAllocatesID(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(zap.NewNop())

	id, err := store.Save(context.Background(), root, json.RawMessage(`{"state":"idle"}`), nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestFileStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(zap.NewNop())
	ctx := context.Background()

	usage := []types.TokenUsageEntry{{
		Role:         types.RoleCoder,
		Model:        "m1",
		PromptTokens: 100,
		TotalTokens:  150,
		Timestamp:    time.Now(),
	}}
	raw := json.RawMessage(`{"task":"build a parser","state":"spec_created"}`)

	id, err := store.Save(ctx, root, raw, usage, "")
	require.NoError(t, err)

	snap, err := store.Load(ctx, root, id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.JSONEq(t, string(raw), string(snap.Context))
	require.Len(t, snap.TokenUsage, 1)
	assert.Equal(t, types.RoleCoder, snap.TokenUsage[0].Role)
	assert.False(t, snap.CreatedAt.IsZero())
}

func TestFileStore_SaveExistingPreservesCreatedAt(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(zap.NewNop())
	ctx := context.Background()

	id, err := store.Save(ctx, root, json.RawMessage(`{"n":1}`), nil, "")
	require.NoError(t, err)

	first, err := store.Load(ctx, root, id)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	again, err := store.Save(ctx, root, json.RawMessage(`{"n":2}`), nil, id)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	second, err := store.Load(ctx, root, id)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
	assert.JSONEq(t, `{"n":2}`, string(second.Context))
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(zap.NewNop())

	_, err := store.Load(context.Background(), t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ListAndLatest(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(zap.NewNop())
	ctx := context.Background()

	a, err := store.Save(ctx, root, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	b, err := store.Save(ctx, root, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	ids, err := store.List(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, ids, "newest first")

	latest, err := store.Latest(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, b, latest.ID)
}

func TestFileStore_LatestEmptyProject(t *testing.T) {
	store := NewFileStore(zap.NewNop())

	_, err := store.Latest(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Delete(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(zap.NewNop())
	ctx := context.Background()

	id, err := store.Save(ctx, root, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, root, id))
	_, err = store.Load(ctx, root, id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, root, id))
}

func TestUsageTracker(t *testing.T) {
	tracker := NewUsageTracker()

	tracker.RecordUsage(types.RoleCoder, "m1", types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	tracker.RecordUsage(types.RoleCoder, "m1", types.TokenUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	tracker.RecordUsage(types.RoleJudge, "m1", types.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})

	assert.Len(t, tracker.Entries(), 3)
	assert.Equal(t, 47, tracker.Total().TotalTokens)

	byRole := tracker.TotalByRole()
	assert.Equal(t, 45, byRole[types.RoleCoder].TotalTokens)
	assert.Equal(t, 2, byRole[types.RoleJudge].TotalTokens)
}

func TestUsageTracker_Restore(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.RecordUsage(types.RoleCoder, "m1", types.TokenUsage{TotalTokens: 5})

	tracker.Restore([]types.TokenUsageEntry{
		{Role: types.RoleTester, TotalTokens: 7},
	})

	entries := tracker.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.RoleTester, entries[0].Role)
	assert.Equal(t, 7, tracker.Total().TotalTokens)
}
