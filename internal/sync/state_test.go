package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()

	store, err := NewStateStore(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	settings, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.Configured())
	assert.False(t, settings.Enabled)
	assert.Equal(t, 5, settings.PollIntervalMinutes)

	settings = Settings{
		ServerURL:           "https://links.example.com",
		APIToken:            "tok",
		ClientID:            "client-1",
		PollIntervalMinutes: 10,
		Enabled:             true,
	}
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, got)
	assert.True(t, got.Configured())
}

func TestMetaRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Initialized)
	assert.Zero(t, meta.Cursor)
	assert.True(t, meta.LastSyncAt.IsZero())

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	meta = Meta{
		Initialized:    true,
		Cursor:         42,
		LastSyncAt:     now,
		LastError:      "boom",
		LastNoOpReason: "server_empty",
	}
	require.NoError(t, store.SaveMeta(ctx, meta))

	got, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestMappingOverwritesBothDirections(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "local-a", 1))

	// Rebinding the same local id to a new server id evicts the old pair.
	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "local-a", 2))

	serverID, ok, err := store.ServerIDFor(ctx, EntityBookmark, "local-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), serverID)

	_, ok, err = store.LocalIDFor(ctx, EntityBookmark, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// Rebinding the server id to a new local id evicts the old pair too.
	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "local-b", 2))

	localID, ok, err := store.LocalIDFor(ctx, EntityBookmark, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "local-b", localID)

	_, ok, err = store.ServerIDFor(ctx, EntityBookmark, "local-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMappingNamespacesByEntity(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "shared", 1))
	require.NoError(t, store.MapEntity(ctx, EntityFolder, "shared", 1))

	bm, ok, err := store.ServerIDFor(ctx, EntityBookmark, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), bm)

	require.NoError(t, store.UnmapEntity(ctx, EntityBookmark, "shared"))

	_, ok, err = store.ServerIDFor(ctx, EntityBookmark, "shared")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.ServerIDFor(ctx, EntityFolder, "shared")
	require.NoError(t, err)
	assert.True(t, ok, "folder namespace must survive bookmark unmap")
}

func TestUnmapUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.UnmapEntity(context.Background(), EntityBookmark, "never-mapped"))
}

func TestOutboxFIFO(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &Operation{OpID: "op-1", Entity: EntityBookmark, Op: OpCreate, LocalID: "a",
		Payload: OpPayload{Title: "A", URL: "https://a.example"}}
	second := &Operation{OpID: "op-2", Entity: EntityFolder, Op: OpDelete, LocalID: "b", ServerID: 9}

	require.NoError(t, store.Enqueue(ctx, first))
	require.NoError(t, store.Enqueue(ctx, second))
	assert.Less(t, first.Seq, second.Seq)

	n, err := store.OutboxLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	head, ok, err := store.PeekOutbox(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "op-1", head.OpID)
	assert.Equal(t, "A", head.Payload.Title)

	// Peek does not consume.
	head, ok, err = store.PeekOutbox(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "op-1", head.OpID)

	require.NoError(t, store.PopOutbox(ctx, head.Seq))

	head, ok, err = store.PeekOutbox(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "op-2", head.OpID)
	assert.Equal(t, int64(9), head.ServerID)

	require.NoError(t, store.PopOutbox(ctx, head.Seq))

	_, ok, err = store.PeekOutbox(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBindAndPopIsAtomic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	op := &Operation{OpID: "op-1", Entity: EntityBookmark, Op: OpCreate, LocalID: "local-a"}
	require.NoError(t, store.Enqueue(ctx, op))

	require.NoError(t, store.BindAndPop(ctx, op, 77))

	serverID, ok, err := store.ServerIDFor(ctx, EntityBookmark, "local-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(77), serverID)

	n, err := store.OutboxLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplaceMappings(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "stale", 1))

	require.NoError(t, store.ReplaceMappings(ctx,
		map[string]int64{"folder-a": 10},
		map[string]int64{"bm-a": 20, "bm-b": 21},
	))

	_, ok, err := store.ServerIDFor(ctx, EntityBookmark, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	folderID, ok, err := store.ServerIDFor(ctx, EntityFolder, "folder-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), folderID)

	localID, ok, err := store.LocalIDFor(ctx, EntityBookmark, 21)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bm-b", localID)
}

func TestResetClearsStateButKeepsConfig(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, Settings{
		ServerURL: "https://links.example.com", APIToken: "tok",
		ClientID: "client-1", PollIntervalMinutes: 5, Enabled: true,
	}))
	require.NoError(t, store.SaveMeta(ctx, Meta{Initialized: true, Cursor: 10, LastError: "x"}))
	require.NoError(t, store.MapEntity(ctx, EntityBookmark, "a", 1))
	require.NoError(t, store.Enqueue(ctx, &Operation{OpID: "op-1", Entity: EntityBookmark, Op: OpCreate, LocalID: "a"}))

	require.NoError(t, store.Reset(ctx))

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Initialized)
	assert.Zero(t, meta.Cursor)
	assert.Empty(t, meta.LastError)

	n, err := store.OutboxLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := store.ServerIDFor(ctx, EntityBookmark, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	settings, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.Enabled, "reset disables sync")
	assert.Equal(t, "https://links.example.com", settings.ServerURL, "server config survives reset")
	assert.Equal(t, "client-1", settings.ClientID)
}
