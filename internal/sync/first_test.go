package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// newFirstSyncFixture returns a fixture that is configured but not yet
// initialized, the state first sync starts from.
func newFirstSyncFixture(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveMeta(ctx, Meta{Initialized: false}))

	settings, err := f.store.Settings(ctx)
	require.NoError(t, err)
	settings.Enabled = false
	require.NoError(t, f.store.SaveSettings(ctx, settings))

	// A completed apply runs one sync cycle; serve it an empty page unless
	// the test overrides this.
	f.remote.pullFn = func(_ context.Context, since int64, _ int) (*api.PullPage, error) {
		return &api.PullPage{Cursor: since}, nil
	}

	return f
}

func TestRequiredPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode string
		want string
	}{
		{api.ModeReplaceLocal, "DELETE ALL LOCAL BOOKMARKS"},
		{api.ModeReplaceServer, "DELETE ALL SERVER BOOKMARKS"},
		{api.ModeTwoWayMerge, "SYNC BOOKMARKS BOTH WAYS"},
	}

	for _, tc := range tests {
		got, err := RequiredPhrase(tc.mode)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := RequiredPhrase("merge_everything")

	var confErr *ConfirmationError
	require.ErrorAs(t, err, &confErr)
}

func TestApplyRejectsBadConfirmationBeforeNetwork(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	// No applyFn configured: any network call would fail the test.
	var confErr *ConfirmationError

	_, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "delete all local bookmarks", true)
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Reason, "phrase")

	_, err = f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", false)
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Reason, "not checked")

	_, err = f.engine.ApplyFirstSync(ctx, "bogus", "tok", "x", true)
	require.ErrorAs(t, err, &confErr)

	meta, err := f.store.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Initialized, "nothing mutated on rejected confirmation")
}

func TestPreflightSendsSnapshot(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	toolbar := f.tree.Roots()[bookmarks.RootToolbar]
	folder, err := f.tree.Create(ctx, toolbar, "Work", "")
	require.NoError(t, err)
	_, err = f.tree.Create(ctx, folder.ID, "Wiki", "https://wiki.example.com")
	require.NoError(t, err)

	var got *api.FirstSyncRequest

	f.remote.preflightFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.PreflightResponse, error) {
		got = req
		return &api.PreflightResponse{
			Mode:              req.Mode,
			RequiredPhrase:    "DELETE ALL LOCAL BOOKMARKS",
			ConfirmationToken: "tok-1",
		}, nil
	}

	resp, err := f.engine.Preflight(ctx, api.ModeReplaceLocal)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.ConfirmationToken)

	require.NotNil(t, got)
	assert.Equal(t, api.ModeReplaceLocal, got.Mode)
	require.Len(t, got.LocalFolders, 1)
	assert.Equal(t, folder.ID, got.LocalFolders[0].ID)
	assert.Empty(t, got.LocalFolders[0].ParentID, "folder under a root reports no parent")

	require.Len(t, got.LocalBookmarks, 1)
	bm := got.LocalBookmarks[0]
	assert.Equal(t, "https://wiki.example.com", bm.URL)
	assert.Equal(t, folder.ID, bm.FolderLocalID)
	assert.Equal(t, []string{"Work"}, bm.FolderPath, "path excludes the root")
}

func TestPreflightRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)

	var confErr *ConfirmationError

	_, err := f.engine.Preflight(context.Background(), "upload_everything")
	require.ErrorAs(t, err, &confErr)
}

func TestApplyNoOpRecordsReasonWithoutInitializing(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{Status: api.ApplyStatusNoOp, Mode: req.Mode, Reason: "server_empty"}, nil
	}

	resp, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", true)
	require.NoError(t, err)
	assert.Equal(t, api.ApplyStatusNoOp, resp.Status)

	meta, err := f.store.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Initialized)
	assert.Equal(t, "server_empty", meta.LastNoOpReason)

	settings, err := f.store.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
}

func TestApplyReplaceLocalRebuildsTree(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	// Pre-existing local content that must be destroyed.
	menu := f.tree.Roots()[bookmarks.RootMenu]
	oldFolder, err := f.tree.Create(ctx, menu, "Old", "")
	require.NoError(t, err)
	_, err = f.tree.Create(ctx, oldFolder.ID, "Old BM", "https://old.example")
	require.NoError(t, err)

	rootFolderID := int64(1)
	subFolderID := int64(2)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusSnapshot,
			Mode:   req.Mode,
			Cursor: 12,
			Folders: []api.FolderPayload{
				{ID: rootFolderID, Name: "Bookmarks Toolbar"},
				{ID: subFolderID, Name: "News", ParentID: &rootFolderID},
			},
			Bookmarks: []api.BookmarkPayload{
				{ID: 5, URL: "https://news.example", Title: "News Site", FolderID: &subFolderID},
			},
		}, nil
	}

	resp, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", true)
	require.NoError(t, err)
	assert.Equal(t, api.ApplyStatusSnapshot, resp.Status)

	// Old content is gone.
	_, err = f.tree.Get(ctx, oldFolder.ID)
	require.ErrorIs(t, err, bookmarks.ErrNodeNotFound)

	// Server root folder bound to the well-known toolbar root.
	toolbar := f.tree.Roots()[bookmarks.RootToolbar]
	localRoot, ok, err := f.store.LocalIDFor(ctx, EntityFolder, rootFolderID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, toolbar, localRoot)

	// Subfolder materialized under the toolbar, bookmark under it.
	localSub, ok, err := f.store.LocalIDFor(ctx, EntityFolder, subFolderID)
	require.NoError(t, err)
	require.True(t, ok)

	sub, err := f.tree.Get(ctx, localSub)
	require.NoError(t, err)
	assert.Equal(t, toolbar, sub.ParentID)
	assert.Equal(t, "News", sub.Title)

	localBM, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 5)
	require.NoError(t, err)
	require.True(t, ok)

	bm, err := f.tree.Get(ctx, localBM)
	require.NoError(t, err)
	assert.Equal(t, localSub, bm.ParentID)

	// Sync is now live.
	meta, err := f.store.Meta(ctx)
	require.NoError(t, err)
	assert.True(t, meta.Initialized)
	assert.Equal(t, int64(12), meta.Cursor)

	settings, err := f.store.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)

	// Rebuild happened under the guard.
	assert.Zero(t, f.outboxLen(t))
}

func TestApplyReplaceServerAdoptsMappingsOnly(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	menu := f.tree.Roots()[bookmarks.RootMenu]
	folder, err := f.tree.Create(ctx, menu, "Work", "")
	require.NoError(t, err)
	bm, err := f.tree.Create(ctx, folder.ID, "Wiki", "https://wiki.example.com")
	require.NoError(t, err)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusSnapshot,
			Mode:   req.Mode,
			Cursor: 20,
			Mapping: api.Mapping{
				Folders:   map[string]int64{folder.ID: 100},
				Bookmarks: map[string]int64{bm.ID: 200},
			},
		}, nil
	}

	_, err = f.engine.ApplyFirstSync(ctx, api.ModeReplaceServer, "tok", "DELETE ALL SERVER BOOKMARKS", true)
	require.NoError(t, err)

	// Local tree untouched.
	got, err := f.tree.Get(ctx, bm.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wiki", got.Title)

	serverID, ok, err := f.store.ServerIDFor(ctx, EntityFolder, folder.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), serverID)

	serverID, ok, err = f.store.ServerIDFor(ctx, EntityBookmark, bm.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), serverID)
}

func TestApplyTwoWayMergeBindsByNormalizedURL(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	menu := f.tree.Roots()[bookmarks.RootMenu]

	// Same logical URL as the server copy, different spelling.
	local, err := f.tree.Create(ctx, menu, "Docs", "HTTPS://Docs.Example.com/?b=2&a=1")
	require.NoError(t, err)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusMerged,
			Mode:   req.Mode,
			Cursor: 30,
			Bookmarks: []api.BookmarkPayload{
				{ID: 300, URL: "https://docs.example.com/?a=1&b=2", Title: "Docs"},
				{ID: 301, URL: "https://only-server.example/", Title: "Server Only"},
			},
		}, nil
	}

	_, err = f.engine.ApplyFirstSync(ctx, api.ModeTwoWayMerge, "tok", "SYNC BOOKMARKS BOTH WAYS", true)
	require.NoError(t, err)

	// The matching local bookmark was bound, not duplicated.
	localID, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 300)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, local.ID, localID)

	// The server-only bookmark was materialized.
	localID, ok, err = f.store.LocalIDFor(ctx, EntityBookmark, 301)
	require.NoError(t, err)
	require.True(t, ok)

	node, err := f.tree.Get(ctx, localID)
	require.NoError(t, err)
	assert.Equal(t, "Server Only", node.Title)
}

func TestApplyTwoWayMergeAdoptsServerMapping(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	menu := f.tree.Roots()[bookmarks.RootMenu]
	local, err := f.tree.Create(ctx, menu, "Matched", "https://m.example/")
	require.NoError(t, err)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusMerged,
			Mode:   req.Mode,
			Cursor: 31,
			Mapping: api.Mapping{
				Bookmarks: map[string]int64{local.ID: 400},
			},
			Bookmarks: []api.BookmarkPayload{
				{ID: 400, URL: "https://m.example/", Title: "Matched (server)"},
			},
		}, nil
	}

	_, err = f.engine.ApplyFirstSync(ctx, api.ModeTwoWayMerge, "tok", "SYNC BOOKMARKS BOTH WAYS", true)
	require.NoError(t, err)

	// Already mapped by the server's table; reconciled in place, not
	// duplicated. The server's root-level placement wins.
	localID, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 400)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, local.ID, localID)

	node, err := f.tree.Get(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Matched (server)", node.Title)
	assert.Equal(t, f.tree.Roots()[bookmarks.RootDefault], node.ParentID)

	children, err := f.tree.Children(ctx, menu)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestApplyTwoWayMergeReconcilesURLMatch(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	menu := f.tree.Roots()[bookmarks.RootMenu]

	// Same logical URL as the server copy, but a stale title and a different
	// query-parameter order.
	local, err := f.tree.Create(ctx, menu, "Old Title", "https://x.example/?b=2&a=1")
	require.NoError(t, err)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusMerged,
			Mode:   req.Mode,
			Cursor: 32,
			Bookmarks: []api.BookmarkPayload{
				{ID: 900, URL: "https://x.example/?a=1&b=2", Title: "Server Title"},
			},
		}, nil
	}

	_, err = f.engine.ApplyFirstSync(ctx, api.ModeTwoWayMerge, "tok", "SYNC BOOKMARKS BOTH WAYS", true)
	require.NoError(t, err)

	// Bound by normalized URL and brought in line with the server row.
	localID, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 900)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, local.ID, localID)

	node, err := f.tree.Get(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Server Title", node.Title)
	assert.Equal(t, "https://x.example/?a=1&b=2", node.URL)

	// Reconciliation ran under the guard.
	assert.Zero(t, f.outboxLen(t))
}

func TestApplyFirstSyncRunsImmediateCycle(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{Status: api.ApplyStatusSnapshot, Mode: req.Mode, Cursor: 60}, nil
	}

	// Events past the adopted cursor are waiting on the server.
	f.remote.pullFn = func(_ context.Context, since int64, _ int) (*api.PullPage, error) {
		if since >= 61 {
			return &api.PullPage{Cursor: since}, nil
		}

		return &api.PullPage{
			Events: []api.Event{{
				Cursor: 61, EntityType: api.EntityBookmark, EntityID: 90, Action: api.ActionCreate,
				Payload: mustJSON(t, api.BookmarkPayload{ID: 90, URL: "https://fresh.example/", Title: "Fresh"}),
			}},
			Cursor: 61,
		}, nil
	}

	_, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", true)
	require.NoError(t, err)

	// The backlog was pulled right away, without waiting for a watch tick.
	meta, err := f.store.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(61), meta.Cursor)

	_, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 90)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplySkipsDeletedServerBookmarks(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	deletedAt := "2026-08-01T00:00:00Z"

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusSnapshot,
			Mode:   req.Mode,
			Cursor: 40,
			Bookmarks: []api.BookmarkPayload{
				{ID: 500, URL: "https://gone.example/", Title: "Gone", DeletedAt: &deletedAt},
			},
		}, nil
	}

	_, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", true)
	require.NoError(t, err)

	_, ok, err := f.store.LocalIDFor(ctx, EntityBookmark, 500)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaterializeFoldersDanglingParentFallsBack(t *testing.T) {
	t.Parallel()

	f := newFirstSyncFixture(t)
	ctx := context.Background()

	ghost := int64(777)

	f.remote.applyFn = func(_ context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error) {
		return &api.ApplyResponse{
			Status: api.ApplyStatusSnapshot,
			Mode:   req.Mode,
			Cursor: 50,
			Folders: []api.FolderPayload{
				{ID: 600, Name: "Dangling", ParentID: &ghost},
			},
		}, nil
	}

	_, err := f.engine.ApplyFirstSync(ctx, api.ModeReplaceLocal, "tok", "DELETE ALL LOCAL BOOKMARKS", true)
	require.NoError(t, err)

	localID, ok, err := f.store.LocalIDFor(ctx, EntityFolder, 600)
	require.NoError(t, err)
	require.True(t, ok)

	node, err := f.tree.Get(ctx, localID)
	require.NoError(t, err)
	assert.Equal(t, f.tree.Roots()[bookmarks.RootDefault], node.ParentID)
}
