package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// Confirmation phrases per first-sync mode, mirroring the server's. The
// server's required_phrase from preflight is authoritative for display;
// these let the client reject a bad phrase before any network traffic.
var confirmPhrases = map[string]string{
	api.ModeReplaceLocal:  "DELETE ALL LOCAL BOOKMARKS",
	api.ModeReplaceServer: "DELETE ALL SERVER BOOKMARKS",
	api.ModeTwoWayMerge:   "SYNC BOOKMARKS BOTH WAYS",
}

// RequiredPhrase returns the confirmation phrase for mode, or an error for
// an unknown mode.
func RequiredPhrase(mode string) (string, error) {
	phrase, ok := confirmPhrases[mode]
	if !ok {
		return "", &ConfirmationError{Mode: mode, Reason: "unknown mode"}
	}

	return phrase, nil
}

// ensureClientID generates and persists a client id if none exists yet.
func (e *Engine) ensureClientID(ctx context.Context, settings *Settings) error {
	if settings.ClientID != "" {
		return nil
	}

	settings.ClientID = uuid.NewString()

	return e.store.SaveSettings(ctx, *settings)
}

// Preflight evaluates a first-sync mode without mutating anything. It
// snapshots the local tree, asks the server for the impact estimate, and
// returns the warning plus a single-use confirmation token.
func (e *Engine) Preflight(ctx context.Context, mode string) (*api.PreflightResponse, error) {
	if _, err := RequiredPhrase(mode); err != nil {
		return nil, err
	}

	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	if err := e.ensureClientID(ctx, &settings); err != nil {
		return nil, err
	}

	snap, err := e.snapshotTree(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.remote.FirstPreflight(ctx, &api.FirstSyncRequest{
		ClientID:       settings.ClientID,
		Platform:       platform,
		Mode:           mode,
		LocalFolders:   snap.folders,
		LocalBookmarks: snap.bookmarks,
	})
	if err != nil {
		return nil, fmt.Errorf("sync: first-sync preflight: %w", err)
	}

	return resp, nil
}

// ApplyFirstSync runs a confirmed first sync. The typed phrase and the
// explicit confirmation flag are validated locally before any network
// traffic; a mismatch returns a ConfirmationError and mutates nothing.
//
// On snapshot or merged outcomes the local tree and identity map are
// rebuilt, the cursor adopts the server's, sync is enabled, the engine is
// marked initialized, and one sync cycle runs immediately. A no_op outcome
// records its reason and leaves all state untouched.
func (e *Engine) ApplyFirstSync(ctx context.Context, mode, token, typedPhrase string, confirmChecked bool) (*api.ApplyResponse, error) {
	phrase, err := RequiredPhrase(mode)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(typedPhrase) != phrase {
		return nil, &ConfirmationError{Mode: mode, Reason: "typed phrase does not match"}
	}

	if !confirmChecked {
		return nil, &ConfirmationError{Mode: mode, Reason: "confirmation not checked"}
	}

	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	if err := e.ensureClientID(ctx, &settings); err != nil {
		return nil, err
	}

	snap, err := e.snapshotTree(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.remote.FirstApply(ctx, &api.FirstSyncRequest{
		ClientID:          settings.ClientID,
		Platform:          platform,
		Mode:              mode,
		ConfirmationToken: token,
		TypedPhrase:       typedPhrase,
		ConfirmChecked:    confirmChecked,
		LocalFolders:      snap.folders,
		LocalBookmarks:    snap.bookmarks,
	})
	if err != nil {
		return nil, fmt.Errorf("sync: first-sync apply: %w", err)
	}

	if resp.Status == api.ApplyStatusNoOp {
		meta, err := e.store.Meta(ctx)
		if err != nil {
			return nil, err
		}

		meta.LastNoOpReason = resp.Reason

		if err := e.store.SaveMeta(ctx, meta); err != nil {
			return nil, err
		}

		e.logger.Info("first sync was a no-op", slog.String("reason", resp.Reason))

		return resp, nil
	}

	e.beginApply()
	err = e.reconcile(ctx, mode, resp)
	e.endApply()

	if err != nil {
		return nil, fmt.Errorf("sync: reconciling first sync: %w", err)
	}

	meta, err := e.store.Meta(ctx)
	if err != nil {
		return nil, err
	}

	meta.Initialized = true
	meta.Cursor = resp.Cursor
	meta.LastSyncAt = e.now().UTC()
	meta.LastError = ""
	meta.LastNoOpReason = ""

	if err := e.store.SaveMeta(ctx, meta); err != nil {
		return nil, err
	}

	settings.Enabled = true
	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	e.logger.Info("first sync completed",
		slog.String("mode", mode),
		slog.String("status", resp.Status),
		slog.Int64("cursor", resp.Cursor),
	)

	// Converge right away; the periodic watch loop takes over from here. A
	// transient failure here does not undo the completed first sync.
	if err := e.SyncCycle(ctx); err != nil {
		e.logger.Warn("post-bootstrap sync cycle failed", slog.String("error", err.Error()))
	}

	return resp, nil
}

// reconcile brings the local tree and identity map in line with the
// first-sync apply response for the given mode.
func (e *Engine) reconcile(ctx context.Context, mode string, resp *api.ApplyResponse) error {
	switch mode {
	case api.ModeReplaceLocal:
		return e.reconcileReplaceLocal(ctx, resp)
	case api.ModeReplaceServer:
		// The server now mirrors the local tree; only identities change.
		return e.store.ReplaceMappings(ctx, resp.Mapping.Folders, resp.Mapping.Bookmarks)
	case api.ModeTwoWayMerge:
		return e.reconcileTwoWay(ctx, resp)
	default:
		return &ConfirmationError{Mode: mode, Reason: "unknown mode"}
	}
}

// reconcileReplaceLocal destroys everything under the well-known roots and
// materializes the server snapshot from scratch.
func (e *Engine) reconcileReplaceLocal(ctx context.Context, resp *api.ApplyResponse) error {
	if err := e.store.ClearMappings(ctx); err != nil {
		return err
	}

	for _, rootNodeID := range e.tree.Roots() {
		children, err := e.tree.Children(ctx, rootNodeID)
		if err != nil {
			return err
		}

		for _, child := range children {
			if child.IsFolder() {
				err = e.tree.RemoveSubtree(ctx, child.ID)
			} else {
				err = e.tree.Remove(ctx, child.ID)
			}

			if err != nil {
				return err
			}
		}
	}

	if err := e.materializeFolders(ctx, resp.Folders); err != nil {
		return err
	}

	return e.materializeBookmarks(ctx, resp.Bookmarks, nil)
}

// reconcileTwoWay adopts the server's mapping tables, then materializes the
// server-side items that have no local counterpart. Local bookmarks that
// escaped the mapping are bound by normalized URL where possible.
func (e *Engine) reconcileTwoWay(ctx context.Context, resp *api.ApplyResponse) error {
	if err := e.store.ReplaceMappings(ctx, resp.Mapping.Folders, resp.Mapping.Bookmarks); err != nil {
		return err
	}

	if err := e.materializeFolders(ctx, resp.Folders); err != nil {
		return err
	}

	unmatched, err := e.unmappedLocalBookmarksByURL(ctx)
	if err != nil {
		return err
	}

	return e.materializeBookmarks(ctx, resp.Bookmarks, unmatched)
}

// unmappedLocalBookmarksByURL indexes local bookmarks without a server
// binding by normalized URL. First occurrence wins; duplicates stay
// unmatched and sync later through the outbox.
func (e *Engine) unmappedLocalBookmarksByURL(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}

	for _, rootNodeID := range e.tree.Roots() {
		nodes, err := e.tree.Subtree(ctx, rootNodeID)
		if err != nil {
			return nil, err
		}

		for _, n := range nodes {
			if n.IsFolder() {
				continue
			}

			if _, mapped, err := e.store.ServerIDFor(ctx, EntityBookmark, n.ID); err != nil {
				return nil, err
			} else if mapped {
				continue
			}

			key := NormalizeURL(n.URL)
			if _, taken := out[key]; !taken {
				out[key] = n.ID
			}
		}
	}

	return out, nil
}

// materializeFolders creates local folders for server folders that have no
// local counterpart. Parents are resolved in passes so children follow their
// parents; a pass without progress falls back to the default root rather
// than looping forever on a dangling parent.
func (e *Engine) materializeFolders(ctx context.Context, folders []api.FolderPayload) error {
	var remaining []api.FolderPayload

	for _, f := range folders {
		if localID, mapped, err := e.store.LocalIDFor(ctx, EntityFolder, f.ID); err != nil {
			return err
		} else if mapped {
			if _, err := e.tree.Get(ctx, localID); err == nil {
				continue
			}

			// Mapping points at a vanished node; rebuild it.
			if err := e.store.UnmapEntity(ctx, EntityFolder, localID); err != nil {
				return err
			}
		}

		if f.ParentID == nil {
			if rootID, ok := bookmarks.MatchWellKnownRoot(f.Name); ok {
				if err := e.store.MapEntity(ctx, EntityFolder, e.tree.Roots()[rootID], f.ID); err != nil {
					return err
				}

				continue
			}
		}

		remaining = append(remaining, f)
	}

	defaultRoot := e.tree.Roots()[bookmarks.RootDefault]

	for len(remaining) > 0 {
		progress := false

		var deferred []api.FolderPayload

		for _, f := range remaining {
			parentLocalID := defaultRoot

			if f.ParentID != nil {
				localID, mapped, err := e.store.LocalIDFor(ctx, EntityFolder, *f.ParentID)
				if err != nil {
					return err
				}

				if !mapped {
					deferred = append(deferred, f)
					continue
				}

				parentLocalID = localID
			}

			node, err := e.tree.Create(ctx, parentLocalID, f.Name, "")
			if err != nil {
				return err
			}

			if err := e.store.MapEntity(ctx, EntityFolder, node.ID, f.ID); err != nil {
				return err
			}

			progress = true
		}

		if !progress {
			// Dangling parents; place the stragglers under the default root.
			for _, f := range deferred {
				node, err := e.tree.Create(ctx, defaultRoot, f.Name, "")
				if err != nil {
					return err
				}

				if err := e.store.MapEntity(ctx, EntityFolder, node.ID, f.ID); err != nil {
					return err
				}
			}

			return nil
		}

		remaining = deferred
	}

	return nil
}

// materializeBookmarks settles every non-deleted server bookmark locally. A
// mapped bookmark whose node still exists is reconciled in place; byURL, when
// non-nil, binds a server bookmark to an existing unmapped local bookmark
// with the same normalized URL (then reconciles it) instead of creating a
// duplicate. Each local bookmark is consumed at most once.
func (e *Engine) materializeBookmarks(ctx context.Context, serverBookmarks []api.BookmarkPayload, byURL map[string]string) error {
	for _, b := range serverBookmarks {
		if b.DeletedAt != nil && *b.DeletedAt != "" {
			continue
		}

		if localID, mapped, err := e.store.LocalIDFor(ctx, EntityBookmark, b.ID); err != nil {
			return err
		} else if mapped {
			err := e.reconcileBookmarkNode(ctx, localID, b)

			switch {
			case errors.Is(err, bookmarks.ErrNodeNotFound):
				// Mapping points at a vanished node; rebuild it below.
				if err := e.store.UnmapEntity(ctx, EntityBookmark, localID); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				continue
			}
		}

		if byURL != nil {
			key := NormalizeURL(b.URL)
			if localID, ok := byURL[key]; ok {
				delete(byURL, key)

				if err := e.store.MapEntity(ctx, EntityBookmark, localID, b.ID); err != nil {
					return err
				}

				if err := e.reconcileBookmarkNode(ctx, localID, b); err != nil {
					return err
				}

				continue
			}
		}

		parentLocalID, err := e.localParentFor(ctx, b.FolderID)
		if err != nil {
			return err
		}

		node, err := e.tree.Create(ctx, parentLocalID, b.Title, b.URL)
		if err != nil {
			return err
		}

		if err := e.store.MapEntity(ctx, EntityBookmark, node.ID, b.ID); err != nil {
			return err
		}
	}

	return nil
}
