package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// Pull fetches server events past the local cursor and applies them to the
// tree, page by page. The cursor and LastSyncAt are persisted after every
// page, so an interruption resumes where it stopped. Events are applied
// under the reentrancy guard; the resulting tree mutations do not re-enter
// the outbox. Only one pull runs at a time.
func (e *Engine) Pull(ctx context.Context) error {
	settings, err := e.ready(ctx)
	if err != nil {
		return err
	}

	if !e.pulling.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.pulling.Store(false)

	for {
		meta, err := e.store.Meta(ctx)
		if err != nil {
			return err
		}

		page, err := e.remote.Pull(ctx, meta.Cursor, e.pullLimit)
		if err != nil {
			e.recordError(ctx, err)
			return fmt.Errorf("sync: pulling events since %d: %w", meta.Cursor, err)
		}

		cursor := meta.Cursor

		e.beginApply()

		for _, ev := range page.Events {
			if err := e.applyEvent(ctx, ev); err != nil {
				e.endApply()
				e.recordError(ctx, err)

				return fmt.Errorf("sync: applying event %d: %w", ev.Cursor, err)
			}

			if ev.Cursor > cursor {
				cursor = ev.Cursor
			}
		}

		e.endApply()

		if page.Cursor > cursor {
			cursor = page.Cursor
		}

		if err := e.advanceCursor(ctx, cursor, true); err != nil {
			return err
		}

		if !page.HasMore {
			if err := e.remote.Ack(ctx, settings.ClientID, cursor); err != nil {
				// Ack is bookkeeping; cursor state stays client-owned.
				e.logger.Warn("ack failed", slog.String("error", err.Error()))
			}

			return nil
		}
	}
}

// applyEvent applies one server event to the local tree. Entity/action
// combinations are handled exhaustively; unknown ones are rejected.
func (e *Engine) applyEvent(ctx context.Context, ev api.Event) error {
	switch ev.EntityType {
	case api.EntityBookmark:
		switch ev.Action {
		case api.ActionCreate, api.ActionUpdate, api.ActionRestore:
			return e.applyBookmarkUpsert(ctx, ev)
		case api.ActionDelete, api.ActionPurge:
			return e.applyBookmarkDelete(ctx, ev.EntityID)
		default:
			return fmt.Errorf("sync: unknown bookmark action %q", ev.Action)
		}
	case api.EntityFolder:
		switch ev.Action {
		case api.ActionCreate, api.ActionUpdate, api.ActionRestore:
			return e.applyFolderUpsert(ctx, ev)
		case api.ActionDelete, api.ActionPurge:
			return e.applyFolderDelete(ctx, ev.EntityID)
		default:
			return fmt.Errorf("sync: unknown folder action %q", ev.Action)
		}
	default:
		return fmt.Errorf("sync: unknown entity type %q", ev.EntityType)
	}
}

// applyBookmarkUpsert creates or updates the local bookmark for a server
// event. A payload carrying a deletion marker is treated as a delete.
func (e *Engine) applyBookmarkUpsert(ctx context.Context, ev api.Event) error {
	var payload api.BookmarkPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decoding bookmark payload: %w", err)
	}

	if payload.DeletedAt != nil && *payload.DeletedAt != "" {
		return e.applyBookmarkDelete(ctx, ev.EntityID)
	}

	localID, mapped, err := e.mapper.LocalBookmarkID(ctx, ev.EntityID)
	if err != nil {
		return err
	}

	if mapped {
		err := e.reconcileBookmarkNode(ctx, localID, payload)

		switch {
		case errors.Is(err, bookmarks.ErrNodeNotFound):
			// The mapped node vanished locally; drop the stale binding and
			// recreate below.
			if err := e.mapper.UnmapBookmark(ctx, localID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			return nil
		}
	}

	parentLocalID, err := e.localParentFor(ctx, payload.FolderID)
	if err != nil {
		return err
	}

	node, err := e.tree.Create(ctx, parentLocalID, payload.Title, payload.URL)
	if err != nil {
		return err
	}

	return e.mapper.MapBookmark(ctx, node.ID, ev.EntityID)
}

// reconcileBookmarkNode aligns an existing local bookmark with its server
// payload: title, url, and parent placement.
func (e *Engine) reconcileBookmarkNode(ctx context.Context, localID string, payload api.BookmarkPayload) error {
	node, err := e.tree.Get(ctx, localID)
	if err != nil {
		return err
	}

	if node.Title != payload.Title || node.URL != payload.URL {
		title, url := payload.Title, payload.URL
		if err := e.tree.Update(ctx, localID, &title, &url); err != nil {
			return err
		}
	}

	parentLocalID, err := e.localParentFor(ctx, payload.FolderID)
	if err != nil {
		return err
	}

	if node.ParentID != parentLocalID {
		return e.tree.Move(ctx, localID, parentLocalID)
	}

	return nil
}

// applyBookmarkDelete removes the local bookmark mapped to serverID, if any.
func (e *Engine) applyBookmarkDelete(ctx context.Context, serverID int64) error {
	localID, mapped, err := e.mapper.LocalBookmarkID(ctx, serverID)
	if err != nil {
		return err
	}

	if !mapped {
		return nil
	}

	if err := e.mapper.UnmapBookmark(ctx, localID); err != nil {
		return err
	}

	if err := e.tree.Remove(ctx, localID); err != nil && !errors.Is(err, bookmarks.ErrNodeNotFound) {
		return err
	}

	return nil
}

// applyFolderUpsert creates or updates the local folder for a server event.
// A root-level server folder named like a well-known root is bound to that
// root instead of creating a duplicate.
func (e *Engine) applyFolderUpsert(ctx context.Context, ev api.Event) error {
	var payload api.FolderPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decoding folder payload: %w", err)
	}

	if payload.ParentID == nil {
		if rootID, ok := bookmarks.MatchWellKnownRoot(payload.Name); ok {
			return e.mapper.MapFolder(ctx, e.tree.Roots()[rootID], ev.EntityID)
		}
	}

	parentLocalID, err := e.localParentFor(ctx, payload.ParentID)
	if err != nil {
		return err
	}

	localID, mapped, err := e.mapper.LocalFolderID(ctx, ev.EntityID)
	if err != nil {
		return err
	}

	if mapped {
		if bookmarks.IsRootID(localID) {
			// Well-known roots track server folders by identity only; their
			// title and position stay local.
			return nil
		}

		node, err := e.tree.Get(ctx, localID)

		switch {
		case errors.Is(err, bookmarks.ErrNodeNotFound):
			if err := e.mapper.UnmapFolder(ctx, localID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if node.Title != payload.Name {
				name := payload.Name
				if err := e.tree.Update(ctx, localID, &name, nil); err != nil {
					return err
				}
			}

			if node.ParentID != parentLocalID {
				if err := e.tree.Move(ctx, localID, parentLocalID); err != nil {
					return err
				}
			}

			return nil
		}
	}

	node, err := e.tree.Create(ctx, parentLocalID, payload.Name, "")
	if err != nil {
		return err
	}

	return e.mapper.MapFolder(ctx, node.ID, ev.EntityID)
}

// applyFolderDelete removes the local subtree mapped to serverID, if any.
// A well-known root is unbound but never removed.
func (e *Engine) applyFolderDelete(ctx context.Context, serverID int64) error {
	localID, mapped, err := e.mapper.LocalFolderID(ctx, serverID)
	if err != nil {
		return err
	}

	if !mapped {
		return nil
	}

	if err := e.mapper.UnmapFolder(ctx, localID); err != nil {
		return err
	}

	if bookmarks.IsRootID(localID) {
		return nil
	}

	if err := e.tree.RemoveSubtree(ctx, localID); err != nil && !errors.Is(err, bookmarks.ErrNodeNotFound) {
		return err
	}

	return nil
}

// localParentFor resolves a server folder reference to a local parent node
// id. Nil or unmapped references fall back to the default root so no event
// is ever unplaceable.
func (e *Engine) localParentFor(ctx context.Context, serverFolderID *int64) (string, error) {
	defaultRoot := e.tree.Roots()[bookmarks.RootDefault]

	if serverFolderID == nil {
		return defaultRoot, nil
	}

	localID, mapped, err := e.mapper.LocalFolderID(ctx, *serverFolderID)
	if err != nil {
		return "", err
	}

	if !mapped {
		return defaultRoot, nil
	}

	// Stale mapping to a vanished node also falls back.
	if _, err := e.tree.Get(ctx, localID); errors.Is(err, bookmarks.ErrNodeNotFound) {
		return defaultRoot, nil
	} else if err != nil {
		return "", err
	}

	return localID, nil
}
