package sync

import (
	"context"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// localSnapshot is the flattened local tree sent to the first-sync
// endpoints. Well-known roots are excluded: a folder directly under a root
// reports no parent, and folder paths are title chains below the root.
type localSnapshot struct {
	folders   []api.LocalFolder
	bookmarks []api.LocalBookmark
}

// snapshotTree flattens the whole tree iteratively, roots first, parents
// before children.
func (e *Engine) snapshotTree(ctx context.Context) (*localSnapshot, error) {
	snap := &localSnapshot{}

	// Paths of visited folders, root-relative (roots map to an empty path).
	paths := map[string][]string{}

	type frame struct{ id string }

	var stack []frame
	for _, rootNodeID := range e.tree.Roots() {
		paths[rootNodeID] = nil
		stack = append(stack, frame{id: rootNodeID})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := e.tree.Children(ctx, top.id)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			parentID := top.id
			if bookmarks.IsRootID(parentID) {
				parentID = ""
			}

			if child.IsFolder() {
				parentPath := paths[top.id]
				path := make([]string, 0, len(parentPath)+1)
				path = append(path, parentPath...)
				path = append(path, child.Title)
				paths[child.ID] = path

				snap.folders = append(snap.folders, api.LocalFolder{
					ID:       child.ID,
					ParentID: parentID,
					Title:    child.Title,
				})

				stack = append(stack, frame{id: child.ID})

				continue
			}

			snap.bookmarks = append(snap.bookmarks, api.LocalBookmark{
				ID:            child.ID,
				URL:           child.URL,
				Title:         child.Title,
				FolderLocalID: parentID,
				FolderPath:    paths[top.id],
				UpdatedAt:     wireTime(child.UpdatedAt),
			})
		}
	}

	return snap, nil
}
