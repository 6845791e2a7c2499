// Package bookmarks is the boundary to the local bookmark tree. It defines
// the Tree interface the sync engine operates against, change events emitted
// after each mutation, and the well-known root folders every tree carries.
package bookmarks

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Tree implementations.
var (
	ErrNodeNotFound  = errors.New("bookmarks: node not found")
	ErrNotEmpty      = errors.New("bookmarks: folder not empty")
	ErrNotFolder     = errors.New("bookmarks: node is not a folder")
	ErrRootImmutable = errors.New("bookmarks: well-known roots cannot be modified")
	ErrCycle         = errors.New("bookmarks: move would create a cycle")
)

// Kind distinguishes folders from bookmarks.
type Kind string

const (
	KindFolder   Kind = "folder"
	KindBookmark Kind = "bookmark"
)

// WellKnownRootID identifies one of the fixed top-level folders.
type WellKnownRootID string

const (
	RootMenu    WellKnownRootID = "menu"
	RootToolbar WellKnownRootID = "toolbar"
	RootMobile  WellKnownRootID = "mobile"
	RootDefault WellKnownRootID = "default"
)

// Node is one entry of the local tree. Folders have an empty URL. Index is
// the position among siblings; new nodes are appended after the highest
// existing index.
type Node struct {
	ID        string
	ParentID  string
	Kind      Kind
	Title     string
	URL       string
	Index     int
	UpdatedAt time.Time
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool { return n.Kind == KindFolder }

// EventType classifies a tree mutation.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventMoved   EventType = "moved"
	EventRemoved EventType = "removed"
)

// TreeEvent describes one completed mutation. For subtree removals an event
// is emitted per removed node, children before their parents.
type TreeEvent struct {
	Type        EventType
	Node        Node
	OldParentID string // set for EventMoved
}

// Notifier receives TreeEvents after each successful mutation. It is called
// synchronously on the mutating goroutine.
type Notifier func(TreeEvent)

// Tree is the local bookmark tree the sync engine reads and mutates.
// Implementations must create the well-known roots implicitly and refuse to
// remove or move them.
type Tree interface {
	// Get returns the node with the given id, or ErrNodeNotFound.
	Get(ctx context.Context, id string) (*Node, error)

	// Children returns the direct children of parentID ordered by index.
	Children(ctx context.Context, parentID string) ([]*Node, error)

	// Subtree returns rootID and all its descendants, parents before
	// children. The walk is iterative; depth is unbounded.
	Subtree(ctx context.Context, rootID string) ([]*Node, error)

	// Create adds a node under parentID at the end of its siblings.
	// An empty url creates a folder, otherwise a bookmark.
	Create(ctx context.Context, parentID, title, url string) (*Node, error)

	// Update changes title and/or url. Nil pointers leave fields untouched.
	Update(ctx context.Context, id string, title, url *string) error

	// Move reparents a node, appending it to the new parent's children.
	Move(ctx context.Context, id, newParentID string) error

	// Remove deletes a bookmark or an empty folder.
	Remove(ctx context.Context, id string) error

	// RemoveSubtree deletes a folder and everything beneath it.
	RemoveSubtree(ctx context.Context, rootID string) error

	// Roots returns the node ids of the well-known root folders.
	Roots() map[WellKnownRootID]string

	// SetNotifier installs the mutation callback. Pass nil to detach.
	SetNotifier(n Notifier)
}
