package bookmarks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemTree is an in-memory Tree. It backs tests and the dry-run paths; the
// production tree is SQLiteTree.
type MemTree struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	notifier Notifier
	now      func() time.Time
}

var _ Tree = (*MemTree)(nil)

// NewMemTree returns an empty tree with the well-known roots created.
func NewMemTree() *MemTree {
	t := &MemTree{
		nodes: make(map[string]*Node),
		now:   time.Now,
	}

	for rootID, nodeID := range rootIDs {
		t.nodes[nodeID] = &Node{
			ID:    nodeID,
			Kind:  KindFolder,
			Title: rootTitles[rootID],
		}
	}

	return t
}

func (t *MemTree) Roots() map[WellKnownRootID]string { return wellKnownRoots() }

func (t *MemTree) SetNotifier(n Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = n
}

func (t *MemTree) Get(_ context.Context, id string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("getting %q: %w", id, ErrNodeNotFound)
	}

	cp := *n

	return &cp, nil
}

func (t *MemTree) Children(_ context.Context, parentID string) ([]*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[parentID]; !ok {
		return nil, fmt.Errorf("listing children of %q: %w", parentID, ErrNodeNotFound)
	}

	return t.childrenLocked(parentID), nil
}

// childrenLocked returns copies of parentID's children ordered by index.
func (t *MemTree) childrenLocked(parentID string) []*Node {
	var out []*Node

	for _, n := range t.nodes {
		if n.ParentID == parentID {
			cp := *n
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	return out
}

func (t *MemTree) Subtree(_ context.Context, rootID string) ([]*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, ok := t.nodes[rootID]
	if !ok {
		return nil, fmt.Errorf("walking subtree of %q: %w", rootID, ErrNodeNotFound)
	}

	cp := *root
	out := []*Node{&cp}

	// Iterative breadth-first walk; parents always precede children.
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, child := range t.childrenLocked(id) {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}

	return out, nil
}

func (t *MemTree) Create(_ context.Context, parentID, title, url string) (*Node, error) {
	t.mu.Lock()

	parent, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("creating under %q: %w", parentID, ErrNodeNotFound)
	}

	if parent.Kind != KindFolder {
		t.mu.Unlock()
		return nil, fmt.Errorf("creating under %q: %w", parentID, ErrNotFolder)
	}

	kind := KindBookmark
	if url == "" {
		kind = KindFolder
	}

	n := &Node{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Kind:      kind,
		Title:     title,
		URL:       url,
		Index:     t.nextIndexLocked(parentID),
		UpdatedAt: t.now(),
	}
	t.nodes[n.ID] = n

	cp := *n
	notifier := t.notifier
	t.mu.Unlock()

	if notifier != nil {
		notifier(TreeEvent{Type: EventCreated, Node: cp})
	}

	return &cp, nil
}

// nextIndexLocked reserves the append-to-end position under parentID.
func (t *MemTree) nextIndexLocked(parentID string) int {
	next := 0

	for _, n := range t.nodes {
		if n.ParentID == parentID && n.Index >= next {
			next = n.Index + 1
		}
	}

	return next
}

func (t *MemTree) Update(_ context.Context, id string, title, url *string) error {
	t.mu.Lock()

	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("updating %q: %w", id, ErrNodeNotFound)
	}

	if IsRootID(id) {
		t.mu.Unlock()
		return fmt.Errorf("updating %q: %w", id, ErrRootImmutable)
	}

	if title != nil {
		n.Title = *title
	}

	if url != nil && n.Kind == KindBookmark {
		n.URL = *url
	}

	n.UpdatedAt = t.now()

	cp := *n
	notifier := t.notifier
	t.mu.Unlock()

	if notifier != nil {
		notifier(TreeEvent{Type: EventUpdated, Node: cp})
	}

	return nil
}

func (t *MemTree) Move(_ context.Context, id, newParentID string) error {
	t.mu.Lock()

	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("moving %q: %w", id, ErrNodeNotFound)
	}

	if IsRootID(id) {
		t.mu.Unlock()
		return fmt.Errorf("moving %q: %w", id, ErrRootImmutable)
	}

	parent, ok := t.nodes[newParentID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrNodeNotFound)
	}

	if parent.Kind != KindFolder {
		t.mu.Unlock()
		return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrNotFolder)
	}

	// Walk up from the new parent; hitting the moved node means a cycle.
	for cur := newParentID; cur != ""; {
		if cur == id {
			t.mu.Unlock()
			return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrCycle)
		}

		p, ok := t.nodes[cur]
		if !ok {
			break
		}

		cur = p.ParentID
	}

	oldParent := n.ParentID
	n.ParentID = newParentID
	n.Index = t.nextIndexLocked(newParentID)
	n.UpdatedAt = t.now()

	cp := *n
	notifier := t.notifier
	t.mu.Unlock()

	if notifier != nil {
		notifier(TreeEvent{Type: EventMoved, Node: cp, OldParentID: oldParent})
	}

	return nil
}

func (t *MemTree) Remove(_ context.Context, id string) error {
	t.mu.Lock()

	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("removing %q: %w", id, ErrNodeNotFound)
	}

	if IsRootID(id) {
		t.mu.Unlock()
		return fmt.Errorf("removing %q: %w", id, ErrRootImmutable)
	}

	if n.Kind == KindFolder && len(t.childrenLocked(id)) > 0 {
		t.mu.Unlock()
		return fmt.Errorf("removing %q: %w", id, ErrNotEmpty)
	}

	delete(t.nodes, id)

	cp := *n
	notifier := t.notifier
	t.mu.Unlock()

	if notifier != nil {
		notifier(TreeEvent{Type: EventRemoved, Node: cp})
	}

	return nil
}

func (t *MemTree) RemoveSubtree(_ context.Context, rootID string) error {
	t.mu.Lock()

	if _, ok := t.nodes[rootID]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("removing subtree %q: %w", rootID, ErrNodeNotFound)
	}

	if IsRootID(rootID) {
		t.mu.Unlock()
		return fmt.Errorf("removing subtree %q: %w", rootID, ErrRootImmutable)
	}

	// Collect parents-first, then delete and notify in reverse so children
	// are reported removed before their parents.
	ordered := []*Node{t.nodes[rootID]}
	queue := []string{rootID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, child := range t.childrenLocked(id) {
			ordered = append(ordered, t.nodes[child.ID])
			queue = append(queue, child.ID)
		}
	}

	removed := make([]Node, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		removed = append(removed, *ordered[i])
		delete(t.nodes, ordered[i].ID)
	}

	notifier := t.notifier
	t.mu.Unlock()

	if notifier != nil {
		for _, n := range removed {
			notifier(TreeEvent{Type: EventRemoved, Node: n})
		}
	}

	return nil
}
