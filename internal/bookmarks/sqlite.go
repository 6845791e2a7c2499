package bookmarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// SQLiteTree stores the local bookmark tree in its own SQLite database with
// WAL mode. Mutations run in transactions; sibling positions are reserved
// append-to-end inside the same transaction that inserts the node.
type SQLiteTree struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex // serializes mutations so events fire in commit order
	notifier Notifier

	now func() time.Time
}

var _ Tree = (*SQLiteTree)(nil)

// NewSQLiteTree opens (or creates) the tree database at dbPath, applies
// migrations, and ensures the well-known roots exist. Use ":memory:" in tests.
func NewSQLiteTree(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteTree, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("bookmarks: opening tree database: %w", err)
	}

	// Sole-writer pattern; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("bookmarks: setting pragma: %w", err)
		}
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	t := &SQLiteTree{db: db, logger: logger, now: time.Now}

	if err := t.ensureRoots(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("bookmark tree database ready", slog.String("path", dbPath))

	return t, nil
}

// Close closes the underlying database.
func (t *SQLiteTree) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("bookmarks: closing tree database: %w", err)
	}

	return nil
}

// ensureRoots inserts any missing well-known root rows.
func (t *SQLiteTree) ensureRoots(ctx context.Context) error {
	for rootID, nodeID := range rootIDs {
		_, err := t.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO nodes (id, parent_id, kind, title, idx, updated_at)
			 VALUES (?, '', 'folder', ?, 0, ?)`,
			nodeID, rootTitles[rootID], t.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("bookmarks: creating root %q: %w", nodeID, err)
		}
	}

	return nil
}

func (t *SQLiteTree) Roots() map[WellKnownRootID]string { return wellKnownRoots() }

func (t *SQLiteTree) SetNotifier(n Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = n
}

func scanNode(row interface{ Scan(...any) error }) (*Node, error) {
	var n Node
	var kind, updatedAt string

	if err := row.Scan(&n.ID, &n.ParentID, &kind, &n.Title, &n.URL, &n.Index, &updatedAt); err != nil {
		return nil, err
	}

	n.Kind = Kind(kind)
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		n.UpdatedAt = ts
	}

	return &n, nil
}

const nodeColumns = "id, parent_id, kind, title, url, idx, updated_at"

func (t *SQLiteTree) Get(ctx context.Context, id string) (*Node, error) {
	row := t.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting %q: %w", id, ErrNodeNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("bookmarks: getting %q: %w", id, err)
	}

	return n, nil
}

func (t *SQLiteTree) Children(ctx context.Context, parentID string) ([]*Node, error) {
	if _, err := t.Get(ctx, parentID); err != nil {
		return nil, err
	}

	return t.children(ctx, parentID)
}

func (t *SQLiteTree) children(ctx context.Context, parentID string) ([]*Node, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ? ORDER BY idx, id", parentID)
	if err != nil {
		return nil, fmt.Errorf("bookmarks: listing children of %q: %w", parentID, err)
	}
	defer rows.Close()

	var out []*Node

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("bookmarks: scanning child of %q: %w", parentID, err)
		}

		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookmarks: listing children of %q: %w", parentID, err)
	}

	return out, nil
}

func (t *SQLiteTree) Subtree(ctx context.Context, rootID string) ([]*Node, error) {
	root, err := t.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}

	out := []*Node{root}
	queue := []string{rootID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := t.children(ctx, id)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}

	return out, nil
}

func (t *SQLiteTree) Create(ctx context.Context, parentID, title, url string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("creating under %q: %w", parentID, ErrNodeNotFound)
	}

	if parent.Kind != KindFolder {
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
		UpdatedAt: t.now().UTC(),
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bookmarks: beginning create: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx) + 1, 0) FROM nodes WHERE parent_id = ?", parentID,
	).Scan(&n.Index); err != nil {
		return nil, fmt.Errorf("bookmarks: reserving index under %q: %w", parentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (id, parent_id, kind, title, url, idx, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ParentID, string(n.Kind), n.Title, n.URL, n.Index,
		n.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("bookmarks: inserting node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bookmarks: committing create: %w", err)
	}

	if t.notifier != nil {
		t.notifier(TreeEvent{Type: EventCreated, Node: *n})
	}

	return n, nil
}

func (t *SQLiteTree) Update(ctx context.Context, id string, title, url *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if IsRootID(id) {
		return fmt.Errorf("updating %q: %w", id, ErrRootImmutable)
	}

	n, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	if title != nil {
		n.Title = *title
	}

	if url != nil && n.Kind == KindBookmark {
		n.URL = *url
	}

	n.UpdatedAt = t.now().UTC()

	if _, err := t.db.ExecContext(ctx,
		"UPDATE nodes SET title = ?, url = ?, updated_at = ? WHERE id = ?",
		n.Title, n.URL, n.UpdatedAt.Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("bookmarks: updating %q: %w", id, err)
	}

	if t.notifier != nil {
		t.notifier(TreeEvent{Type: EventUpdated, Node: *n})
	}

	return nil
}

func (t *SQLiteTree) Move(ctx context.Context, id, newParentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if IsRootID(id) {
		return fmt.Errorf("moving %q: %w", id, ErrRootImmutable)
	}

	n, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	parent, err := t.Get(ctx, newParentID)
	if err != nil {
		return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrNodeNotFound)
	}

	if parent.Kind != KindFolder {
		return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrNotFolder)
	}

	// Walk up from the new parent; hitting the moved node means a cycle.
	for cur := newParentID; cur != ""; {
		if cur == id {
			return fmt.Errorf("moving %q under %q: %w", id, newParentID, ErrCycle)
		}

		p, err := t.Get(ctx, cur)
		if err != nil {
			break
		}

		cur = p.ParentID
	}

	oldParent := n.ParentID
	n.ParentID = newParentID
	n.UpdatedAt = t.now().UTC()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bookmarks: beginning move: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx) + 1, 0) FROM nodes WHERE parent_id = ?", newParentID,
	).Scan(&n.Index); err != nil {
		return fmt.Errorf("bookmarks: reserving index under %q: %w", newParentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE nodes SET parent_id = ?, idx = ?, updated_at = ? WHERE id = ?",
		n.ParentID, n.Index, n.UpdatedAt.Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("bookmarks: moving %q: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bookmarks: committing move: %w", err)
	}

	if t.notifier != nil {
		t.notifier(TreeEvent{Type: EventMoved, Node: *n, OldParentID: oldParent})
	}

	return nil
}

func (t *SQLiteTree) Remove(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if IsRootID(id) {
		return fmt.Errorf("removing %q: %w", id, ErrRootImmutable)
	}

	n, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	if n.Kind == KindFolder {
		children, err := t.children(ctx, id)
		if err != nil {
			return err
		}

		if len(children) > 0 {
			return fmt.Errorf("removing %q: %w", id, ErrNotEmpty)
		}
	}

	if _, err := t.db.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id); err != nil {
		return fmt.Errorf("bookmarks: removing %q: %w", id, err)
	}

	if t.notifier != nil {
		t.notifier(TreeEvent{Type: EventRemoved, Node: *n})
	}

	return nil
}

func (t *SQLiteTree) RemoveSubtree(ctx context.Context, rootID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if IsRootID(rootID) {
		return fmt.Errorf("removing subtree %q: %w", rootID, ErrRootImmutable)
	}

	ordered, err := t.Subtree(ctx, rootID)
	if err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bookmarks: beginning subtree removal: %w", err)
	}
	defer tx.Rollback()

	for _, n := range ordered {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", n.ID); err != nil {
			return fmt.Errorf("bookmarks: removing %q: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bookmarks: committing subtree removal: %w", err)
	}

	// Children are reported removed before their parents.
	if t.notifier != nil {
		for i := len(ordered) - 1; i >= 0; i-- {
			t.notifier(TreeEvent{Type: EventRemoved, Node: *ordered[i]})
		}
	}

	return nil
}
