package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// ErrStaleSearch is returned when a newer search superseded this one before
// its response arrived; the results must be discarded.
var ErrStaleSearch = errors.New("sync: search superseded")

// Default pull page size and client platform string.
const (
	defaultPullLimit = 200
	platform         = "cli"
)

// RemoteClient is the server surface the engine needs. *api.Client satisfies
// it; tests substitute a mock.
type RemoteClient interface {
	RegisterClient(ctx context.Context, clientID, platform, name string) (*api.RegisterResponse, error)
	Push(ctx context.Context, clientID string, ops []api.PushOperation) (*api.PushResponse, error)
	Pull(ctx context.Context, since int64, limit int) (*api.PullPage, error)
	Ack(ctx context.Context, clientID string, cursor int64) error
	FirstPreflight(ctx context.Context, req *api.FirstSyncRequest) (*api.PreflightResponse, error)
	FirstApply(ctx context.Context, req *api.FirstSyncRequest) (*api.ApplyResponse, error)
	Search(ctx context.Context, query string, limit int) ([]api.SearchItem, error)
}

var _ RemoteClient = (*api.Client)(nil)

// Engine ties the local tree, the state store, and the remote client
// together. It observes tree mutations into the outbox, drains the outbox to
// the server, pulls and applies server events, and runs the first-sync
// reconciliation flows.
//
// Remote changes are applied to the tree under a reentrancy guard so the
// resulting tree events do not echo back into the outbox.
type Engine struct {
	store  Store
	tree   bookmarks.Tree
	remote RemoteClient
	mapper *Mapper
	logger *slog.Logger

	pullLimit int
	now       func() time.Time

	applyDepth atomic.Int64 // reentrancy guard; >0 while applying remote changes
	draining   atomic.Bool  // single-flight gate for Drain
	pulling    atomic.Bool  // single-flight gate for Pull
	searchGen  atomic.Int64 // generation counter; stale search results are discarded

	kick chan struct{} // wakes the watch loop after an enqueue
}

// NewEngine builds an engine and installs it as the tree's notifier.
func NewEngine(store Store, tree bookmarks.Tree, remote RemoteClient, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:     store,
		tree:      tree,
		remote:    remote,
		mapper:    NewMapper(store),
		logger:    logger,
		pullLimit: defaultPullLimit,
		now:       time.Now,
		kick:      make(chan struct{}, 1),
	}

	tree.SetNotifier(e.HandleTreeEvent)

	return e
}

// SetPullLimit overrides the pull page size. Non-positive values keep the
// current limit.
func (e *Engine) SetPullLimit(limit int) {
	if limit > 0 {
		e.pullLimit = limit
	}
}

// beginApply raises the reentrancy guard. Always pair with endApply.
func (e *Engine) beginApply() { e.applyDepth.Add(1) }
func (e *Engine) endApply()   { e.applyDepth.Add(-1) }

// applying reports whether a remote change is being applied to the tree.
func (e *Engine) applying() bool { return e.applyDepth.Load() > 0 }

// ready verifies the gate for normal sync traffic: configured, enabled, and
// first sync completed. Returns the settings on success.
func (e *Engine) ready(ctx context.Context) (Settings, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}

	if !settings.Configured() {
		return Settings{}, ErrNotConfigured
	}

	if !settings.Enabled {
		return Settings{}, ErrSyncDisabled
	}

	meta, err := e.store.Meta(ctx)
	if err != nil {
		return Settings{}, err
	}

	if !meta.Initialized {
		return Settings{}, ErrNotInitialized
	}

	return settings, nil
}

// HandleTreeEvent turns a local tree mutation into an outbox operation. It
// ignores events raised while remote changes are being applied, and events
// that arrive before sync is ready.
func (e *Engine) HandleTreeEvent(ev bookmarks.TreeEvent) {
	if e.applying() {
		return
	}

	ctx := context.Background()

	if _, err := e.ready(ctx); err != nil {
		return
	}

	op, err := e.operationFor(ctx, ev)
	if err != nil {
		e.logger.Error("dropping tree event", slog.String("error", err.Error()))
		return
	}

	if op == nil {
		return
	}

	if err := e.store.Enqueue(ctx, op); err != nil {
		e.logger.Error("enqueueing operation",
			slog.String("op", string(op.Op)),
			slog.String("local_id", op.LocalID),
			slog.String("error", err.Error()),
		)

		return
	}

	e.logger.Debug("enqueued operation",
		slog.String("entity", string(op.Entity)),
		slog.String("op", string(op.Op)),
		slog.String("local_id", op.LocalID),
		slog.Int64("seq", op.Seq),
	)

	// Wake the watch loop if one is running.
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// operationFor builds the outbox operation for a tree event. Returns nil
// when nothing needs to sync (deleting a node the server never saw).
func (e *Engine) operationFor(ctx context.Context, ev bookmarks.TreeEvent) (*Operation, error) {
	entity := EntityBookmark
	if ev.Node.IsFolder() {
		entity = EntityFolder
	}

	op := &Operation{
		OpID:    uuid.NewString(),
		Entity:  entity,
		LocalID: ev.Node.ID,
		Payload: OpPayload{
			Title:         ev.Node.Title,
			URL:           ev.Node.URL,
			ParentLocalID: ev.Node.ParentID,
			UpdatedAt:     ev.Node.UpdatedAt,
		},
	}

	switch ev.Type {
	case bookmarks.EventCreated:
		op.Op = OpCreate
	case bookmarks.EventUpdated, bookmarks.EventMoved:
		op.Op = OpUpdate
	case bookmarks.EventRemoved:
		op.Op = OpDelete

		// Capture the server id before the eager unmap; the drain needs it
		// after the mapping is gone.
		serverID, mapped, err := e.store.ServerIDFor(ctx, entity, ev.Node.ID)
		if err != nil {
			return nil, err
		}

		op.ServerID = serverID

		if mapped {
			if err := e.store.UnmapEntity(ctx, entity, ev.Node.ID); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("sync: unknown tree event type %q", ev.Type)
	}

	return op, nil
}

// Drain pushes queued operations to the server one at a time, oldest first.
// A failed push leaves the operation at the head and aborts the pass; it
// retries on the next drain. Only one drain runs at a time.
func (e *Engine) Drain(ctx context.Context) error {
	settings, err := e.ready(ctx)
	if err != nil {
		return err
	}

	if !e.draining.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.draining.Store(false)

	for {
		op, ok, err := e.store.PeekOutbox(ctx)
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		if err := e.pushOne(ctx, settings, op); err != nil {
			e.recordError(ctx, err)
			return fmt.Errorf("sync: draining outbox at seq %d: %w", op.Seq, err)
		}
	}
}

// pushOne sends a single outbox operation and settles it according to the
// server's per-operation result.
func (e *Engine) pushOne(ctx context.Context, settings Settings, op *Operation) error {
	wireOp, drop, err := e.wireOperation(ctx, op)
	if err != nil {
		return err
	}

	if drop {
		// Deleting a node the server never saw; nothing to push.
		e.logger.Debug("dropping unsynced delete", slog.String("local_id", op.LocalID))
		return e.store.PopOutbox(ctx, op.Seq)
	}

	resp, err := e.remote.Push(ctx, settings.ClientID, []api.PushOperation{*wireOp})
	if err != nil {
		return err
	}

	result := resp.Results[0]

	switch result.Status {
	case api.StatusCreated, api.StatusExists, api.StatusRestored:
		serverID := result.BookmarkID
		if op.Entity == EntityFolder {
			serverID = result.FolderID
		}

		if serverID == 0 {
			return fmt.Errorf("sync: push result %q carried no server id", result.Status)
		}

		if err := e.store.BindAndPop(ctx, op, serverID); err != nil {
			return err
		}
	case api.StatusUpdated, api.StatusDeleted, api.StatusSkipped:
		if err := e.store.PopOutbox(ctx, op.Seq); err != nil {
			return err
		}
	default:
		return fmt.Errorf("sync: unknown push result status %q", result.Status)
	}

	return e.advanceCursor(ctx, resp.Cursor, false)
}

// wireOperation resolves an outbox entry into its wire form. Parent and
// entity ids resolve against the identity map at this point, so mappings
// bound earlier in the same drain pass are visible. drop=true means the
// operation has no server-side effect and should be discarded.
func (e *Engine) wireOperation(ctx context.Context, op *Operation) (*api.PushOperation, bool, error) {
	out := &api.PushOperation{OpID: op.OpID}

	serverID := op.ServerID
	if serverID == 0 {
		id, _, err := e.store.ServerIDFor(ctx, op.Entity, op.LocalID)
		if err != nil {
			return nil, false, err
		}

		serverID = id
	}

	switch {
	case op.Entity == EntityBookmark && op.Op == OpCreate,
		op.Entity == EntityBookmark && op.Op == OpUpdate:
		out.EntityType = api.EntityBookmark
		out.ID = serverID

		// An update for a bookmark the server has no id for is sent as a
		// create; the server de-duplicates by URL and answers "exists".
		out.Op = api.OpCreate
		if op.Op == OpUpdate && serverID != 0 {
			out.Op = api.OpUpdate
		}

		folderID, err := e.parentServerID(ctx, op.Payload.ParentLocalID)
		if err != nil {
			return nil, false, err
		}

		out.Bookmark = &api.BookmarkPayload{
			ID:        serverID,
			URL:       op.Payload.URL,
			Title:     op.Payload.Title,
			FolderID:  folderID,
			UpdatedAt: wireTime(op.Payload.UpdatedAt),
		}
	case op.Entity == EntityFolder && op.Op == OpCreate,
		op.Entity == EntityFolder && op.Op == OpUpdate:
		out.EntityType = api.EntityFolder
		out.ID = serverID

		out.Op = api.OpCreate
		if op.Op == OpUpdate && serverID != 0 {
			out.Op = api.OpUpdate
		}

		parentID, err := e.parentServerID(ctx, op.Payload.ParentLocalID)
		if err != nil {
			return nil, false, err
		}

		out.Folder = &api.FolderPayload{
			ID:        serverID,
			Name:      op.Payload.Title,
			ParentID:  parentID,
			UpdatedAt: wireTime(op.Payload.UpdatedAt),
		}
	case op.Op == OpDelete:
		if serverID == 0 {
			return nil, true, nil
		}

		out.Op = api.OpDelete
		out.ID = serverID

		switch op.Entity {
		case EntityBookmark:
			out.EntityType = api.EntityBookmark
		case EntityFolder:
			out.EntityType = api.EntityFolder
		default:
			return nil, false, fmt.Errorf("sync: unknown entity type %q", op.Entity)
		}
	default:
		return nil, false, fmt.Errorf("sync: unknown operation %s/%s", op.Entity, op.Op)
	}

	return out, false, nil
}

// parentServerID maps a local parent folder id to its server id. Well-known
// roots and unmapped parents resolve to nil, the server root.
func (e *Engine) parentServerID(ctx context.Context, parentLocalID string) (*int64, error) {
	if parentLocalID == "" || bookmarks.IsRootID(parentLocalID) {
		return nil, nil
	}

	serverID, mapped, err := e.store.ServerIDFor(ctx, EntityFolder, parentLocalID)
	if err != nil {
		return nil, err
	}

	if !mapped {
		return nil, nil
	}

	return &serverID, nil
}

// advanceCursor persists max(cursor, current). The cursor never moves
// backwards. touch also refreshes LastSyncAt.
func (e *Engine) advanceCursor(ctx context.Context, cursor int64, touch bool) error {
	meta, err := e.store.Meta(ctx)
	if err != nil {
		return err
	}

	if cursor > meta.Cursor {
		meta.Cursor = cursor
	}

	if touch {
		meta.LastSyncAt = e.now().UTC()
	}

	meta.LastError = ""

	return e.store.SaveMeta(ctx, meta)
}

// recordError persists the failure message for status reporting.
func (e *Engine) recordError(ctx context.Context, cause error) {
	meta, err := e.store.Meta(ctx)
	if err != nil {
		e.logger.Error("reading meta to record error", slog.String("error", err.Error()))
		return
	}

	meta.LastError = cause.Error()

	if err := e.store.SaveMeta(ctx, meta); err != nil {
		e.logger.Error("recording sync error", slog.String("error", err.Error()))
	}
}

// SyncCycle runs one full drain-then-pull pass. Concurrent triggers of the
// inner phases are benign no-ops.
func (e *Engine) SyncCycle(ctx context.Context) error {
	if err := e.Drain(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		return err
	}

	if err := e.Pull(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		return err
	}

	return nil
}

// Watch runs sync continuously: a full cycle at every poll interval, plus an
// immediate drain whenever a local mutation lands in the outbox. Returns
// when ctx is canceled.
func (e *Engine) Watch(ctx context.Context) error {
	settings, err := e.ready(ctx)
	if err != nil {
		return err
	}

	interval := time.Duration(settings.PollIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	e.logger.Info("watch started", slog.Duration("interval", interval))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// One cycle up front so a fresh watch converges immediately.
		if err := e.SyncCycle(ctx); err != nil {
			e.logger.Warn("sync cycle failed", slog.String("error", err.Error()))
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := e.SyncCycle(ctx); err != nil {
					e.logger.Warn("sync cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.kick:
				if err := e.Drain(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
					e.logger.Warn("drain failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// Status summarizes the engine's durable state for display.
type Status struct {
	Configured     bool
	Enabled        bool
	Initialized    bool
	Cursor         int64
	Pending        int
	LastSyncAt     time.Time
	LastError      string
	LastNoOpReason string
}

// Status reports the current sync state without touching the network.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	meta, err := e.store.Meta(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := e.store.OutboxLen(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Configured:     settings.Configured(),
		Enabled:        settings.Enabled,
		Initialized:    meta.Initialized,
		Cursor:         meta.Cursor,
		Pending:        pending,
		LastSyncAt:     meta.LastSyncAt,
		LastError:      meta.LastError,
		LastNoOpReason: meta.LastNoOpReason,
	}, nil
}

// Register ensures this client has an id and announces it to the server.
// The local cursor is authoritative and is not adopted from the server.
func (e *Engine) Register(ctx context.Context, name string) (*api.RegisterResponse, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	if settings.ClientID == "" {
		settings.ClientID = uuid.NewString()
		if err := e.store.SaveSettings(ctx, settings); err != nil {
			return nil, err
		}
	}

	resp, err := e.remote.RegisterClient(ctx, settings.ClientID, platform, name)
	if err != nil {
		return nil, fmt.Errorf("sync: registering client: %w", err)
	}

	return resp, nil
}

// Search runs a server-side search. A search started later invalidates
// earlier in-flight ones; superseded calls return ErrStaleSearch.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]api.SearchItem, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	gen := e.searchGen.Add(1)

	results, err := e.remote.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if e.searchGen.Load() != gen {
		return nil, ErrStaleSearch
	}

	return results, nil
}

// Reset clears all sync state: identity map, outbox, cursor, initialized
// flag. The local tree is untouched. Sync is left disabled.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.Reset(ctx)
}

// wireTime formats a timestamp for the wire; zero times are omitted.
func wireTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
