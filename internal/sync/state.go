package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Store is the durable sync state: settings, progress meta, the identity
// map, and the outbox FIFO. Implemented by StateStore; the engine depends
// only on this interface.
type Store interface {
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	Meta(ctx context.Context) (Meta, error)
	SaveMeta(ctx context.Context, m Meta) error

	// MapEntity binds localID to serverID, evicting any stale row that
	// holds either side of the pair.
	MapEntity(ctx context.Context, entity EntityType, localID string, serverID int64) error

	// UnmapEntity removes the binding for localID. Unmapping an unknown id
	// is not an error.
	UnmapEntity(ctx context.Context, entity EntityType, localID string) error

	// ServerIDFor and LocalIDFor look up one direction of the map. The bool
	// reports whether a binding exists.
	ServerIDFor(ctx context.Context, entity EntityType, localID string) (int64, bool, error)
	LocalIDFor(ctx context.Context, entity EntityType, serverID int64) (string, bool, error)

	ClearMappings(ctx context.Context) error

	// ReplaceMappings atomically swaps the whole identity map for the
	// tables returned by a first-sync apply.
	ReplaceMappings(ctx context.Context, folders, bookmarks map[string]int64) error

	// Enqueue appends op to the outbox and fills in its Seq.
	Enqueue(ctx context.Context, op *Operation) error

	// PeekOutbox returns the head of the FIFO without removing it.
	PeekOutbox(ctx context.Context) (*Operation, bool, error)

	// PopOutbox removes the entry with the given seq.
	PopOutbox(ctx context.Context, seq int64) error

	// BindAndPop removes op from the outbox and binds op.LocalID to
	// serverID in one transaction, so a create is never acknowledged
	// without its mapping being durable.
	BindAndPop(ctx context.Context, op *Operation, serverID int64) error

	OutboxLen(ctx context.Context) (int, error)

	// Reset clears mappings, outbox, and progress meta, and disables sync.
	// Settings other than Enabled are preserved.
	Reset(ctx context.Context) error

	Close() error
}

// StateStore implements Store on an embedded SQLite database with WAL mode.
type StateStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*StateStore)(nil)

// NewStateStore opens the state database at dbPath, applying migrations.
// Use ":memory:" for tests.
func NewStateStore(ctx context.Context, dbPath string, logger *slog.Logger) (*StateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sync: opening state database: %w", err)
	}

	// Sole-writer pattern; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sync: setting pragma: %w", err)
		}
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sync state database ready", slog.String("path", dbPath))

	return &StateStore{db: db, logger: logger}, nil
}

func (s *StateStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sync: closing state database: %w", err)
	}

	return nil
}

func (s *StateStore) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	var enabled int

	err := s.db.QueryRowContext(ctx,
		`SELECT server_url, api_token, client_id, poll_interval_minutes, enabled
		 FROM settings WHERE id = 1`,
	).Scan(&out.ServerURL, &out.APIToken, &out.ClientID, &out.PollIntervalMinutes, &enabled)
	if err != nil {
		return Settings{}, fmt.Errorf("sync: reading settings: %w", err)
	}

	out.Enabled = enabled != 0

	return out, nil
}

func (s *StateStore) SaveSettings(ctx context.Context, st Settings) error {
	enabled := 0
	if st.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE settings
		 SET server_url = ?, api_token = ?, client_id = ?,
		     poll_interval_minutes = ?, enabled = ?
		 WHERE id = 1`,
		st.ServerURL, st.APIToken, st.ClientID, st.PollIntervalMinutes, enabled)
	if err != nil {
		return fmt.Errorf("sync: saving settings: %w", err)
	}

	return nil
}

func (s *StateStore) Meta(ctx context.Context) (Meta, error) {
	var out Meta
	var initialized int
	var lastSyncAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT initialized, cursor, last_sync_at, last_error, last_no_op_reason
		 FROM sync_meta WHERE id = 1`,
	).Scan(&initialized, &out.Cursor, &lastSyncAt, &out.LastError, &out.LastNoOpReason)
	if err != nil {
		return Meta{}, fmt.Errorf("sync: reading meta: %w", err)
	}

	out.Initialized = initialized != 0

	if lastSyncAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, lastSyncAt); err == nil {
			out.LastSyncAt = ts
		}
	}

	return out, nil
}

func (s *StateStore) SaveMeta(ctx context.Context, m Meta) error {
	initialized := 0
	if m.Initialized {
		initialized = 1
	}

	lastSyncAt := ""
	if !m.LastSyncAt.IsZero() {
		lastSyncAt = m.LastSyncAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_meta
		 SET initialized = ?, cursor = ?, last_sync_at = ?, last_error = ?,
		     last_no_op_reason = ?
		 WHERE id = 1`,
		initialized, m.Cursor, lastSyncAt, m.LastError, m.LastNoOpReason)
	if err != nil {
		return fmt.Errorf("sync: saving meta: %w", err)
	}

	return nil
}

// bindMapping inserts the pair after deleting any row holding either side.
func bindMapping(ctx context.Context, tx *sql.Tx, entity EntityType, localID string, serverID int64) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM id_map WHERE entity_type = ? AND (local_id = ? OR server_id = ?)",
		string(entity), localID, serverID); err != nil {
		return fmt.Errorf("sync: evicting stale mapping: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO id_map (entity_type, local_id, server_id) VALUES (?, ?, ?)",
		string(entity), localID, serverID); err != nil {
		return fmt.Errorf("sync: inserting mapping: %w", err)
	}

	return nil
}

func (s *StateStore) MapEntity(ctx context.Context, entity EntityType, localID string, serverID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning mapping bind: %w", err)
	}
	defer tx.Rollback()

	if err := bindMapping(ctx, tx, entity, localID, serverID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing mapping bind: %w", err)
	}

	return nil
}

func (s *StateStore) UnmapEntity(ctx context.Context, entity EntityType, localID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM id_map WHERE entity_type = ? AND local_id = ?",
		string(entity), localID)
	if err != nil {
		return fmt.Errorf("sync: unmapping %s %q: %w", entity, localID, err)
	}

	return nil
}

func (s *StateStore) ServerIDFor(ctx context.Context, entity EntityType, localID string) (int64, bool, error) {
	var serverID int64

	err := s.db.QueryRowContext(ctx,
		"SELECT server_id FROM id_map WHERE entity_type = ? AND local_id = ?",
		string(entity), localID).Scan(&serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("sync: looking up server id for %s %q: %w", entity, localID, err)
	}

	return serverID, true, nil
}

func (s *StateStore) LocalIDFor(ctx context.Context, entity EntityType, serverID int64) (string, bool, error) {
	var localID string

	err := s.db.QueryRowContext(ctx,
		"SELECT local_id FROM id_map WHERE entity_type = ? AND server_id = ?",
		string(entity), serverID).Scan(&localID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("sync: looking up local id for %s %d: %w", entity, serverID, err)
	}

	return localID, true, nil
}

func (s *StateStore) ClearMappings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM id_map"); err != nil {
		return fmt.Errorf("sync: clearing mappings: %w", err)
	}

	return nil
}

func (s *StateStore) ReplaceMappings(ctx context.Context, folders, bookmarks map[string]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning mapping replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM id_map"); err != nil {
		return fmt.Errorf("sync: clearing mappings: %w", err)
	}

	insert := func(entity EntityType, table map[string]int64) error {
		for localID, serverID := range table {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO id_map (entity_type, local_id, server_id) VALUES (?, ?, ?)",
				string(entity), localID, serverID); err != nil {
				return fmt.Errorf("sync: inserting %s mapping %q: %w", entity, localID, err)
			}
		}

		return nil
	}

	if err := insert(EntityFolder, folders); err != nil {
		return err
	}

	if err := insert(EntityBookmark, bookmarks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing mapping replace: %w", err)
	}

	return nil
}

func (s *StateStore) Enqueue(ctx context.Context, op *Operation) error {
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return fmt.Errorf("sync: encoding outbox payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (op_id, entity_type, op, local_id, server_id, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		op.OpID, string(op.Entity), string(op.Op), op.LocalID, op.ServerID, string(payload))
	if err != nil {
		return fmt.Errorf("sync: enqueueing %s %s %q: %w", op.Op, op.Entity, op.LocalID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sync: reading outbox seq: %w", err)
	}

	op.Seq = seq

	return nil
}

func (s *StateStore) PeekOutbox(ctx context.Context) (*Operation, bool, error) {
	var op Operation
	var entity, opType, payload string

	err := s.db.QueryRowContext(ctx,
		`SELECT seq, op_id, entity_type, op, local_id, server_id, payload
		 FROM outbox ORDER BY seq LIMIT 1`,
	).Scan(&op.Seq, &op.OpID, &entity, &opType, &op.LocalID, &op.ServerID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("sync: peeking outbox: %w", err)
	}

	op.Entity = EntityType(entity)
	op.Op = OpType(opType)

	if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
		return nil, false, fmt.Errorf("sync: decoding outbox payload for %q: %w", op.OpID, err)
	}

	return &op, true, nil
}

func (s *StateStore) PopOutbox(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("sync: popping outbox seq %d: %w", seq, err)
	}

	return nil
}

func (s *StateStore) BindAndPop(ctx context.Context, op *Operation, serverID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning bind-and-pop: %w", err)
	}
	defer tx.Rollback()

	if err := bindMapping(ctx, tx, op.Entity, op.LocalID, serverID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM outbox WHERE seq = ?", op.Seq); err != nil {
		return fmt.Errorf("sync: popping outbox seq %d: %w", op.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing bind-and-pop: %w", err)
	}

	return nil
}

func (s *StateStore) OutboxLen(ctx context.Context) (int, error) {
	var n int

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n); err != nil {
		return 0, fmt.Errorf("sync: counting outbox: %w", err)
	}

	return n, nil
}

func (s *StateStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning reset: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM id_map",
		"DELETE FROM outbox",
		`UPDATE sync_meta SET initialized = 0, cursor = 0, last_sync_at = '',
		 last_error = '', last_no_op_reason = '' WHERE id = 1`,
		"UPDATE settings SET enabled = 0 WHERE id = 1",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sync: resetting state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing reset: %w", err)
	}

	s.logger.Info("sync state reset")

	return nil
}
