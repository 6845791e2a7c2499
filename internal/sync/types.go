// Package sync implements the client side of LinkLoom bookmark
// synchronization: the durable identity map between local node ids and
// server ids, the outbox of pending local operations, cursor-based pull of
// server events, and the guarded first-sync reconciliation flows.
package sync

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for engine preconditions. Use errors.Is to check.
var (
	// ErrNotConfigured means no server URL or API token is set.
	ErrNotConfigured = errors.New("sync: not configured")

	// ErrNotInitialized means first sync has not completed yet.
	ErrNotInitialized = errors.New("sync: first sync has not been run")

	// ErrSyncDisabled means the user has switched syncing off.
	ErrSyncDisabled = errors.New("sync: disabled")

	// ErrSyncInProgress is the benign outcome of triggering a drain or pull
	// while one is already running. Callers should treat it as a no-op.
	ErrSyncInProgress = errors.New("sync: already in progress")
)

// ConfirmationError reports a rejected first-sync confirmation: wrong typed
// phrase, missing checkbox, or unknown mode. Nothing has been mutated when
// it is returned.
type ConfirmationError struct {
	Mode   string
	Reason string
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("sync: first-sync confirmation rejected for mode %q: %s", e.Mode, e.Reason)
}

// EntityType tags an operation or mapping as bookmark or folder.
type EntityType string

const (
	EntityBookmark EntityType = "bookmark"
	EntityFolder   EntityType = "folder"
)

// OpType is the kind of local mutation queued in the outbox.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// OpPayload is the local-view data captured when an operation is enqueued.
// Parent references are LOCAL ids; they resolve to server ids at drain time
// so creates bound earlier in the same drain pass are visible.
type OpPayload struct {
	Title         string    `json:"title,omitempty"`
	URL           string    `json:"url,omitempty"`
	ParentLocalID string    `json:"parent_local_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// Operation is one queued outbox entry. Seq orders the FIFO; OpID makes
// server-side replay idempotent. ServerID is only set at enqueue time for
// deletes, which must capture the mapping before it is eagerly removed.
type Operation struct {
	Seq      int64
	OpID     string
	Entity   EntityType
	Op       OpType
	LocalID  string
	ServerID int64
	Payload  OpPayload
}

// Settings are the durable sync options persisted in the state store.
type Settings struct {
	ServerURL           string
	APIToken            string
	ClientID            string
	PollIntervalMinutes int
	Enabled             bool
}

// Configured reports whether the settings identify a reachable server.
func (s Settings) Configured() bool {
	return s.ServerURL != "" && s.APIToken != ""
}

// Meta is the durable per-client sync progress record. Cursor is monotonic
// non-decreasing and client-owned.
type Meta struct {
	Initialized    bool
	Cursor         int64
	LastSyncAt     time.Time
	LastError      string
	LastNoOpReason string
}
