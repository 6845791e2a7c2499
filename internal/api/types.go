package api

import "encoding/json"

// Entity type and operation strings as they appear on the wire.
const (
	EntityBookmark = "bookmark"
	EntityFolder   = "folder"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Push result statuses returned by the server per operation.
const (
	StatusCreated  = "created"
	StatusExists   = "exists"
	StatusRestored = "restored"
	StatusUpdated  = "updated"
	StatusDeleted  = "deleted"
	StatusSkipped  = "skipped"
)

// Pull event actions. "restore" is applied as an upsert; "purge" is a hard
// delete of an already-recycled bookmark.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRestore = "restore"
	ActionPurge   = "purge"
)

// First-sync modes accepted by the preflight and apply endpoints.
const (
	ModeReplaceLocal  = "replace_local_with_server"
	ModeReplaceServer = "replace_server_with_local"
	ModeTwoWayMerge   = "two_way_merge"
)

// First-sync apply statuses.
const (
	ApplyStatusSnapshot = "snapshot"
	ApplyStatusMerged   = "merged"
	ApplyStatusNoOp     = "no_op"
)

// BookmarkPayload is the bookmark entity shape used in push operations and
// pull event payloads. Server ids are integers; zero means "not assigned".
type BookmarkPayload struct {
	ID        int64    `json:"id,omitempty"`
	URL       string   `json:"url,omitempty"`
	Title     string   `json:"title,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	FolderID  *int64   `json:"folder_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	DeletedAt *string  `json:"deleted_at,omitempty"`
}

// FolderPayload is the folder entity shape used in push operations and pull
// event payloads. A nil ParentID means the folder sits at the server root.
type FolderPayload struct {
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// PushOperation is a single queued local mutation on the wire. Exactly one
// of Bookmark or Folder is set, matching EntityType. The server de-duplicates
// replayed operations by OpID.
type PushOperation struct {
	OpID       string           `json:"op_id"`
	EntityType string           `json:"entity_type"`
	Op         string           `json:"op"`
	ID         int64            `json:"id,omitempty"`
	Bookmark   *BookmarkPayload `json:"bookmark,omitempty"`
	Folder     *FolderPayload   `json:"folder,omitempty"`
}

// PushResult is one per-operation outcome from a push call. BookmarkID or
// FolderID is populated for statuses that bind a server identity
// (created/exists/restored).
type PushResult struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	BookmarkID int64  `json:"bookmark_id,omitempty"`
	FolderID   int64  `json:"folder_id,omitempty"`
}

// PushResponse is the envelope returned by POST /sync/push.
type PushResponse struct {
	Status  string       `json:"status"`
	Results []PushResult `json:"results"`
	Cursor  int64        `json:"cursor"`
}

// Event is one server-side change record returned by GET /sync/pull.
// Payload is decoded lazily by entity type.
type Event struct {
	Cursor     int64           `json:"cursor"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  string          `json:"created_at"`
}

// PullPage is one page of server change events.
type PullPage struct {
	Events  []Event `json:"events"`
	Cursor  int64   `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// RegisteredClient describes this client as known to the server.
type RegisteredClient struct {
	ClientID   string `json:"client_id"`
	Platform   string `json:"platform"`
	LastCursor int64  `json:"last_cursor"`
}

// RegisterResponse is the envelope returned by POST /sync/register-client.
type RegisterResponse struct {
	Status string           `json:"status"`
	Client RegisteredClient `json:"client"`
}

// LocalFolder is one folder row of the local tree snapshot sent to the
// first-sync endpoints. Ids are local (client-side) identifiers.
type LocalFolder struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Title    string `json:"title"`
}

// LocalBookmark is one bookmark row of the local tree snapshot. FolderPath is
// the root-relative title chain, used by the server to materialize folders
// when FolderLocalID cannot be resolved.
type LocalBookmark struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	Title         string   `json:"title,omitempty"`
	FolderLocalID string   `json:"folder_local_id,omitempty"`
	FolderPath    []string `json:"folder_path,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// FirstSyncRequest is the shared request body for the first-sync preflight
// and apply endpoints. The confirmation fields are only used by apply.
type FirstSyncRequest struct {
	ClientID          string          `json:"client_id"`
	Platform          string          `json:"platform,omitempty"`
	Mode              string          `json:"mode"`
	ConfirmationToken string          `json:"confirmation_token,omitempty"`
	TypedPhrase       string          `json:"typed_phrase,omitempty"`
	ConfirmChecked    bool            `json:"confirm_checked,omitempty"`
	LocalFolders      []LocalFolder   `json:"local_folders"`
	LocalBookmarks    []LocalBookmark `json:"local_bookmarks"`
}

// Impact summarizes the estimated effect of a first-sync mode on each side.
type Impact struct {
	LocalAdditions  int `json:"local_additions"`
	LocalDeletions  int `json:"local_deletions"`
	ServerAdditions int `json:"server_additions"`
	ServerDeletions int `json:"server_deletions"`
	Matched         int `json:"matched,omitempty"`
}

// SampleRemoval is one entry of the preflight's removal preview.
type SampleRemoval struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PreflightResponse is the envelope returned by POST /sync/first/preflight.
// No state is mutated by preflight; the confirmation token is single-use
// and expires after ConfirmationTTLSeconds.
type PreflightResponse struct {
	Mode                   string          `json:"mode"`
	Warning                string          `json:"warning"`
	RequiredPhrase         string          `json:"required_phrase"`
	LocalBookmarkCount     int             `json:"local_bookmark_count"`
	ServerBookmarkCount    int             `json:"server_bookmark_count"`
	Impact                 Impact          `json:"impact"`
	WouldNoOp              bool            `json:"would_noop"`
	NoOpReason             string          `json:"no_op_reason,omitempty"`
	SampleLocalRemovals    []SampleRemoval `json:"sample_local_removals,omitempty"`
	ConfirmationToken      string          `json:"confirmation_token"`
	ConfirmationTTLSeconds int             `json:"confirmation_ttl_seconds"`
}

// Mapping carries the identity tables computed server-side during first sync.
// Keys are local ids, values are server ids.
type Mapping struct {
	Folders   map[string]int64 `json:"local_folder_id_to_server_id"`
	Bookmarks map[string]int64 `json:"local_bookmark_id_to_server_id"`
}

// ApplyResponse is the envelope returned by POST /sync/first/apply. For
// non-no_op results, Folders and Bookmarks hold the complete post-apply
// server snapshot the client materializes or merges from.
type ApplyResponse struct {
	Status              string            `json:"status"`
	Mode                string            `json:"mode"`
	Reason              string            `json:"reason,omitempty"`
	Cursor              int64             `json:"cursor"`
	Mapping             Mapping           `json:"mapping"`
	Folders             []FolderPayload   `json:"folders"`
	Bookmarks           []BookmarkPayload `json:"bookmarks"`
	LocalBookmarkCount  int               `json:"local_bookmark_count,omitempty"`
	ServerBookmarkCount int               `json:"server_bookmark_count,omitempty"`
}

// SearchItem is one ranked bookmark returned by GET /search.
type SearchItem struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	Score        float64  `json:"score"`
	MatchReasons []string `json:"match_reasons,omitempty"`
}
