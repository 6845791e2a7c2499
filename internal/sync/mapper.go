package sync

import "context"

// Mapper is the identity map between local node ids and server ids, one
// namespace per entity type. Binding an already-used id on either side
// overwrites the stale pair; unmapping an unknown id is a no-op.
type Mapper struct {
	store Store
}

// NewMapper wraps the store's identity tables.
func NewMapper(store Store) *Mapper {
	return &Mapper{store: store}
}

func (m *Mapper) MapBookmark(ctx context.Context, localID string, serverID int64) error {
	return m.store.MapEntity(ctx, EntityBookmark, localID, serverID)
}

func (m *Mapper) UnmapBookmark(ctx context.Context, localID string) error {
	return m.store.UnmapEntity(ctx, EntityBookmark, localID)
}

func (m *Mapper) MapFolder(ctx context.Context, localID string, serverID int64) error {
	return m.store.MapEntity(ctx, EntityFolder, localID, serverID)
}

func (m *Mapper) UnmapFolder(ctx context.Context, localID string) error {
	return m.store.UnmapEntity(ctx, EntityFolder, localID)
}

func (m *Mapper) ServerBookmarkID(ctx context.Context, localID string) (int64, bool, error) {
	return m.store.ServerIDFor(ctx, EntityBookmark, localID)
}

func (m *Mapper) LocalBookmarkID(ctx context.Context, serverID int64) (string, bool, error) {
	return m.store.LocalIDFor(ctx, EntityBookmark, serverID)
}

func (m *Mapper) ServerFolderID(ctx context.Context, localID string) (int64, bool, error) {
	return m.store.ServerIDFor(ctx, EntityFolder, localID)
}

func (m *Mapper) LocalFolderID(ctx context.Context, serverID int64) (string, bool, error) {
	return m.store.LocalIDFor(ctx, EntityFolder, serverID)
}
