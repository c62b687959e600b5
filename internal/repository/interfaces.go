package repository

import "context"

// Saver persists a DataDocument.
type Saver interface {
	Save(ctx context.Context, doc *DataDocument) error
}

// Repository abstracts persistence and watching of the screens file.
type Repository interface {
	Saver
	Load(ctx context.Context) (*DataDocument, error)
	StartWatcher(ctx context.Context, cacheStore CacheStore) error
}

// CacheStore is what the watcher needs from the in-memory store to decide
// whether a changed file should replace it.
type CacheStore interface {
	GetLastUpdate() int64
	NeedsPersist() bool
	DocumentSnapshot() (DataDocument, error)
	Replace(doc DataDocument) error
}
