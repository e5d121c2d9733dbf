package repo

import (
	"context"

	"github.com/tinoosan/quip/internal/data"
)

type DownloadRepo interface {
	DownloadReader
	DownloadWriter
	DownloadWatcher
}

type DownloadReader interface {
	List(ctx context.Context) (data.Downloads, error)
	Get(ctx context.Context, id string) (*data.Download, error)
}

type DownloadWriter interface {
	// Create inserts d and returns data.ErrConflict if the ID is taken.
	Create(ctx context.Context, d *data.Download) error
	// Upsert inserts d or replaces the stored row with the same ID.
	Upsert(ctx context.Context, d *data.Download) error
	Delete(ctx context.Context, id string) error
}

// DownloadWatcher exposes the task list as a live sequence: the current list
// first, then a fresh list after every write. Readers that fall behind only
// see the newest list.
type DownloadWatcher interface {
	Watch(ctx context.Context) (<-chan data.Downloads, error)
}

// Pinger is implemented by repositories backed by an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}
