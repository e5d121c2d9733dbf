package downloader

import (
	"context"
	"errors"

	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloadcfg"
)

// ErrNotFound is returned when the downloader cannot locate a download by ID.
var ErrNotFound = errors.New("downloader not found")

// Downloader defines the operations required to manage a download's lifecycle.
//
// Start returns as soon as the task is registered; the transfer runs in the
// background. Resume, Pause and Cancel report whether they acted and never
// block on transfer progress.
type Downloader interface {
	Start(ctx context.Context, url string, opts downloadcfg.StartOptions) (*data.Download, error)
	Resume(ctx context.Context, d *data.Download, opts downloadcfg.StartOptions) bool
	Pause(ctx context.Context, d *data.Download) bool
	Cancel(ctx context.Context, d *data.Download) bool
	// Purge removes the output file and any engine state for the download.
	// Implementations should best-effort cancel any active transfer and then
	// delete associated data. It must be idempotent.
	Purge(ctx context.Context, d *data.Download) error
	// Forget drops the download from the engine. The output file is kept.
	Forget(ctx context.Context, d *data.Download)
}

// ProgressSource is implemented by downloaders that can stream live progress
// for a single download.
type ProgressSource interface {
	// Subscribe yields the latest progress first and then every later update
	// until ctx ends. Intermediate values may be skipped for slow readers.
	Subscribe(ctx context.Context, id string) (<-chan data.Progress, bool)
}

// Snapshotter is implemented by downloaders that hold live state which may
// be newer than the stored record.
type Snapshotter interface {
	Snapshot(id string) (*data.Download, bool)
}
