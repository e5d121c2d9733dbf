package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloadcfg"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/repo"
)

// DesiredStatus is what a client asks a download to become.
type DesiredStatus string

const (
	DesiredActive    DesiredStatus = "Active"
	DesiredPaused    DesiredStatus = "Paused"
	DesiredCancelled DesiredStatus = "Cancelled"
)

var AllowedStatuses = map[DesiredStatus]bool{
	DesiredActive:    true,
	DesiredPaused:    true,
	DesiredCancelled: true,
}

// AddRequest describes a new download.
type AddRequest struct {
	URL      string
	FileName string
	Headers  map[string]string
}

type Download interface {
	List(ctx context.Context) (data.Downloads, error)
	Get(ctx context.Context, id string) (*data.Download, error)
	Add(ctx context.Context, req AddRequest) (*data.Download, error)
	UpdateDesiredStatus(ctx context.Context, id string, status DesiredStatus) (*data.Download, error)
	// Delete cancels the download if needed, removes its file and forgets it.
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context) (<-chan data.Downloads, error)
	// Progress streams live progress for one download.
	Progress(ctx context.Context, id string) (<-chan data.Progress, error)
	// Restore marks downloads left running by a previous process as paused.
	Restore(ctx context.Context) (int, error)
}

type download struct {
	repo repo.DownloadRepo
	dlr  downloader.Downloader
}

func NewDownload(repo repo.DownloadRepo, dlr downloader.Downloader) Download {
	return &download{
		repo: repo,
		dlr:  dlr,
	}
}

func (ds *download) List(ctx context.Context) (data.Downloads, error) {
	return ds.repo.List(ctx)
}

func (ds *download) Get(ctx context.Context, id string) (*data.Download, error) {
	return ds.load(ctx, id)
}

// load reads the stored record and overlays the engine's live state, which
// is ahead of the store while status writes are still queued.
func (ds *download) load(ctx context.Context, id string) (*data.Download, error) {
	d, err := ds.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src, ok := ds.dlr.(downloader.Snapshotter); ok {
		if snap, ok := src.Snapshot(id); ok {
			d.Progress = snap.Progress
			d.Size = snap.Size
			d.FileSize = snap.FileSize
		}
	}
	return d, nil
}

func (ds *download) Watch(ctx context.Context) (<-chan data.Downloads, error) {
	return ds.repo.Watch(ctx)
}

func (ds *download) Add(ctx context.Context, req AddRequest) (*data.Download, error) {
	if err := data.ValidateURL(strings.TrimSpace(req.URL)); err != nil {
		return nil, err
	}
	d, err := ds.dlr.Start(ctx, strings.TrimSpace(req.URL), downloadcfg.StartOptions{
		FileName: req.FileName,
		Headers:  req.Headers,
	})
	if err != nil {
		return nil, err
	}
	// The reconciler may already have stored a newer snapshot.
	if err := ds.repo.Create(ctx, d); err != nil && !errors.Is(err, data.ErrConflict) {
		ds.dlr.Cancel(ctx, d)
		return nil, err
	}
	return d, nil
}

func (ds *download) UpdateDesiredStatus(ctx context.Context, id string, status DesiredStatus) (*data.Download, error) {
	if !AllowedStatuses[status] {
		return nil, data.ErrBadStatus
	}
	d, err := ds.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch status {
	case DesiredActive:
		if !ds.dlr.Resume(ctx, d, downloadcfg.StartOptions{}) {
			return nil, fmt.Errorf("%w: cannot resume %s download", data.ErrConflict, data.FormatStatus(d.Progress.Status))
		}
		return d, nil
	case DesiredPaused:
		if ds.dlr.Pause(ctx, d) || d.Progress.Status == data.StatusPaused {
			break
		}
		return nil, fmt.Errorf("%w: cannot pause %s download", data.ErrConflict, data.FormatStatus(d.Progress.Status))
	case DesiredCancelled:
		switch {
		case ds.dlr.Cancel(ctx, d):
		case d.Progress.Status == data.StatusCompleted:
			return nil, fmt.Errorf("%w: download already completed", data.ErrConflict)
		case d.Progress.Status == data.StatusCancelled:
			return d, nil
		default:
			if err := ds.dlr.Purge(ctx, d); err != nil {
				return nil, err
			}
		}
	}

	if err := ds.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (ds *download) Delete(ctx context.Context, id string) error {
	d, err := ds.load(ctx, id)
	if err != nil {
		return err
	}
	if d.Progress.Status != data.StatusCompleted {
		if err := ds.dlr.Purge(ctx, d); err != nil {
			return err
		}
	}
	// Forget queues a delete behind any pending events for d so a late
	// status write cannot bring the row back.
	ds.dlr.Forget(ctx, d)
	return ds.repo.Delete(ctx, id)
}

func (ds *download) Progress(ctx context.Context, id string) (<-chan data.Progress, error) {
	d, err := ds.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src, ok := ds.dlr.(downloader.ProgressSource); ok {
		if ch, ok := src.Subscribe(ctx, id); ok {
			return ch, nil
		}
	}
	// Not known to the engine (e.g. restored after restart): report the
	// stored progress once.
	ch := make(chan data.Progress, 1)
	ch <- d.Progress
	close(ch)
	return ch, nil
}

func (ds *download) Restore(ctx context.Context) (int, error) {
	list, err := ds.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range list {
		if d.Progress.Status != data.StatusDownloading {
			continue
		}
		d.Progress.Status = data.StatusPaused
		if err := ds.repo.Upsert(ctx, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
