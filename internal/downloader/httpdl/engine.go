package httpdl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloadcfg"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/metrics"
)

// DefaultNameLength is the length of generated file names.
const DefaultNameLength = 10

// Options configures an Engine.
type Options struct {
	// Dir receives one output file per download. Created if missing.
	Dir        string
	BufferSize int
	NameLength int
	// Policy applies when the chosen file name already exists.
	Policy downloadcfg.CollisionPolicy
	// RangeRequests resumes with "Range: bytes=N-" instead of discarding
	// the first N bytes of a full response.
	RangeRequests bool
	Logger        *slog.Logger
}

// Engine downloads HTTP resources into files under a single directory. Each
// download runs in its own goroutine; the engine itself never blocks on a
// transfer.
type Engine struct {
	client *http.Client
	rep    downloader.Reporter
	opts   Options
	reg    *Registry
	log    *slog.Logger

	nameMu sync.Mutex
	wg     conc.WaitGroup
}

var _ downloader.Downloader = (*Engine)(nil)
var _ downloader.ProgressSource = (*Engine)(nil)

// New creates an Engine. client should carry a retrying transport; rep may
// be nil.
func New(client *http.Client, rep downloader.Reporter, opts Options) (*Engine, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Dir == "" {
		return nil, errors.New("httpdl: output directory required")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.NameLength <= 0 {
		opts.NameLength = DefaultNameLength
	}
	if opts.Policy == "" {
		opts.Policy = downloadcfg.CollisionRename
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, rep: rep, opts: opts, reg: NewRegistry(), log: log}, nil
}

// Path returns the output path for a file name.
func (e *Engine) Path(fileName string) string { return filepath.Join(e.opts.Dir, fileName) }

// Start registers a new download and launches its first attempt.
func (e *Engine) Start(ctx context.Context, url string, opts downloadcfg.StartOptions) (*data.Download, error) {
	if err := data.ValidateURL(url); err != nil {
		return nil, err
	}
	name, err := e.reserveName(opts)
	if err != nil {
		return nil, err
	}
	d := &data.Download{
		ID:        uuid.NewString(),
		URL:       url,
		FileName:  name,
		Headers:   maps.Clone(opts.Headers),
		Progress:  data.Progress{Status: data.StatusPending},
		CreatedAt: time.Now().UTC(),
	}
	h := newHandle(ctx, *d, nil)
	if _, ok := e.reg.Register(d.ID, h); !ok {
		h.cancel()
		return nil, data.ErrConflict
	}
	e.log.Info("download started", "id", d.ID, "url", d.URL, "file", d.FileName)
	e.report(downloader.EventStart, d.Clone(), nil)
	e.launch(h, attempt{opts: opts, fallback: data.StatusPending})
	return d, nil
}

// Resume relaunches a paused or failed download from the bytes it already
// transferred. It returns false for terminal downloads and for downloads
// that are already running.
func (e *Engine) Resume(ctx context.Context, d *data.Download, opts downloadcfg.StartOptions) bool {
	if d == nil || data.IsTerminal(d.Progress.Status) {
		return false
	}
	task := d.Clone()
	task.Progress.Error = ""
	if task.Progress.Status != data.StatusPending {
		task.Progress.Status = data.StatusPaused
	}
	if opts.Headers != nil {
		task.Headers = maps.Clone(opts.Headers)
	}

	var stream *Stream
	var prevDone <-chan struct{}
	if prev, ok := e.reg.Lookup(d.ID); ok {
		if prev.Active() {
			return false
		}
		stream = prev.Stream()
		prevDone = prev.Done()
	}
	h := newHandle(ctx, *task, stream)
	if _, ok := e.reg.Register(d.ID, h); !ok {
		h.cancel()
		return false
	}
	e.log.Info("download resumed", "id", d.ID, "offset", task.Progress.BytesTransferred)
	e.report(downloader.EventStart, task.Clone(), nil)
	e.launch(h, attempt{opts: opts, fallback: task.Progress.Status, prevDone: prevDone})
	return true
}

// Pause stops the running attempt and keeps the output file for a later
// Resume. d is updated with the last confirmed progress.
func (e *Engine) Pause(ctx context.Context, d *data.Download) bool {
	h, ok := e.reg.Lookup(d.ID)
	if !ok {
		return false
	}
	snap, ok := h.stop(data.StatusPaused, false)
	if !ok {
		return false
	}
	merge(d, snap)
	metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	e.log.Info("download paused", "id", d.ID, "bytes", snap.Progress.BytesTransferred)
	e.report(downloader.EventPaused, snap, nil)
	return true
}

// Cancel stops the running attempt, deletes the partial file and forgets
// the download.
func (e *Engine) Cancel(ctx context.Context, d *data.Download) bool {
	h, ok := e.reg.Lookup(d.ID)
	if !ok {
		return false
	}
	snap, ok := h.stop(data.StatusCancelled, true)
	if !ok {
		return false
	}
	e.reg.Remove(d.ID)
	e.removeFile(snap.FileName)
	merge(d, snap)
	metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	e.log.Info("download cancelled", "id", d.ID)
	e.report(downloader.EventCancelled, snap, nil)
	return true
}

// Purge cancels any attempt, deletes the output file and forgets the
// download. It is idempotent and also works for downloads that are not
// running, e.g. paused ones.
func (e *Engine) Purge(ctx context.Context, d *data.Download) error {
	if h, ok := e.reg.Lookup(d.ID); ok {
		h.stop(data.StatusCancelled, true)
		e.reg.Remove(d.ID)
		metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	}
	if d.FileName != "" {
		if err := os.Remove(e.Path(d.FileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	d.Progress.Status = data.StatusCancelled
	d.FileSize = 0
	e.report(downloader.EventCancelled, d.Clone(), nil)
	return nil
}

// Forget drops all engine state for d and reports EventDeleted, which the
// reconciler applies after any events still queued for d. The output file
// is left on disk.
func (e *Engine) Forget(ctx context.Context, d *data.Download) {
	if h, ok := e.reg.Lookup(d.ID); ok {
		h.stop(data.StatusCancelled, false)
		e.reg.Remove(d.ID)
		metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	}
	e.log.Info("download forgotten", "id", d.ID)
	e.report(downloader.EventDeleted, d.Clone(), nil)
}

// Subscribe streams live progress for id.
func (e *Engine) Subscribe(ctx context.Context, id string) (<-chan data.Progress, bool) {
	h, ok := e.reg.Lookup(id)
	if !ok {
		return nil, false
	}
	return h.Stream().Subscribe(ctx), true
}

// Snapshot returns the engine's view of id.
func (e *Engine) Snapshot(id string) (*data.Download, bool) {
	h, ok := e.reg.Lookup(id)
	if !ok {
		return nil, false
	}
	return h.Snapshot(), true
}

// Active is the number of running attempts.
func (e *Engine) Active() int { return e.reg.ActiveCount() }

// Close pauses every running attempt so it can be resumed later and waits
// for the workers to exit or ctx to end.
func (e *Engine) Close(ctx context.Context) error {
	for _, h := range e.reg.handles() {
		if snap, ok := h.stop(data.StatusPaused, false); ok {
			e.report(downloader.EventPaused, snap, nil)
		}
	}
	metrics.ActiveDownloads.Set(0)
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) report(t downloader.EventType, d *data.Download, err error) {
	if e.rep == nil {
		return
	}
	e.rep.Report(downloader.Event{ID: d.ID, Type: t, Download: d, Err: err})
}

func (e *Engine) removeFile(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(e.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.log.Warn("remove output file", "file", name, "err", err)
	}
}

// merge copies the engine-owned fields of snap into d.
func merge(d, snap *data.Download) {
	d.Progress = snap.Progress
	d.Size = snap.Size
	d.FileSize = snap.FileSize
}
