package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/metrics"
	"github.com/tinoosan/quip/internal/repo"
)

// DefaultProgressInterval is the minimum spacing between persisted progress
// snapshots of one download.
const DefaultProgressInterval = time.Second

// Reconciler consumes downloader events and writes the carried snapshots to
// the repository. Status changes are always written; progress is sampled.
type Reconciler struct {
	repo     repo.DownloadWriter
	events   <-chan downloader.Event
	log      *slog.Logger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	// owned by the loop goroutine; both only hold running downloads
	limiters map[string]*rate.Limiter
	running  map[string]bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Reconciler that processes downloader events and mutates the
// repository accordingly. interval <= 0 selects DefaultProgressInterval.
func New(log *slog.Logger, repo repo.DownloadWriter, events <-chan downloader.Event, interval time.Duration) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Reconciler{
		repo:     repo,
		events:   events,
		log:      log,
		interval: interval,
		ctx:      context.Background(),
		limiters: make(map[string]*rate.Limiter),
		running:  make(map[string]bool),
	}
}

// Run starts the reconciliation loop.
func (r *Reconciler) Run() {
	r.stop = make(chan struct{})
	r.ctx, r.cancel = context.WithCancel(r.ctx)
	// Tag this run with a stable operation_id for easier correlation.
	opID := uuid.NewString()
	r.log = r.log.With("operation_id", opID)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stop:
				r.drain()
				return
			case e, ok := <-r.events:
				if !ok {
					return
				}
				r.handle(e)
			}
		}
	}()
}

// Stop writes any events already queued and terminates the loop.
func (r *Reconciler) Stop() {
	if r.stop != nil {
		close(r.stop)
		r.wg.Wait()
		if r.cancel != nil {
			r.cancel()
		}
	}
}

func (r *Reconciler) drain() {
	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.handle(e)
		default:
			return
		}
	}
}

func (r *Reconciler) handle(e downloader.Event) {
	// Record event type for observability
	metrics.DownloadEvents.WithLabelValues(string(e.Type)).Inc()
	if e.Download == nil {
		r.log.Warn("event without snapshot", "id", e.ID, "type", e.Type)
		return
	}

	switch e.Type {
	case downloader.EventStart:
		r.running[e.ID] = true
	case downloader.EventProgress:
		// Progress that trails a status change, or arrives without a
		// Start, is stale.
		if !r.running[e.ID] || !r.limiter(e.ID).Allow() {
			return
		}
	case downloader.EventPaused, downloader.EventFailed, downloader.EventComplete, downloader.EventCancelled:
		r.forget(e.ID)
	case downloader.EventDeleted:
		r.forget(e.ID)
		if err := r.repo.Delete(r.ctx, e.ID); err != nil && !errors.Is(err, data.ErrNotFound) {
			r.log.Error("delete", "id", e.ID, "err", err)
			return
		}
		r.log.Info("reconciled event", "id", e.ID, "type", e.Type)
		return
	default:
		r.log.Warn("unknown event type", "id", e.ID, "type", e.Type)
		return
	}

	if err := r.repo.Upsert(r.ctx, e.Download); err != nil {
		r.log.Error("upsert", "id", e.ID, "type", e.Type, "err", err)
		return
	}
	if e.Type == downloader.EventProgress {
		r.log.Debug("progress persisted", "id", e.ID, "progress", data.FormatProgress(e.Download.Progress))
		return
	}
	attrs := []any{"id", e.ID, "type", e.Type, "status", data.FormatStatus(e.Download.Progress.Status)}
	if e.Err != nil {
		attrs = append(attrs, "err", e.Err)
	}
	r.log.Info("reconciled event", attrs...)
}

func (r *Reconciler) forget(id string) {
	delete(r.limiters, id)
	delete(r.running, id)
}

func (r *Reconciler) limiter(id string) *rate.Limiter {
	l, ok := r.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.interval), 1)
		r.limiters[id] = l
	}
	return l
}
