package httpdl

import (
	"context"
	"sync"

	"github.com/tinoosan/quip/internal/data"
)

// Handle is the control surface for one attempt of a download: its
// cancellation, its progress stream and the last confirmed task state.
//
// Once a handle is stopped (paused, cancelled, finished) it stays inert:
// later progress from the dying attempt is dropped so a stale Downloading
// can never overwrite Paused or Cancelled.
type Handle struct {
	mu      sync.Mutex
	task    data.Download
	active  bool
	discard bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	stream *Stream
}

// newHandle returns an active handle. parent supplies values only; the
// attempt is cancelled exclusively through the handle.
func newHandle(parent context.Context, task data.Download, stream *Stream) *Handle {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	if stream == nil {
		stream = NewStream(task.Progress)
	} else {
		stream.Publish(task.Progress)
	}
	return &Handle{
		task:   task,
		active: true,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		stream: stream,
	}
}

// Snapshot returns a copy of the last confirmed task state.
func (h *Handle) Snapshot() *data.Download {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.task.Clone()
}

func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Done is closed when the attempt has fully stopped and no longer touches
// the output file.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Stream() *Stream { return h.stream }

func (h *Handle) discarding() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.discard
}

// stop deactivates the handle with the given status and cancels the attempt.
// It reports false when the handle was already inactive. discard marks the
// output file for removal even then.
func (h *Handle) stop(status data.Status, discard bool) (*data.Download, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if discard {
		h.discard = true
	}
	if !h.active {
		return nil, false
	}
	h.active = false
	h.cancel()
	h.task.Progress.Status = status
	h.stream.Publish(h.task.Progress)
	return h.task.Clone(), true
}

// advance records confirmed bytes while the attempt is active.
func (h *Handle) advance(bytes, total int64) (*data.Download, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, false
	}
	h.task.Progress = data.Progress{BytesTransferred: bytes, TotalBytes: total, Status: data.StatusDownloading}
	h.task.Size = total
	h.task.FileSize = bytes
	h.stream.Publish(h.task.Progress)
	return h.task.Clone(), true
}

// settle ends an active attempt from the worker side with a final status.
func (h *Handle) settle(status data.Status, fileSize int64, mutate func(*data.Download)) (*data.Download, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, false
	}
	h.active = false
	h.cancel()
	if mutate != nil {
		mutate(&h.task)
	}
	h.task.Progress.Status = status
	h.task.FileSize = fileSize
	h.stream.Publish(h.task.Progress)
	return h.task.Clone(), true
}

// annotate edits the recorded task of a settled handle without publishing.
func (h *Handle) annotate(mutate func(*data.Download)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mutate(&h.task)
}
