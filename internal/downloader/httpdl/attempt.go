package httpdl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sourcegraph/conc/panics"
	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloadcfg"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/fp"
	"github.com/tinoosan/quip/internal/metrics"
	"github.com/tinoosan/quip/internal/transport"
)

type attempt struct {
	opts downloadcfg.StartOptions
	// fallback is the status restored when the attempt fails.
	fallback data.Status
	// prevDone is closed once the previous attempt of the same download
	// has stopped writing.
	prevDone <-chan struct{}
}

func (e *Engine) launch(h *Handle, a attempt) {
	metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	e.wg.Go(func() {
		defer close(h.done)
		var out Outcome
		var pc panics.Catcher
		pc.Try(func() { out = e.transfer(h, a) })
		if r := pc.Recovered(); r != nil {
			out = Outcome{Kind: OutcomeFailed, Err: r.AsError()}
		}
		e.finish(h, a, out)
	})
}

func (e *Engine) transfer(h *Handle, a attempt) Outcome {
	if a.prevDone != nil {
		select {
		case <-a.prevDone:
		case <-h.ctx.Done():
			return Outcome{Kind: OutcomeCancelled}
		}
	}
	task := h.Snapshot()
	path := e.Path(task.FileName)

	offset, err := reconcileOffset(path, task.Progress.BytesTransferred)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err}
	}

	resp, err := transport.Fetch(h.ctx, e.client, transport.Request{
		URL:     task.URL,
		Headers: task.Headers,
		Offset:  offset,
		Ranged:  e.opts.RangeRequests,
	})
	if err != nil {
		if h.ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled, Bytes: offset}
		}
		return Outcome{Kind: OutcomeFailed, Bytes: offset, Err: err}
	}
	defer func() { _ = resp.Raw.Body.Close() }()

	total := resp.Total
	if total > 0 && offset > total {
		return Outcome{Kind: OutcomeFailed, Bytes: offset, Err: fmt.Errorf("%d bytes on disk exceed declared length %d", offset, total)}
	}
	skip := offset
	if resp.Partial {
		skip = 0
	}
	e.progress(h, a, offset, total)

	out := Copy(h.ctx, resp.Raw.Body, path, CopyOptions{
		Seek:       offset,
		Skip:       skip,
		Total:      total,
		BufferSize: e.opts.BufferSize,
		OnProgress: func(n, t int64) { e.progress(h, a, n, t) },
	})
	if out.Kind == OutcomeCompleted && total > 0 && out.Bytes != total {
		return Outcome{Kind: OutcomeFailed, Bytes: out.Bytes, Err: fmt.Errorf("%w: %d of %d bytes", ErrIncomplete, out.Bytes, total)}
	}
	return out
}

func (e *Engine) progress(h *Handle, a attempt, bytes, total int64) {
	snap, ok := h.advance(bytes, total)
	if !ok {
		return
	}
	e.report(downloader.EventProgress, snap, nil)
	if a.opts.OnProgress != nil {
		a.opts.OnProgress(*snap)
	}
}

// finish publishes the final state of an attempt and runs the completion
// callbacks exactly once.
func (e *Engine) finish(h *Handle, a attempt, out Outcome) {
	task := h.Snapshot()
	fileSize := fileLength(e.Path(task.FileName))

	switch out.Kind {
	case OutcomeCompleted:
		snap, ok := h.settle(data.StatusCompleted, fileSize, func(d *data.Download) {
			d.Progress.BytesTransferred = out.Bytes
			if d.Progress.TotalBytes == 0 {
				d.Progress.TotalBytes = out.Bytes
			}
			d.Size = d.Progress.TotalBytes
		})
		if !ok {
			// Paused or cancelled after the last chunk landed; the
			// callbacks follow the recorded status.
			out = Outcome{Kind: OutcomeCancelled, Bytes: out.Bytes}
			break
		}
		sum, err := fp.File(e.Path(task.FileName))
		if err != nil {
			e.log.Warn("checksum output file", "id", task.ID, "err", err)
		}
		snap.Checksum = sum
		h.annotate(func(d *data.Download) { d.Checksum = sum })
		e.log.Info("download completed", "id", snap.ID, "bytes", out.Bytes)
		e.report(downloader.EventComplete, snap, nil)
	case OutcomeFailed:
		if out.Err == nil {
			out.Err = errors.New("download attempt failed")
		}
		snap, ok := h.settle(a.fallback, fileSize, func(d *data.Download) {
			d.Progress.Error = out.Err.Error()
		})
		if !ok {
			out = Outcome{Kind: OutcomeCancelled, Bytes: out.Bytes}
			break
		}
		e.log.Warn("download failed", "id", snap.ID, "status", data.FormatStatus(a.fallback), "err", out.Err)
		e.report(downloader.EventFailed, snap, out.Err)
		if a.opts.OnError != nil {
			e.callback(task.ID, func() { a.opts.OnError(out.Err) })
		}
	default:
		e.log.Debug("download attempt stopped", "id", task.ID, "bytes", out.Bytes)
	}

	if h.discarding() {
		if a.prevDone != nil {
			<-a.prevDone
		}
		e.removeFile(task.FileName)
	}
	metrics.ActiveDownloads.Set(float64(e.reg.ActiveCount()))
	if a.opts.OnCompletion != nil {
		e.callback(task.ID, func() { a.opts.OnCompletion(out.result()) })
	}
}

// callback runs caller code without letting a panic escape the worker.
func (e *Engine) callback(id string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		e.log.Error("download callback panicked", "id", id, "err", r.AsError())
	}
}

// reconcileOffset lines the output file up with the confirmed byte count.
// Bytes written after the last confirmation are dropped; a shorter file
// wins over the recorded count.
func reconcileOffset(path string, want int64) (int64, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	switch size := fi.Size(); {
	case size > want:
		if err := os.Truncate(path, want); err != nil {
			return 0, err
		}
		return want, nil
	case size < want:
		return size, nil
	default:
		return want, nil
	}
}

func fileLength(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
