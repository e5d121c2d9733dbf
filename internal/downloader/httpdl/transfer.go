package httpdl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tinoosan/quip/internal/downloadcfg"
	"github.com/tinoosan/quip/internal/metrics"
)

// DefaultBufferSize is the chunk size used when none is configured.
const DefaultBufferSize = 32 << 10

// ErrIncomplete means the body ended cleanly before the declared length.
var ErrIncomplete = errors.New("transfer ended before declared length")

// OutcomeKind tags how a transfer ended.
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one transfer. Bytes counts everything in the
// output file that belongs to the resource, including the resumed prefix.
type Outcome struct {
	Kind  OutcomeKind
	Bytes int64
	Err   error
}

func (o Outcome) result() downloadcfg.Result {
	switch o.Kind {
	case OutcomeCompleted:
		return downloadcfg.Result{Kind: downloadcfg.ResultCompleted}
	case OutcomeCancelled:
		return downloadcfg.Result{Kind: downloadcfg.ResultCancelled}
	}
	return downloadcfg.Result{Kind: downloadcfg.ResultFailed, Err: o.Err}
}

// CopyOptions configures Copy.
type CopyOptions struct {
	// Seek is the number of bytes already in the output file.
	Seek int64
	// Skip is the number of leading body bytes to discard before appending.
	// It equals Seek when the server sent the whole resource again.
	Skip  int64
	Total int64
	// BufferSize bounds each read. Defaults to DefaultBufferSize.
	BufferSize int
	// OnProgress receives the cumulative byte count after every write.
	OnProgress func(bytes, total int64)
}

// Copy appends body to dest in bounded chunks. Every chunk goes straight to
// the file descriptor before the next read, and ctx is checked before each
// read. Copy never truncates or removes dest.
func Copy(ctx context.Context, body io.Reader, dest string, opts CopyOptions) (out Outcome) {
	out.Bytes = opts.Seek
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Bytes: opts.Seek, Err: err}
	}
	defer func() {
		serr := f.Sync()
		cerr := f.Close()
		if out.Kind == OutcomeCompleted {
			if err := errors.Join(serr, cerr); err != nil {
				out = Outcome{Kind: OutcomeFailed, Bytes: out.Bytes, Err: err}
			}
		}
	}()

	stopped := func(err error) Outcome {
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled, Bytes: out.Bytes}
		}
		return Outcome{Kind: OutcomeFailed, Bytes: out.Bytes, Err: err}
	}

	if opts.Skip > 0 {
		if ctx.Err() != nil {
			return stopped(nil)
		}
		if _, err := io.CopyN(io.Discard, body, opts.Skip); err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("skip %d bytes: %w", opts.Skip, io.ErrUnexpectedEOF)
			}
			return stopped(err)
		}
	}

	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	for {
		if ctx.Err() != nil {
			return stopped(nil)
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return Outcome{Kind: OutcomeFailed, Bytes: out.Bytes, Err: werr}
			}
			out.Bytes += int64(n)
			metrics.BytesWritten.Add(float64(n))
			if opts.OnProgress != nil {
				opts.OnProgress(out.Bytes, opts.Total)
			}
		}
		if errors.Is(rerr, io.EOF) {
			out.Kind = OutcomeCompleted
			return out
		}
		if rerr != nil {
			return stopped(rerr)
		}
	}
}
