package repo

import (
	"context"
	"sync"

	"github.com/tinoosan/quip/internal/data"
)

// watchHub fans list snapshots out to watchers. Each watcher holds at most
// one pending list.
type watchHub struct {
	mu   sync.Mutex
	subs map[chan data.Downloads]struct{}
}

func (h *watchHub) subscribe(ctx context.Context, initial data.Downloads) <-chan data.Downloads {
	ch := make(chan data.Downloads, 1)
	ch <- initial
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan data.Downloads]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *watchHub) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

func (h *watchHub) broadcast(list data.Downloads) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- list.Clone():
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- list.Clone():
		default:
		}
	}
}
