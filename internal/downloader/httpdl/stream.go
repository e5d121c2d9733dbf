package httpdl

import (
	"context"
	"sync"

	"github.com/tinoosan/quip/internal/data"
)

// Stream fans progress out to any number of subscribers. Each subscriber
// holds at most one pending value; a newer value replaces an unread one, so a
// slow reader only ever sees the latest state and never stalls the transfer.
type Stream struct {
	mu     sync.Mutex
	latest data.Progress
	subs   map[chan data.Progress]struct{}
}

func NewStream(initial data.Progress) *Stream {
	return &Stream{latest: initial, subs: make(map[chan data.Progress]struct{})}
}

// Publish records p as the latest value and offers it to every subscriber.
func (s *Stream) Publish(p data.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = p
	for ch := range s.subs {
		offer(ch, p)
	}
}

func (s *Stream) Latest() data.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribe returns a channel primed with the latest value. It is closed once
// ctx is done.
func (s *Stream) Subscribe(ctx context.Context) <-chan data.Progress {
	ch := make(chan data.Progress, 1)
	s.mu.Lock()
	ch <- s.latest
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Subscribers is the number of open subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// offer must be called with s.mu held; only publishers write to ch.
func offer(ch chan data.Progress, p data.Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}
