package stream

import (
	"context"
	"sync"

	"authright.org/internal/registry"
)

const subscriberBuffer = 16

// Stream fan-outs registry events to all active subscribers (SSE clients).
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]chan registry.Event
	next    int
	dropped uint64
	closed  bool
}

var _ registry.Sink = (*Stream)(nil)

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan registry.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends or the stream is closed.
func (s *Stream) Subscribe(ctx context.Context) <-chan registry.Event {
	ch := make(chan registry.Event, subscriberBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt registry.Event) {
	s.mu.RLock()
	var dropped uint64
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; skip.
			dropped++
		}
	}
	s.mu.RUnlock()
	if dropped > 0 {
		s.mu.Lock()
		s.dropped += dropped
		s.mu.Unlock()
	}
}

// Deposit implements registry.Sink.
func (s *Stream) Deposit(_ context.Context, evt registry.Event) { s.Publish(evt) }

// Close ends every subscription and refuses new ones.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Subscribers reports the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped reports how many deliveries were skipped for full subscribers.
func (s *Stream) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
