// Package stream fans audit entries out to live subscribers. It backs
// the admin audit tail endpoint: the recorder publishes every entry it
// writes, and each connected client consumes its own buffered channel.
package stream

import (
	"context"
	"sync"

	"venuelink.org/internal/audit"
)

// Stream is an in-process fan-out of audit entries.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the entry out to all subscribers. Slow subscribers are
// skipped rather than blocking the recorder.
func (s *Stream) Publish(entry audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Append implements audit.Sink so the stream can sit behind the
// recorder next to the durable sink.
func (s *Stream) Append(_ context.Context, entry *audit.Entry) error {
	s.Publish(*entry)
	return nil
}

var _ audit.Sink = (*Stream)(nil)
