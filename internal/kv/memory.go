package kv

import (
	"bytes"
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// Memory is a sharded in-process Store with per-key TTL. Every mutating
// operation holds exactly one shard lock for its whole critical section,
// which is what makes IncrWindow and CompareAndSwap atomic per key.
type Memory struct {
	shards [shardCount]*shard
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// NewMemory builds a Memory store and starts a background sweep that
// evicts expired entries once a minute.
func NewMemory() *Memory {
	m := &Memory{now: time.Now, stop: make(chan struct{})}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	go m.sweep()
	return m
}

// Close stops the background sweeper.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := m.now()
			for _, s := range m.shards {
				s.mu.Lock()
				for k, e := range s.entries {
					if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// live returns the entry for key if present and not expired. Caller
// must hold the shard lock.
func (s *shard) live(key string, now time.Time) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key, m.now())
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{value: cloneBytes(value), expiresAt: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key, m.now()); ok {
		return false, nil
	}
	s.entries[key] = &entry{value: cloneBytes(value), expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key, m.now())
	if !ok || !bytes.Equal(e.value, prev) {
		return false, nil
	}
	s.entries[key] = &entry{value: cloneBytes(next), expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	e, ok := s.live(key, now)
	if !ok {
		e = &entry{expiresAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.expiresAt, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*Memory)(nil)
