package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"venuelink.org/internal/kv"
)

// failStore always reports the shared store as unreachable.
type failStore struct{}

func (failStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, kv.ErrUnavailable
}
func (failStore) Set(context.Context, string, []byte, time.Duration) error {
	return kv.ErrUnavailable
}
func (failStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, kv.ErrUnavailable
}
func (failStore) CompareAndSwap(context.Context, string, []byte, []byte, time.Duration) (bool, error) {
	return false, kv.ErrUnavailable
}
func (failStore) IncrWindow(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, kv.ErrUnavailable
}
func (failStore) Delete(context.Context, string) error { return kv.ErrUnavailable }

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	return New(store, cfg)
}

func TestAdmitEnforcesWindowLimit(t *testing.T) {
	l := newTestLimiter(t, Config{Limit: 10, Window: time.Minute, Burst: 100})
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if d := l.Admit(ctx, "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
	}
	d := l.Admit(ctx, "1.2.3.4")
	if d.Allowed {
		t.Fatal("request 11 allowed, want rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want within (0, window]", d.RetryAfter)
	}
}

func TestAdmitConcurrentNeverOverAdmits(t *testing.T) {
	const limit = 10
	l := newTestLimiter(t, Config{Limit: limit, Window: time.Minute, Burst: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	allowed := make([]bool, limit+1)
	for i := 0; i < limit+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			allowed[i] = l.Admit(ctx, "1.2.3.4").Allowed
		}(i)
	}
	wg.Wait()

	var n int
	for _, ok := range allowed {
		if ok {
			n++
		}
	}
	if n != limit {
		t.Fatalf("admitted %d of %d concurrent requests, want exactly %d", n, limit+1, limit)
	}
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, Config{Limit: 2, Window: time.Minute, Burst: 100})
	ctx := context.Background()

	l.Admit(ctx, "1.2.3.4")
	l.Admit(ctx, "1.2.3.4")
	if d := l.Admit(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("exhausted key still admitted")
	}
	if d := l.Admit(ctx, "5.6.7.8"); !d.Allowed {
		t.Fatal("fresh key rejected")
	}
}

func TestAdmitRecoversAfterWindow(t *testing.T) {
	l := newTestLimiter(t, Config{Limit: 1, Window: 50 * time.Millisecond, Burst: 100})
	ctx := context.Background()

	if d := l.Admit(ctx, "1.2.3.4"); !d.Allowed {
		t.Fatal("first request rejected")
	}
	if d := l.Admit(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("second request in window allowed")
	}

	time.Sleep(60 * time.Millisecond)
	if d := l.Admit(ctx, "1.2.3.4"); !d.Allowed {
		t.Fatal("request after window rollover rejected")
	}
}

func TestAdmitStoreFailureModes(t *testing.T) {
	ctx := context.Background()

	closed := New(failStore{}, Config{Limit: 10, Window: time.Minute})
	if d := closed.Admit(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("fail-closed limiter admitted during store outage")
	}

	open := New(failStore{}, Config{Limit: 10, Window: time.Minute, FailOpen: true})
	if d := open.Admit(ctx, "1.2.3.4"); !d.Allowed {
		t.Fatal("fail-open limiter rejected during store outage")
	}
}

func TestAdmitLocalBurstCeiling(t *testing.T) {
	// Burst below Limit is raised to Limit, so the local bucket never
	// rejects traffic the window counter would have admitted.
	l := newTestLimiter(t, Config{Limit: 5, Window: time.Minute, Burst: 1})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if d := l.Admit(ctx, "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
	}
	if d := l.Admit(ctx, "1.2.3.4"); d.Allowed {
		t.Fatal("request 6 allowed, want rejected")
	}
}
