package stream

import (
	"context"
	"testing"
	"time"

	"venuelink.org/internal/audit"
)

func TestPublishFansOut(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := s.Subscribe(ctx)
	second := s.Subscribe(ctx)

	s.Publish(audit.Entry{Action: "auth.login", Outcome: audit.OutcomeSuccess})

	for name, ch := range map[string]<-chan audit.Entry{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got.Action != "auth.login" {
				t.Fatalf("%s subscriber got action %q", name, got.Action)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber received nothing", name)
		}
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("channel delivered an entry instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context end")
	}
}

func TestPublishSkipsSlowSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx) // never drained

	// Overflow the buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			s.Publish(audit.Entry{Action: "auth.login"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestAppendImplementsSink(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	if err := s.Append(context.Background(), &audit.Entry{Action: "auth.logout"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	select {
	case got := <-ch:
		if got.Action != "auth.logout" {
			t.Fatalf("got action %q", got.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("Append did not publish")
	}
}
