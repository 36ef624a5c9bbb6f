package stream

import (
	"context"
	"testing"
	"time"

	"authright.org/internal/registry"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	s.Deposit(ctx, registry.Event{ID: "evt_1", Kind: registry.EventOrganizationRegistered})

	for i, ch := range []<-chan registry.Event{a, b} {
		select {
		case evt := <-ch:
			if evt.ID != "evt_1" {
				t.Fatalf("subscriber %d got %q", i, evt.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if n := s.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+5; i++ {
			s.Publish(registry.Event{ID: "evt"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := s.Dropped(); got != 5 {
		t.Fatalf("expected 5 dropped, got %d", got)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)
	s.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if _, ok := <-s.Subscribe(ctx); ok {
		t.Fatal("subscribe after close must yield a closed channel")
	}
	cancel()
}
