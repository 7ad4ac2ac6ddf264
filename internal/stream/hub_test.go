package stream

import (
	"context"
	"testing"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

func event(owner, linkID string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Op:      domain.OpInsert,
		OwnerID: owner,
		Link:    domain.Link{ID: linkID, OwnerID: owner},
		At:      time.Now(),
	}
}

func TestHubRoutesByOwner(t *testing.T) {
	hub := NewHub(logger.NewNop())

	aliceCh, cancelAlice := hub.Subscribe("alice")
	defer cancelAlice()
	bobCh, cancelBob := hub.Subscribe("bob")
	defer cancelBob()

	events := make(chan domain.ChangeEvent, 2)
	events <- event("alice", "l1")
	events <- event("bob", "l2")
	close(events)

	hub.Run(context.Background(), events)

	select {
	case ev := <-aliceCh:
		if ev.Link.ID != "l1" {
			t.Errorf("alice got link %q, want l1", ev.Link.ID)
		}
	default:
		t.Fatal("alice received no event")
	}

	select {
	case ev := <-bobCh:
		if ev.Link.ID != "l2" {
			t.Errorf("bob got link %q, want l2", ev.Link.ID)
		}
	default:
		t.Fatal("bob received no event")
	}

	// No cross-owner leakage.
	select {
	case ev := <-aliceCh:
		t.Errorf("alice received extra event for link %q", ev.Link.ID)
	default:
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub(logger.NewNop())

	ch, cancel := hub.Subscribe("alice")
	if got := hub.SubscriberCount("alice"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	cancel()
	if got := hub.SubscriberCount("alice"); got != 0 {
		t.Fatalf("SubscriberCount after cancel = %d, want 0", got)
	}

	if _, open := <-ch; open {
		t.Error("channel must be closed after cancel")
	}

	// Second cancel is a no-op.
	cancel()
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(logger.NewNop())

	ch, cancel := hub.Subscribe("alice")
	defer cancel()

	events := make(chan domain.ChangeEvent, subscriberBuffer+8)
	for i := 0; i < subscriberBuffer+8; i++ {
		events <- event("alice", "l")
	}
	close(events)

	// Nobody drains ch; overflow must be dropped, not block Run.
	done := make(chan struct{})
	go func() {
		hub.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on a full subscriber")
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("subscriber buffer holds %d events, want %d", len(ch), subscriberBuffer)
	}
}
