package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

func remoteLink(id, canonicalURL string, updatedAt time.Time) *domain.Link {
	return &domain.Link{
		ID:           id,
		OwnerID:      "alice",
		RawURL:       canonicalURL,
		CanonicalURL: canonicalURL,
		Domain:       "example.com",
		Title:        "Remote Title",
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}
}

func newTestReconciler(t *testing.T, remote Remote) *Reconciler {
	t.Helper()
	outbox, err := NewOutbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewOutbox failed: %v", err)
	}
	return NewReconciler(NewSnapshot(), outbox, remote, logger.NewNop())
}

func TestBootstrapPullsFullCollection(t *testing.T) {
	remote := newFakeRemote()
	remote.links["https://example.com/a"] = remoteLink("srv-1", "https://example.com/a", time.Now())
	remote.links["https://example.com/b"] = remoteLink("srv-2", "https://example.com/b", time.Now())

	r := newTestReconciler(t, remote)
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if r.snapshot.Len() != 2 {
		t.Errorf("snapshot len = %d, want 2", r.snapshot.Len())
	}
	if _, ok := r.snapshot.Get("srv-1"); !ok {
		t.Error("srv-1 missing from snapshot")
	}
}

func TestBootstrapSuppressesDuplicatePendingCapture(t *testing.T) {
	remote := newFakeRemote()
	remote.links["https://example.com/a"] = remoteLink("srv-1", "https://example.com/a", time.Now())

	r := newTestReconciler(t, remote)

	// A capture queued while offline for a URL the remote meanwhile got
	// from another device.
	local := &domain.Link{
		LocalID:      "local-1",
		OwnerID:      "alice",
		CanonicalURL: "https://example.com/a",
		Domain:       "example.com",
		Title:        "example.com",
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
	r.snapshot.Put(local)
	if err := r.outbox.Add(domain.OutboxEntry{
		LocalID: "local-1",
		Op:      domain.OpKindCreate,
		Link:    local,
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if len(r.outbox.Pending()) != 0 {
		t.Error("duplicate pending capture must be discarded")
	}
	if r.snapshot.Len() != 1 {
		t.Fatalf("snapshot len = %d, want 1 (one record per canonical URL)", r.snapshot.Len())
	}
	merged, ok := r.snapshot.Get("srv-1")
	if !ok {
		t.Fatal("remote row must win")
	}
	if merged.Title != "Remote Title" {
		t.Errorf("title = %q, want the remote row's", merged.Title)
	}
}

func TestMergeKeepsNewerLocalEdit(t *testing.T) {
	r := newTestReconciler(t, newFakeRemote())

	now := time.Now()
	local := remoteLink("srv-1", "https://example.com/a", now)
	local.Title = "Locally Edited"
	r.snapshot.Put(local)

	// A stale event from before the local edit round-tripped.
	stale := remoteLink("srv-1", "https://example.com/a", now.Add(-time.Minute))
	r.Apply(domain.ChangeEvent{Op: domain.OpUpdate, OwnerID: "alice", Link: *stale})

	got, _ := r.snapshot.Get("srv-1")
	if got.Title != "Locally Edited" {
		t.Errorf("title = %q, stale remote row must not overwrite newer local edit", got.Title)
	}

	// A genuinely newer remote row wins.
	fresh := remoteLink("srv-1", "https://example.com/a", now.Add(time.Minute))
	r.Apply(domain.ChangeEvent{Op: domain.OpUpdate, OwnerID: "alice", Link: *fresh})

	got, _ = r.snapshot.Get("srv-1")
	if got.Title != "Remote Title" {
		t.Errorf("title = %q, newer remote row must win", got.Title)
	}
}

func TestApplyDeleteEvent(t *testing.T) {
	r := newTestReconciler(t, newFakeRemote())

	l := remoteLink("srv-1", "https://example.com/a", time.Now())
	r.snapshot.Put(l)

	r.Apply(domain.ChangeEvent{Op: domain.OpDelete, OwnerID: "alice", Link: *l})

	if _, ok := r.snapshot.Get("srv-1"); ok {
		t.Error("deleted link must leave the snapshot")
	}
}

func TestApplyInsertEvent(t *testing.T) {
	r := newTestReconciler(t, newFakeRemote())

	l := remoteLink("srv-9", "https://example.com/new", time.Now())
	r.Apply(domain.ChangeEvent{Op: domain.OpInsert, OwnerID: "alice", Link: *l})

	if _, ok := r.snapshot.Get("srv-9"); !ok {
		t.Error("inserted link must appear in the snapshot")
	}
}

// fakeStreamer hands out buffered event channels and remembers them so the
// test can feed events or simulate a dropped connection.
type fakeStreamer struct {
	mu    sync.Mutex
	chans []chan domain.ChangeEvent
}

func (f *fakeStreamer) Subscribe(_ context.Context) (<-chan domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.ChangeEvent, 8)
	f.chans = append(f.chans, ch)
	return ch, nil
}

func (f *fakeStreamer) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeStreamer) channel(i int) chan domain.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chans[i]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFollowAppliesStreamedEvents(t *testing.T) {
	r := newTestReconciler(t, newFakeRemote())
	r.retryDelay = time.Millisecond
	stream := &fakeStreamer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Follow(ctx, stream) }()

	waitFor(t, func() bool { return stream.subscriptions() >= 1 },
		"Follow never subscribed to the change stream")

	l := remoteLink("srv-1", "https://example.com/live", time.Now())
	stream.channel(0) <- domain.ChangeEvent{Op: domain.OpInsert, OwnerID: "alice", Link: *l}

	waitFor(t, func() bool {
		_, ok := r.snapshot.Get("srv-1")
		return ok
	}, "streamed insert never reached the snapshot")

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Follow returned %v, want context.Canceled", err)
	}
}

func TestFollowRebootstrapsAfterStreamLoss(t *testing.T) {
	remote := newFakeRemote()
	r := newTestReconciler(t, remote)
	r.retryDelay = time.Millisecond
	stream := &fakeStreamer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Follow(ctx, stream) }()

	waitFor(t, func() bool { return stream.subscriptions() >= 1 },
		"Follow never subscribed to the change stream")

	// A row lands while the stream is down: Follow is blocked on the
	// channel, so mutating the remote here is safe, and closing the channel
	// afterwards publishes the change to the Follow goroutine.
	remote.links["https://example.com/missed"] = remoteLink("srv-7", "https://example.com/missed", time.Now())
	close(stream.channel(0))

	waitFor(t, func() bool { return stream.subscriptions() >= 2 },
		"Follow never resubscribed after the stream closed")
	waitFor(t, func() bool {
		_, ok := r.snapshot.Get("srv-7")
		return ok
	}, "row created during the outage never reached the snapshot")

	cancel()
	<-done
}
