package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/retry"
)

// fakeRemote is an in-memory server enforcing per-owner canonical uniqueness.
type fakeRemote struct {
	links   map[string]*domain.Link // by canonical URL
	nextID  int
	failMsg string // when set, every call fails with this message
	creates int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{links: make(map[string]*domain.Link)}
}

func (f *fakeRemote) CreateLink(_ context.Context, link *domain.Link) (*domain.Link, bool, error) {
	f.creates++
	if f.failMsg != "" {
		return nil, false, errors.New(f.failMsg)
	}
	if existing, ok := f.links[link.CanonicalURL]; ok {
		cp := *existing
		return &cp, false, nil
	}
	f.nextID++
	saved := *link
	saved.ID = fmt.Sprintf("srv-%d", f.nextID)
	saved.LocalID = ""
	saved.UpdatedAt = time.Now()
	f.links[saved.CanonicalURL] = &saved
	cp := saved
	return &cp, true, nil
}

func (f *fakeRemote) UpdateLink(_ context.Context, id string, patch domain.LinkPatch) (*domain.Link, error) {
	if f.failMsg != "" {
		return nil, errors.New(f.failMsg)
	}
	for _, l := range f.links {
		if l.ID == id {
			patch.Apply(l)
			l.UpdatedAt = time.Now()
			cp := *l
			return &cp, nil
		}
	}
	return nil, errors.New("link not found")
}

func (f *fakeRemote) DeleteLink(_ context.Context, id string) error {
	if f.failMsg != "" {
		return errors.New(f.failMsg)
	}
	for canonical, l := range f.links {
		if l.ID == id {
			delete(f.links, canonical)
			return nil
		}
	}
	return nil
}

func (f *fakeRemote) ListLinks(_ context.Context) ([]*domain.Link, error) {
	if f.failMsg != "" {
		return nil, errors.New(f.failMsg)
	}
	out := make([]*domain.Link, 0, len(f.links))
	for _, l := range f.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRemote) EnrichLink(_ context.Context, id string) (*domain.Link, error) {
	for _, l := range f.links {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, errors.New("link not found")
}

func newTestClient(t *testing.T, remote Remote) *Client {
	t.Helper()
	outbox, err := NewOutbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewOutbox failed: %v", err)
	}
	policy := retry.Policy{Attempts: 2, Delay: time.Millisecond}
	return New(NewSnapshot(), outbox, remote, "alice", policy, logger.NewNop())
}

func TestCaptureConfirmsAgainstRemote(t *testing.T) {
	remote := newFakeRemote()
	c := newTestClient(t, remote)

	link, err := c.Capture(context.Background(), "https://WWW.Example.com/path/?utm_source=x#frag", nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if link.CanonicalURL != "https://example.com/path" {
		t.Errorf("canonical = %q, want https://example.com/path", link.CanonicalURL)
	}
	if link.ID == "" {
		t.Error("flushed capture must carry the remote id")
	}
	if got := len(c.Outbox().Pending()); got != 0 {
		t.Errorf("pending after confirmed flush = %d, want 0", got)
	}
	if c.Snapshot().Len() != 1 {
		t.Errorf("snapshot len = %d, want 1", c.Snapshot().Len())
	}
}

func TestCaptureInvalidURLIsNeverQueued(t *testing.T) {
	c := newTestClient(t, newFakeRemote())

	if _, err := c.Capture(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected invalid URL error")
	}
	if c.Snapshot().Len() != 0 {
		t.Error("invalid URL must not reach the snapshot")
	}
	if len(c.Outbox().Pending()) != 0 {
		t.Error("invalid URL must not reach the outbox")
	}
}

func TestCaptureSuppressesLocalDuplicate(t *testing.T) {
	remote := newFakeRemote()
	c := newTestClient(t, remote)

	first, err := c.Capture(context.Background(), "https://example.com/a", nil)
	if err != nil {
		t.Fatalf("first capture failed: %v", err)
	}

	// Same page through a tracking-cluttered variant.
	second, err := c.Capture(context.Background(), "https://www.example.com/a?utm_source=tw", nil)
	if !errors.Is(err, ErrAlreadySaved) {
		t.Fatalf("err = %v, want ErrAlreadySaved", err)
	}
	if second.Key() != first.Key() {
		t.Errorf("duplicate capture returned a different link: %q vs %q", second.Key(), first.Key())
	}
	if remote.creates != 1 {
		t.Errorf("remote saw %d creates, want 1", remote.creates)
	}
}

func TestCaptureWhileOfflineStaysQueued(t *testing.T) {
	remote := newFakeRemote()
	remote.failMsg = "dial tcp 10.0.0.1:443: connect: connection refused"
	c := newTestClient(t, remote)

	link, err := c.Capture(context.Background(), "https://example.com/offline", nil)
	if err != nil {
		t.Fatalf("offline capture must still succeed locally: %v", err)
	}
	if link.ID != "" {
		t.Error("unconfirmed capture must not carry a remote id")
	}
	if got := len(c.Outbox().Pending()); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// Connectivity returns; the queued entry drains.
	remote.failMsg = ""
	if err := c.FlushOnce(context.Background()); err != nil {
		t.Fatalf("FlushOnce failed: %v", err)
	}
	if got := len(c.Outbox().Pending()); got != 0 {
		t.Errorf("pending after reconnect = %d, want 0", got)
	}
	synced, ok := c.Snapshot().ByCanonical("https://example.com/offline")
	if !ok || synced.ID == "" {
		t.Error("drained capture must hold the remote id in the snapshot")
	}
}

func TestCaptureDuplicateOnRemoteAdoptsWinningRow(t *testing.T) {
	remote := newFakeRemote()

	// Another device already saved this URL.
	other := newTestClient(t, remote)
	if _, err := other.Capture(context.Background(), "https://example.com/shared", nil); err != nil {
		t.Fatalf("seed capture failed: %v", err)
	}

	c := newTestClient(t, remote)
	link, err := c.Capture(context.Background(), "https://example.com/shared?utm_source=mail", nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if link.ID != "srv-1" {
		t.Errorf("adopted id = %q, want srv-1", link.ID)
	}
	if len(c.Outbox().Pending()) != 0 || len(c.Outbox().Failed()) != 0 {
		t.Error("conflicted entry must be discarded, not retained")
	}
	if remote.creates != 2 {
		t.Errorf("remote saw %d creates, want 2", remote.creates)
	}
	if len(remote.links) != 1 {
		t.Errorf("remote holds %d rows, want 1", len(remote.links))
	}
}

func TestFlushExhaustionRetainsFailedEntry(t *testing.T) {
	remote := newFakeRemote()
	remote.failMsg = "permission denied for table links"
	c := newTestClient(t, remote)

	if _, err := c.Capture(context.Background(), "https://example.com/forbidden", nil); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	failed := c.Outbox().Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1 retained entry", len(failed))
	}
	if failed[0].LastError == "" {
		t.Error("failed entry must carry the classified message")
	}

	// The user retries once the cause is fixed.
	remote.failMsg = ""
	if err := c.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if len(c.Outbox().Failed()) != 0 || len(c.Outbox().Pending()) != 0 {
		t.Error("retried entry must drain")
	}
}

func TestUndoOnlyWhilePending(t *testing.T) {
	remote := newFakeRemote()
	remote.failMsg = "connection refused"
	c := newTestClient(t, remote)

	link, err := c.Capture(context.Background(), "https://example.com/undo", nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if err := c.Undo(link.LocalID); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if c.Snapshot().Len() != 0 {
		t.Error("undone capture must leave the snapshot")
	}
	if len(c.Outbox().Pending()) != 0 {
		t.Error("undone capture must leave the outbox")
	}

	// A confirmed capture cannot be undone.
	remote.failMsg = ""
	confirmed, err := c.Capture(context.Background(), "https://example.com/kept", nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := c.Undo(confirmed.LocalID); !errors.Is(err, ErrNotUndoable) {
		t.Errorf("Undo after confirm = %v, want ErrNotUndoable", err)
	}
}

func TestUpdateIsOptimisticAndDelivered(t *testing.T) {
	remote := newFakeRemote()
	c := newTestClient(t, remote)

	link, err := c.Capture(context.Background(), "https://example.com/edit", nil)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	patch := domain.LinkPatch{Title: domain.SetTo("My Title")}
	if err := c.Update(context.Background(), link.ID, patch); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	local, _ := c.Snapshot().Get(link.ID)
	if local.Title != "My Title" {
		t.Errorf("local title = %q, want My Title", local.Title)
	}
	if remote.links[link.CanonicalURL].Title != "My Title" {
		t.Error("update did not reach the remote store")
	}
}
