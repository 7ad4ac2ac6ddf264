package client

import (
	"testing"

	"github.com/linkstash/linkstash/internal/domain"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	o, err := NewOutbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewOutbox failed: %v", err)
	}
	return o
}

func TestOutboxPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	o, err := NewOutbox(dir)
	if err != nil {
		t.Fatalf("NewOutbox failed: %v", err)
	}

	if err := o.Add(domain.OutboxEntry{
		LocalID: "local-1",
		Op:      domain.OpKindCreate,
		Link:    &domain.Link{LocalID: "local-1", CanonicalURL: "https://example.com"},
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	reloaded, err := NewOutbox(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	pending := reloaded.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending after reload = %d, want 1", len(pending))
	}
	if pending[0].LocalID != "local-1" {
		t.Errorf("local id = %q, want local-1", pending[0].LocalID)
	}
	if pending[0].Link.CanonicalURL != "https://example.com" {
		t.Errorf("canonical url = %q", pending[0].Link.CanonicalURL)
	}
}

func TestOutboxSentEntriesRevertToPendingOnReload(t *testing.T) {
	dir := t.TempDir()

	o, err := NewOutbox(dir)
	if err != nil {
		t.Fatalf("NewOutbox failed: %v", err)
	}
	if err := o.Add(domain.OutboxEntry{LocalID: "local-1", Op: domain.OpKindCreate}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := o.MarkSent("local-1"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if len(o.Pending()) != 0 {
		t.Fatal("sent entry must not be pending")
	}

	// A crash mid-flight leaves the entry in "sent"; on reload its delivery
	// is unconfirmed and it must go back to pending.
	reloaded, err := NewOutbox(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(reloaded.Pending()) != 1 {
		t.Fatalf("pending after reload = %d, want 1", len(reloaded.Pending()))
	}
}

func TestOutboxLifecycle(t *testing.T) {
	o := newTestOutbox(t)

	if err := o.Add(domain.OutboxEntry{LocalID: "local-1", Op: domain.OpKindCreate}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := o.MarkSent("local-1"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	entry, ok := o.Get("local-1")
	if !ok || entry.State != domain.EntrySent {
		t.Fatalf("state = %v, want sent", entry.State)
	}
	if entry.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", entry.Attempts)
	}

	if err := o.MarkConfirmed("local-1"); err != nil {
		t.Fatalf("MarkConfirmed failed: %v", err)
	}
	if _, ok := o.Get("local-1"); ok {
		t.Error("confirmed entry must be removed")
	}
}

func TestOutboxFailedEntriesAreRetained(t *testing.T) {
	o := newTestOutbox(t)

	if err := o.Add(domain.OutboxEntry{LocalID: "local-1", Op: domain.OpKindCreate}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := o.MarkFailed("local-1", "You don't have access to this item."); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	failed := o.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].LastError == "" {
		t.Error("failed entry must carry its classified error")
	}
	if len(o.Pending()) != 0 {
		t.Error("failed entry must not be pending")
	}

	// Retry resets the entry for another delivery round.
	if err := o.Retry("local-1"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	entry, _ := o.Get("local-1")
	if entry.State != domain.EntryPending || entry.Attempts != 0 || entry.LastError != "" {
		t.Errorf("retried entry = %+v, want reset pending entry", entry)
	}
}

func TestOutboxUnknownEntry(t *testing.T) {
	o := newTestOutbox(t)
	if err := o.MarkConfirmed("nope"); err == nil {
		t.Error("expected error for unknown entry")
	}
}
