package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
)

const outboxFileName = "outbox.json"

// Outbox is the durable queue of local mutations not yet confirmed by the
// remote store. Every mutation is persisted before the method returns, so a
// crash between capture and flush loses nothing.
type Outbox struct {
	mu      sync.Mutex
	path    string
	entries []domain.OutboxEntry
}

// NewOutbox opens (or creates) the outbox file under dataDir.
func NewOutbox(dataDir string) (*Outbox, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	o := &Outbox{path: filepath.Join(dataDir, outboxFileName)}

	data, err := os.ReadFile(o.path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &o.entries); err != nil {
			return nil, fmt.Errorf("failed to parse outbox: %w", err)
		}
	}

	// Entries stuck in "sent" at load time were in flight during a crash.
	// Their delivery is unconfirmed, so they go back to pending; the server's
	// uniqueness constraint absorbs any double-send of a create.
	for i := range o.entries {
		if o.entries[i].State == domain.EntrySent {
			o.entries[i].State = domain.EntryPending
		}
	}

	return o, nil
}

// Add appends a new pending entry and persists.
func (o *Outbox) Add(entry domain.OutboxEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry.State = domain.EntryPending
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	o.entries = append(o.entries, entry)
	return o.saveLocked()
}

// Pending returns the entries awaiting delivery, in capture order.
func (o *Outbox) Pending() []domain.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []domain.OutboxEntry
	for _, e := range o.entries {
		if e.State == domain.EntryPending {
			out = append(out, e)
		}
	}
	return out
}

// Failed returns the permanently failed entries still held for the user.
func (o *Outbox) Failed() []domain.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []domain.OutboxEntry
	for _, e := range o.entries {
		if e.State == domain.EntryFailed {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry with the given local id.
func (o *Outbox) Get(localID string) (domain.OutboxEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.entries {
		if e.LocalID == localID {
			return e, true
		}
	}
	return domain.OutboxEntry{}, false
}

// MarkSent flips an entry to in-flight and counts the attempt.
func (o *Outbox) MarkSent(localID string) error {
	return o.update(localID, func(e *domain.OutboxEntry) {
		e.State = domain.EntrySent
		e.Attempts++
	})
}

// MarkConfirmed removes the entry: the remote store has acknowledged it.
func (o *Outbox) MarkConfirmed(localID string) error {
	return o.remove(localID)
}

// MarkConflicted removes the entry: the remote already holds this canonical
// URL and the local pending write is discarded in favor of the remote row.
func (o *Outbox) MarkConflicted(localID string) error {
	return o.remove(localID)
}

// MarkFailed retains the entry with its classified error after the retry
// budget is exhausted. Failed entries are never silently dropped; the user
// dismisses or retries them.
func (o *Outbox) MarkFailed(localID, classifiedErr string) error {
	return o.update(localID, func(e *domain.OutboxEntry) {
		e.State = domain.EntryFailed
		e.LastError = classifiedErr
	})
}

// Requeue puts a sent entry back to pending after a transient failure.
func (o *Outbox) Requeue(localID string) error {
	return o.update(localID, func(e *domain.OutboxEntry) {
		e.State = domain.EntryPending
	})
}

// Retry resets a failed entry for another round of delivery attempts.
func (o *Outbox) Retry(localID string) error {
	return o.update(localID, func(e *domain.OutboxEntry) {
		e.State = domain.EntryPending
		e.Attempts = 0
		e.LastError = ""
	})
}

// Remove drops the entry outright (undo, or user dismissing a failure).
func (o *Outbox) Remove(localID string) error {
	return o.remove(localID)
}

func (o *Outbox) update(localID string, fn func(*domain.OutboxEntry)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].LocalID == localID {
			fn(&o.entries[i])
			return o.saveLocked()
		}
	}
	return fmt.Errorf("outbox entry %s not found", localID)
}

func (o *Outbox) remove(localID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].LocalID == localID {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return o.saveLocked()
		}
	}
	return fmt.Errorf("outbox entry %s not found", localID)
}

// saveLocked writes the outbox atomically: full write to a temp file, then
// rename over the live one.
func (o *Outbox) saveLocked() error {
	data, err := json.MarshalIndent(o.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outbox: %w", err)
	}

	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write outbox: %w", err)
	}
	if err := os.Rename(tmp, o.path); err != nil {
		return fmt.Errorf("failed to replace outbox: %w", err)
	}
	return nil
}
