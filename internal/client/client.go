package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/errclass"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/retry"
)

// ErrAlreadySaved is returned by Capture when the canonical URL is already
// present locally. Nothing is queued; the existing link is returned with it.
var ErrAlreadySaved = errors.New("duplicate link: already saved")

// ErrNotUndoable is returned when an undo arrives after the entry has left
// the pending state.
var ErrNotUndoable = errors.New("link already synced, undo is no longer possible")

// Client drives the device-side capture flow: optimistic local write first,
// durable outbox second, remote delivery last.
type Client struct {
	snapshot *Snapshot
	outbox   *Outbox
	remote   Remote
	owner    string
	policy   retry.Policy
	log      logger.Logger
}

func New(snapshot *Snapshot, outbox *Outbox, remote Remote, owner string, policy retry.Policy, log logger.Logger) *Client {
	return &Client{
		snapshot: snapshot,
		outbox:   outbox,
		remote:   remote,
		owner:    owner,
		policy:   policy,
		log:      log,
	}
}

func (c *Client) Snapshot() *Snapshot { return c.snapshot }
func (c *Client) Outbox() *Outbox     { return c.outbox }

// Capture saves a URL. The link appears in the local snapshot immediately
// with a fallback title; delivery to the remote store happens in FlushOnce
// and may lag arbitrarily while offline. An invalid URL is rejected outright
// and never queued. A canonical URL already present locally is suppressed
// and the existing link returned alongside ErrAlreadySaved.
func (c *Client) Capture(ctx context.Context, rawURL string, spaceID *string) (*domain.Link, error) {
	res, err := canonical.Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}

	if existing, ok := c.snapshot.ByCanonical(res.CanonicalURL); ok {
		return existing, ErrAlreadySaved
	}

	now := time.Now()
	link := &domain.Link{
		LocalID:      newLocalID(),
		OwnerID:      c.owner,
		RawURL:       rawURL,
		CanonicalURL: res.CanonicalURL,
		Domain:       res.Domain,
		Title:        res.Domain,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	link.SpaceID = spaceID

	// Local first: snapshot for instant display, outbox for durability.
	c.snapshot.Put(link)
	if err := c.outbox.Add(domain.OutboxEntry{
		LocalID: link.LocalID,
		Op:      domain.OpKindCreate,
		Link:    link,
	}); err != nil {
		c.snapshot.Delete(link.LocalID)
		return nil, err
	}

	// Best-effort immediate delivery; failures leave the entry queued.
	if err := c.FlushOnce(ctx); err != nil {
		c.log.Debug("capture flush deferred", logger.Error(err))
	}

	// Return whatever the flush left us: the confirmed row if delivery
	// succeeded, the optimistic one otherwise.
	if confirmed, ok := c.snapshot.ByCanonical(res.CanonicalURL); ok {
		return confirmed, nil
	}
	return link, nil
}

// Undo removes a captured link before it reaches the remote store. Only
// pending entries can be undone; once sent, removal is a regular delete.
func (c *Client) Undo(localID string) error {
	entry, ok := c.outbox.Get(localID)
	if !ok || entry.State != domain.EntryPending {
		return ErrNotUndoable
	}
	if err := c.outbox.Remove(localID); err != nil {
		return err
	}
	c.snapshot.Delete(localID)
	return nil
}

// Update applies a partial edit optimistically and queues it for delivery.
func (c *Client) Update(ctx context.Context, id string, patch domain.LinkPatch) error {
	if link, ok := c.snapshot.Get(id); ok {
		patch.Apply(link)
		link.UpdatedAt = time.Now()
		c.snapshot.Put(link)
	}

	if err := c.outbox.Add(domain.OutboxEntry{
		LocalID:  newLocalID(),
		Op:       domain.OpKindUpdate,
		TargetID: id,
		Patch:    &patch,
	}); err != nil {
		return err
	}

	if err := c.FlushOnce(ctx); err != nil {
		c.log.Debug("update flush deferred", logger.Error(err))
	}
	return nil
}

// Delete removes a link optimistically and queues the deletion.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.snapshot.Delete(id)

	if err := c.outbox.Add(domain.OutboxEntry{
		LocalID:  newLocalID(),
		Op:       domain.OpKindDelete,
		TargetID: id,
	}); err != nil {
		return err
	}

	if err := c.FlushOnce(ctx); err != nil {
		c.log.Debug("delete flush deferred", logger.Error(err))
	}
	return nil
}

// FlushOnce walks the pending outbox entries in capture order and attempts
// delivery. Each entry gets the bounded retry policy; exhaustion marks it
// failed but retains it. The first connectivity-class failure stops the walk
// since later entries would hit the same wall.
func (c *Client) FlushOnce(ctx context.Context) error {
	for _, entry := range c.outbox.Pending() {
		err := c.flushEntry(ctx, entry)
		if err == nil {
			continue
		}
		if errclass.IsNetworkError(err) {
			c.log.Info("flush paused, server unreachable",
				logger.Int("queued", len(c.outbox.Pending())))
			return err
		}
	}
	return nil
}

// RetryFailed re-queues every failed entry and flushes.
func (c *Client) RetryFailed(ctx context.Context) error {
	for _, entry := range c.outbox.Failed() {
		if err := c.outbox.Retry(entry.LocalID); err != nil {
			return err
		}
	}
	return c.FlushOnce(ctx)
}

func (c *Client) flushEntry(ctx context.Context, entry domain.OutboxEntry) error {
	if err := c.outbox.MarkSent(entry.LocalID); err != nil {
		return err
	}

	var deliver func(ctx context.Context) error

	switch entry.Op {
	case domain.OpKindCreate:
		deliver = func(ctx context.Context) error {
			saved, created, err := c.remote.CreateLink(ctx, entry.Link)
			if err != nil {
				return err
			}
			if created {
				c.snapshot.Promote(entry.LocalID, saved)
				return c.outbox.MarkConfirmed(entry.LocalID)
			}
			// Another device won the race for this canonical URL. Drop the
			// local pending row and adopt the remote one.
			c.log.Info("duplicate capture resolved against remote row",
				logger.String("canonical_url", entry.Link.CanonicalURL),
				logger.String("remote_id", saved.ID))
			c.snapshot.Promote(entry.LocalID, saved)
			return c.outbox.MarkConflicted(entry.LocalID)
		}

	case domain.OpKindUpdate:
		deliver = func(ctx context.Context) error {
			updated, err := c.remote.UpdateLink(ctx, entry.TargetID, *entry.Patch)
			if err != nil {
				return err
			}
			c.snapshot.Put(updated)
			return c.outbox.MarkConfirmed(entry.LocalID)
		}

	case domain.OpKindDelete:
		deliver = func(ctx context.Context) error {
			if err := c.remote.DeleteLink(ctx, entry.TargetID); err != nil {
				return err
			}
			return c.outbox.MarkConfirmed(entry.LocalID)
		}

	default:
		return c.outbox.MarkFailed(entry.LocalID, fmt.Sprintf("unknown operation %q", entry.Op))
	}

	err := retry.Do(ctx, c.policy, deliver)
	if err == nil {
		return nil
	}

	classified := errclass.Classify(err)
	if errclass.IsNetworkError(err) {
		// Transient: back to pending, retried on the next flush.
		if reqErr := c.outbox.Requeue(entry.LocalID); reqErr != nil {
			return reqErr
		}
		return err
	}

	c.log.Warn("outbox entry permanently failed",
		logger.String("local_id", entry.LocalID),
		logger.String("category", string(classified.Category)),
		logger.Error(err))
	return c.outbox.MarkFailed(entry.LocalID, classified.Message)
}

// newLocalID returns a device-local identifier, never sent to the server as
// a row id.
func newLocalID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("failed to generate local id: %v", err))
	}
	return "local-" + hex.EncodeToString(b[:])
}
