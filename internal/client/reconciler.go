package client

import (
	"context"
	"errors"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

// DefaultFollowRetryDelay is the pause before re-pulling and resubscribing
// after the change stream drops.
const DefaultFollowRetryDelay = 2 * time.Second

// Streamer opens the owner's live change stream. The channel closes when the
// connection drops; the caller re-pulls and resubscribes.
type Streamer interface {
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error)
}

// Reconciler aligns the device snapshot with the remote store: a full pull
// on startup and reconnect, then incremental change events. Conflict policy
// is last-write-wins on UpdatedAt; on a tie the remote row wins, since the
// remote store is the source of truth.
type Reconciler struct {
	snapshot   *Snapshot
	outbox     *Outbox
	remote     Remote
	retryDelay time.Duration
	log        logger.Logger
}

func NewReconciler(snapshot *Snapshot, outbox *Outbox, remote Remote, log logger.Logger) *Reconciler {
	return &Reconciler{
		snapshot:   snapshot,
		outbox:     outbox,
		remote:     remote,
		retryDelay: DefaultFollowRetryDelay,
		log:        log,
	}
}

// Bootstrap pulls the owner's full collection and merges it over the local
// snapshot. Local pending captures whose canonical URL the remote already
// holds are discarded in favor of the remote row. Records still carrying
// fallback-only metadata get an enrichment nudge, best effort.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	links, err := r.remote.ListLinks(ctx)
	if err != nil {
		return err
	}

	remoteByCanonical := make(map[string]*domain.Link, len(links))
	for _, l := range links {
		r.merge(l)
		remoteByCanonical[l.CanonicalURL] = l
	}

	// Duplicate suppression: a pending local create the remote already has
	// is a conflict, not a capture waiting to happen.
	for _, entry := range r.outbox.Pending() {
		if entry.Op != domain.OpKindCreate || entry.Link == nil {
			continue
		}
		remote, ok := remoteByCanonical[entry.Link.CanonicalURL]
		if !ok {
			continue
		}
		r.log.Info("suppressing pending capture already saved remotely",
			logger.String("canonical_url", entry.Link.CanonicalURL),
			logger.String("remote_id", remote.ID))
		r.snapshot.Promote(entry.LocalID, remote)
		if err := r.outbox.MarkConflicted(entry.LocalID); err != nil {
			return err
		}
	}

	r.nudgeEnrichment(ctx, links)

	r.log.Info("snapshot reconciled with remote store",
		logger.Int("links", len(links)))
	return nil
}

// Follow keeps the snapshot live until ctx is canceled: a full pull, then
// the change stream folded in event by event. A dropped stream or a failed
// pull waits out the retry delay and starts over with a fresh Bootstrap, so
// events missed during the gap are recovered.
func (r *Reconciler) Follow(ctx context.Context, stream Streamer) error {
	for {
		if err := r.followOnce(ctx, stream); err != nil && ctx.Err() == nil {
			r.log.Warn("change stream lost, reconnecting", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Reconciler) followOnce(ctx context.Context, stream Streamer) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}

	events, err := stream.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("change stream closed")
			}
			r.Apply(ev)
		}
	}
}

// Apply folds one change event into the snapshot.
func (r *Reconciler) Apply(ev domain.ChangeEvent) {
	switch ev.Op {
	case domain.OpDelete:
		r.snapshot.Delete(ev.Link.Key())
	case domain.OpInsert, domain.OpUpdate:
		r.merge(&ev.Link)
	}
}

// merge applies a remote row unless the local copy is strictly newer (an
// optimistic local edit that has not round-tripped yet).
func (r *Reconciler) merge(remote *domain.Link) {
	local, ok := r.snapshot.Get(remote.Key())
	if !ok {
		// The row may still be keyed by its local id from an in-flight
		// capture of the same URL.
		local, ok = r.snapshot.ByCanonical(remote.CanonicalURL)
	}
	if ok {
		if local.UpdatedAt.After(remote.UpdatedAt) {
			r.log.Debug("dropping stale remote row",
				logger.String("link_id", remote.ID),
				logger.Time("local", local.UpdatedAt),
				logger.Time("remote", remote.UpdatedAt))
			return
		}
		if local.Key() != remote.Key() {
			r.snapshot.Delete(local.Key())
		}
	}
	r.snapshot.Put(remote)
}

// nudgeEnrichment asks the server to retry extraction for records that only
// carry fallback metadata. The server enforces the cooldown; failures here
// are logged and forgotten.
func (r *Reconciler) nudgeEnrichment(ctx context.Context, links []*domain.Link) {
	for _, l := range links {
		if l.MetadataComplete && !l.IsFallbackOnly() {
			continue
		}
		if _, err := r.remote.EnrichLink(ctx, l.ID); err != nil {
			r.log.Debug("enrichment nudge failed",
				logger.String("link_id", l.ID),
				logger.Error(err))
		}
	}
}
