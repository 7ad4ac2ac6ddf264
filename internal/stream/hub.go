// Package stream fans the store's change events out to connected devices,
// scoped per owner.
package stream

import (
	"context"
	"sync"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

const subscriberBuffer = 32

// Hub distributes change events to subscribers of the matching owner. The
// stream is best effort: a subscriber that cannot keep up has events dropped
// and is expected to recover with a full pull.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.ChangeEvent
	log    logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[int]chan domain.ChangeEvent),
		log:  log,
	}
}

// Run consumes events until the channel closes or ctx is canceled.
func (h *Hub) Run(ctx context.Context, events <-chan domain.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.publish(ev)
		}
	}
}

// Subscribe registers a new subscriber for the owner's events. The returned
// cancel func must be called when the subscriber goes away; it closes the
// channel.
func (h *Hub) Subscribe(ownerID string) (<-chan domain.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	ch := make(chan domain.ChangeEvent, subscriberBuffer)
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan domain.ChangeEvent)
	}
	h.subs[ownerID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[ownerID][id]; ok {
			delete(h.subs[ownerID], id)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscriptions for the owner.
func (h *Hub) SubscriberCount(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

func (h *Hub) publish(ev domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[ev.OwnerID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping change event for slow subscriber",
				logger.String("owner_id", ev.OwnerID),
				logger.String("link_id", ev.Link.ID))
		}
	}
}
