package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

const pingInterval = 90 * time.Second

// Listener subscribes to the link_events NOTIFY channel and decodes the
// payloads into change events. The underlying pq listener reconnects on its
// own; a nil notification on the channel signals the reconnect, after which
// clients should expect gaps and re-pull.
type Listener struct {
	pql    *pq.Listener
	log    logger.Logger
	events chan domain.ChangeEvent
}

// NewListener opens a dedicated listening connection to the database.
func NewListener(dsn string, minBackoff, maxBackoff time.Duration, log logger.Logger) (*Listener, error) {
	pql := pq.NewListener(dsn, minBackoff, maxBackoff, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("change stream listener event",
				logger.Int("event", int(ev)),
				logger.Error(err))
		}
	})

	if err := pql.Listen(ChannelLinkEvents); err != nil {
		_ = pql.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChannelLinkEvents, err)
	}

	return &Listener{
		pql:    pql,
		log:    log,
		events: make(chan domain.ChangeEvent, 256),
	}, nil
}

// Start consumes notifications until ctx is canceled. It pings the listening
// connection periodically so silent drops are detected between events.
func (l *Listener) Start(ctx context.Context) {
	go func() {
		defer close(l.events)

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case n := <-l.pql.Notify:
				if n == nil {
					// Connection was re-established; events may have been
					// missed in the gap.
					l.log.Warn("change stream reconnected")
					continue
				}

				var ev domain.ChangeEvent
				if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
					l.log.Warn("failed to decode change event", logger.Error(err))
					continue
				}

				select {
				case l.events <- ev:
				case <-ctx.Done():
					return
				}

			case <-ticker.C:
				if err := l.pql.Ping(); err != nil {
					l.log.Warn("change stream ping failed", logger.Error(err))
				}
			}
		}
	}()
}

// Events returns the decoded change stream. The channel is closed when the
// listener's context is canceled.
func (l *Listener) Events() <-chan domain.ChangeEvent {
	return l.events
}

// Close tears down the listening connection.
func (l *Listener) Close() error {
	return l.pql.Close()
}
