package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
)

const (
	// ChannelLinkEvents is the NOTIFY channel carrying the change stream.
	ChannelLinkEvents = "link_events"

	// uniqueConstraintName is the (owner_id, canonical_url) uniqueness
	// constraint, the sole cross-device concurrency control.
	uniqueConstraintName = "links_owner_canonical_key"
)

var (
	// ErrNotFound is returned when a link does not exist for this owner.
	ErrNotFound = errors.New("link not found")

	// ErrDuplicateLink is returned when the uniqueness constraint rejects a
	// write. Callers treat it as "already saved", not as a failure.
	ErrDuplicateLink = errors.New("duplicate link: already saved")
)

// Store is the durable source of truth for links, with row-level owner
// scoping on every query and an app-level NOTIFY after every mutation.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// NewStore creates a new Postgres-backed link store.
func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log,
	}
}

// EnsureSchema creates the links table and its uniqueness constraint.
// Idempotent; runs at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS links (
		id                       TEXT PRIMARY KEY,
		owner_id                 TEXT NOT NULL,
		raw_url                  TEXT NOT NULL,
		canonical_url            TEXT NOT NULL,
		domain                   TEXT NOT NULL,
		title                    TEXT NOT NULL,
		description              TEXT,
		thumbnail_url            TEXT,
		metadata_complete        BOOLEAN NOT NULL DEFAULT FALSE,
		last_metadata_attempt_at TIMESTAMPTZ,
		space_id                 TEXT,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create links table: %w", err)
	}

	index := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON links (owner_id, canonical_url)`,
		uniqueConstraintName)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create uniqueness constraint: %w", err)
	}

	idx := `CREATE INDEX IF NOT EXISTS links_owner_space_idx ON links (owner_id, space_id)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create space index: %w", err)
	}

	return nil
}

// newID returns a random 16-hex-char identifier.
func newID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("failed to generate id: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// isUniqueViolation reports whether err is the store's duplicate-key error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// notify publishes a change event on the link_events channel. Best effort:
// a failed notify is logged, never surfaced, since the row itself is durable
// and clients recover on their next full pull.
func (s *Store) notify(ctx context.Context, op domain.ChangeOp, link *domain.Link) {
	ev := domain.ChangeEvent{
		Op:      op,
		OwnerID: link.OwnerID,
		Link:    *link,
		At:      time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("failed to marshal change event", logger.Error(err))
		return
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChannelLinkEvents, string(payload)); err != nil {
		s.log.Warn("failed to publish change event",
			logger.String("op", string(op)),
			logger.String("link_id", link.ID),
			logger.Error(err))
	}
}
