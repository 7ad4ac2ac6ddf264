package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/metadata"
)

const linkColumns = `id, owner_id, raw_url, canonical_url, domain, title,
	description, thumbnail_url, metadata_complete, last_metadata_attempt_at,
	space_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.Link, error) {
	var (
		l           domain.Link
		description sql.NullString
		thumbnail   sql.NullString
		lastAttempt sql.NullTime
		spaceID     sql.NullString
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.RawURL, &l.CanonicalURL, &l.Domain,
		&l.Title, &description, &thumbnail, &l.MetadataComplete, &lastAttempt,
		&spaceID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		l.Description = &description.String
	}
	if thumbnail.Valid {
		l.ThumbnailURL = &thumbnail.String
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		l.LastMetadataAttemptAt = &t
	}
	if spaceID.Valid {
		l.SpaceID = &spaceID.String
	}
	return &l, nil
}

// CreateLink durably inserts a captured link and assigns its id. The
// uniqueness constraint on (owner_id, canonical_url) turns a concurrent
// capture of the same URL into ErrDuplicateLink, which callers resolve by
// adopting the existing row.
func (s *Store) CreateLink(ctx context.Context, link *domain.Link) (*domain.Link, error) {
	id := newID()
	query := fmt.Sprintf(`
		INSERT INTO links (id, owner_id, raw_url, canonical_url, domain, title,
			description, thumbnail_url, metadata_complete, space_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s`, linkColumns)

	row := s.db.QueryRowContext(ctx, query,
		id, link.OwnerID, link.RawURL, link.CanonicalURL, link.Domain,
		link.Title, link.Description, link.ThumbnailURL, link.MetadataComplete,
		link.SpaceID)

	created, err := scanLink(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateLink, err)
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.notify(ctx, domain.OpInsert, created)
	return created, nil
}

// GetLink retrieves one link, scoped to its owner.
func (s *Store) GetLink(ctx context.Context, ownerID, id string) (*domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE owner_id = $1 AND id = $2`, linkColumns)
	link, err := scanLink(s.db.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetLinkByCanonicalURL resolves the owner's existing row for a canonical
// URL, used to adopt the winning record after a duplicate rejection.
func (s *Store) GetLinkByCanonicalURL(ctx context.Context, ownerID, canonicalURL string) (*domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE owner_id = $1 AND canonical_url = $2`, linkColumns)
	link, err := scanLink(s.db.QueryRowContext(ctx, query, ownerID, canonicalURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: canonical %s", ErrNotFound, canonicalURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link by canonical url: %w", err)
	}
	return link, nil
}

// ListLinks returns the owner's full collection, newest first. A non-nil
// spaceID restricts the result to one space.
func (s *Store) ListLinks(ctx context.Context, ownerID string, spaceID *string) ([]*domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE owner_id = $1`, linkColumns)
	args := []any{ownerID}
	if spaceID != nil {
		query += ` AND space_id = $2`
		args = append(args, *spaceID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	links := make([]*domain.Link, 0, 64)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// UpdateLink applies a partial update inside a transaction: the row is read
// under lock, the patch applied in memory (which also enforces the
// metadata-complete invariant), and the full row written back.
func (s *Store) UpdateLink(ctx context.Context, ownerID, id string, patch domain.LinkPatch) (*domain.Link, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM links WHERE owner_id = $1 AND id = $2 FOR UPDATE`, linkColumns)
	link, err := scanLink(tx.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link for update: %w", err)
	}

	patch.Apply(link)
	link.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE links
		SET title = $1, description = $2, thumbnail_url = $3,
			metadata_complete = $4, space_id = $5, updated_at = $6
		WHERE owner_id = $7 AND id = $8`,
		link.Title, link.Description, link.ThumbnailURL,
		link.MetadataComplete, link.SpaceID, link.UpdatedAt, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	s.notify(ctx, domain.OpUpdate, link)
	return link, nil
}

// DeleteLink removes one link, scoped to its owner.
func (s *Store) DeleteLink(ctx context.Context, ownerID, id string) error {
	// Read first so the delete event can carry the final row state.
	link, err := s.GetLink(ctx, ownerID, id)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	link.UpdatedAt = time.Now().UTC()
	s.notify(ctx, domain.OpDelete, link)
	return nil
}

// TouchMetadataAttempt stamps the extraction-attempt time, keeping it
// monotonically non-decreasing even against a back-dated re-arm.
func (s *Store) TouchMetadataAttempt(ctx context.Context, ownerID, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE links
		SET last_metadata_attempt_at = GREATEST(NOW(), COALESCE(last_metadata_attempt_at, NOW()))
		WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to touch metadata attempt: %w", err)
	}
	return nil
}

// ApplyMetadata stores a successful extraction result on the link.
func (s *Store) ApplyMetadata(ctx context.Context, ownerID, id string, md *metadata.Metadata) (*domain.Link, error) {
	query := fmt.Sprintf(`
		UPDATE links
		SET title = $1, description = $2, thumbnail_url = $3,
			metadata_complete = $4, updated_at = NOW()
		WHERE owner_id = $5 AND id = $6
		RETURNING %s`, linkColumns)

	link, err := scanLink(s.db.QueryRowContext(ctx, query,
		md.Title, md.Description, md.ThumbnailURL, md.Complete(), ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply metadata: %w", err)
	}

	s.notify(ctx, domain.OpUpdate, link)
	return link, nil
}

// ApplyMetadataFallback records a failed extraction: the title falls back to
// the domain when empty, description/thumbnail stay as they are, and the
// record is explicitly marked incomplete.
func (s *Store) ApplyMetadataFallback(ctx context.Context, ownerID, id string) (*domain.Link, error) {
	query := fmt.Sprintf(`
		UPDATE links
		SET title = CASE WHEN title = '' THEN domain ELSE title END,
			metadata_complete = FALSE, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING %s`, linkColumns)

	link, err := scanLink(s.db.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply metadata fallback: %w", err)
	}

	s.notify(ctx, domain.OpUpdate, link)
	return link, nil
}

// RearmStaleMetadata re-opens enrichment for records incorrectly marked
// complete with only the domain-equals-title fallback. The attempt timestamp
// is back-dated just past the retry cooldown so the next enrichment pass
// picks the record up immediately. Idempotent: repaired rows no longer match.
func (s *Store) RearmStaleMetadata(ctx context.Context, backdate time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE links
		SET metadata_complete = FALSE,
			last_metadata_attempt_at = NOW() - $1::interval
		WHERE metadata_complete = TRUE
		  AND description IS NULL
		  AND thumbnail_url IS NULL
		  AND LOWER(REGEXP_REPLACE(title, '^www\.', '')) = LOWER(REGEXP_REPLACE(domain, '^www\.', ''))`,
		fmt.Sprintf("%d seconds", int(backdate.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to re-arm stale metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count re-armed rows: %w", err)
	}
	return n, nil
}
