package domain

import (
	"strings"
	"time"
)

// Link is a saved bookmark owned by a single user.
//
// The remote store is the sole source of truth for links. Each device keeps
// a disposable mirror of its owner's collection (see internal/client).
type Link struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is assigned by the remote store on first durable write.
	// Empty while the link only exists in a device's outbox.
	ID string `json:"id,omitempty"`

	// LocalID is the device-assigned identifier used before the remote
	// store has confirmed the write. Never sent to the server.
	LocalID string `json:"localId,omitempty"`

	// OwnerID is the identity of the capturing user, as provided by the
	// auth layer. Links are only ever visible to their owner.
	OwnerID string `json:"ownerId"`

	// ─────────────────────────────
	// URL
	// ─────────────────────────────

	// RawURL is the URL exactly as submitted.
	RawURL string `json:"rawUrl"`

	// CanonicalURL is the deduplication key. Unique per owner.
	CanonicalURL string `json:"canonicalUrl"`

	// Domain is the display host, www-stripped.
	Domain string `json:"domain"`

	// ─────────────────────────────
	// Metadata (populated by the extractor)
	// ─────────────────────────────

	// Title falls back to Domain when extraction fails or yields nothing.
	Title string `json:"title"`

	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl"`

	// MetadataComplete is true only when extraction produced at least one
	// of Description/ThumbnailURL. A title equal to the domain does not
	// count as complete.
	MetadataComplete bool `json:"metadataComplete"`

	// LastMetadataAttemptAt gates the extraction retry cooldown.
	// Monotonically non-decreasing per record.
	LastMetadataAttemptAt *time.Time `json:"lastMetadataAttemptAt,omitempty"`

	// ─────────────────────────────
	// Grouping & bookkeeping
	// ─────────────────────────────

	// SpaceID is an optional grouping reference.
	SpaceID *string `json:"spaceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the identifier a device cache should index this link by:
// the remote ID once assigned, the local ID before that.
func (l *Link) Key() string {
	if l.ID != "" {
		return l.ID
	}
	return l.LocalID
}

// IsFallbackOnly reports whether the link carries nothing beyond the
// domain-equals-title fallback an earlier, weaker extraction pass may have
// left behind. Such records are eligible for metadata repair even when
// MetadataComplete was (incorrectly) set.
func (l *Link) IsFallbackOnly() bool {
	if l.Description != nil || l.ThumbnailURL != nil {
		return false
	}
	title := strings.ToLower(strings.TrimPrefix(l.Title, "www."))
	domain := strings.ToLower(strings.TrimPrefix(l.Domain, "www."))
	return title == domain
}
