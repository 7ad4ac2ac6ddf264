// Package enrich runs metadata extraction for stored links: it checks the
// retry cooldown, consults the shared result cache, invokes the extractor
// and writes the outcome back to the durable store.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/metadata"
	"github.com/linkstash/linkstash/internal/retry"
)

// DefaultCooldown is the minimum gap between extraction attempts for one
// link. Keeps a link whose origin is down from being hammered on every sync.
const DefaultCooldown = 5 * time.Minute

// LinkStore is the slice of the durable store the enricher needs.
type LinkStore interface {
	GetLink(ctx context.Context, ownerID, id string) (*domain.Link, error)
	TouchMetadataAttempt(ctx context.Context, ownerID, id string) error
	ApplyMetadata(ctx context.Context, ownerID, id string, md *metadata.Metadata) (*domain.Link, error)
	ApplyMetadataFallback(ctx context.Context, ownerID, id string) (*domain.Link, error)
}

// ResultCache caches extraction results by canonical URL. May be nil.
type ResultCache interface {
	Get(ctx context.Context, canonicalURL string) (*metadata.Metadata, error)
	Save(ctx context.Context, canonicalURL string, md *metadata.Metadata, ttl time.Duration) error
}

// Extractor fetches a page and derives its metadata.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*metadata.Metadata, error)
}

type Enricher struct {
	store     LinkStore
	cache     ResultCache
	extractor Extractor
	cooldown  time.Duration
	cacheTTL  time.Duration
	policy    retry.Policy
	log       logger.Logger
}

func New(store LinkStore, cache ResultCache, extractor Extractor, cooldown, cacheTTL time.Duration, log logger.Logger) *Enricher {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Enricher{
		store:     store,
		cache:     cache,
		extractor: extractor,
		cooldown:  cooldown,
		cacheTTL:  cacheTTL,
		policy: retry.Policy{
			Attempts: 2,
			Delay:    2 * time.Second,
		},
		log: log,
	}
}

// Enrich attempts one metadata extraction pass for the link. Already-complete
// links and links still inside the cooldown window return the current row
// untouched. Extraction failure is not an error: the link keeps its fallback
// title, stays incomplete, and becomes eligible again after the cooldown.
func (e *Enricher) Enrich(ctx context.Context, ownerID, id string) (*domain.Link, error) {
	link, err := e.store.GetLink(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if link.MetadataComplete {
		return link, nil
	}
	if link.LastMetadataAttemptAt != nil && time.Since(*link.LastMetadataAttemptAt) < e.cooldown {
		e.log.Debug("enrichment skipped, inside cooldown",
			logger.String("link_id", link.ID),
			logger.Time("last_attempt", *link.LastMetadataAttemptAt))
		return link, nil
	}

	if err := e.store.TouchMetadataAttempt(ctx, ownerID, id); err != nil {
		return nil, err
	}

	// Fetch the URL as submitted. The canonical form is only a dedup key:
	// its lowercased path would 404 on case-sensitive origins.
	md, err := e.lookup(ctx, link.CanonicalURL, canonical.FetchURL(link.RawURL))
	if err != nil {
		var exErr *metadata.ExtractionError
		if errors.As(err, &exErr) {
			e.log.Info("extraction failed, keeping fallback metadata",
				logger.String("link_id", link.ID),
				logger.String("url", link.RawURL),
				logger.String("upstream", exErr.Upstream))
			return e.store.ApplyMetadataFallback(ctx, ownerID, id)
		}
		return nil, err
	}

	return e.store.ApplyMetadata(ctx, ownerID, id, md)
}

// lookup serves the extraction from the shared cache when possible, and
// populates it on a successful fetch. The cache stays keyed by the canonical
// URL so every variant of the same page shares one entry. Cache errors
// degrade to a direct fetch.
func (e *Enricher) lookup(ctx context.Context, canonicalURL, fetchURL string) (*metadata.Metadata, error) {
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, canonicalURL)
		if err != nil {
			e.log.Warn("metadata cache read failed", logger.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	var md *metadata.Metadata
	err := retry.Do(ctx, e.policy, func(ctx context.Context) error {
		var exErr error
		md, exErr = e.extractor.Extract(ctx, fetchURL)
		return exErr
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Save(ctx, canonicalURL, md, e.cacheTTL); err != nil {
			e.log.Warn("metadata cache write failed", logger.Error(err))
		}
	}
	return md, nil
}
