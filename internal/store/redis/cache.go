package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkstash/linkstash/internal/metadata"
)

const (
	// DefaultMetadataTTL is the default TTL for cached extraction results.
	// Page metadata drifts slowly; a day is a fair staleness bound.
	DefaultMetadataTTL = 24 * time.Hour
)

// Cache stores successful extraction results so a URL saved by many owners
// (or re-enriched after repair) is fetched from the origin only once per TTL.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new extraction-result cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Get retrieves a cached extraction result. A cache miss returns (nil, nil).
func (c *Cache) Get(ctx context.Context, canonicalURL string) (*metadata.Metadata, error) {
	data, err := c.client.Get(ctx, MetadataKey(canonicalURL)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached metadata: %w", err)
	}

	var md metadata.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached metadata: %w", err)
	}
	return &md, nil
}

// Save stores an extraction result with the given TTL.
func (c *Cache) Save(ctx context.Context, canonicalURL string, md *metadata.Metadata, ttl time.Duration) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := c.client.Set(ctx, MetadataKey(canonicalURL), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}
	return nil
}

// Invalidate removes a cached extraction result.
func (c *Cache) Invalidate(ctx context.Context, canonicalURL string) error {
	if err := c.client.Del(ctx, MetadataKey(canonicalURL)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached metadata: %w", err)
	}
	return nil
}
