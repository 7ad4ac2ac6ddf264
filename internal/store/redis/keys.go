package redis

const (
	// KeyPrefixMetadata is the prefix for cached extraction results
	KeyPrefixMetadata = "stash:metadata:"
)

// MetadataKey returns the Redis key for a cached extraction result,
// keyed by canonical URL so every owner shares the same cache entry.
func MetadataKey(canonicalURL string) string {
	return KeyPrefixMetadata + canonicalURL
}
