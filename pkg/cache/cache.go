// Package cache provides byte-level response caching for the DICOMweb
// transport with interchangeable backends:
//   - file: On-disk storage for CLI usage
//   - redis: Redis-backed storage for long-running deployments
//   - null: No-op cache for tests or when caching is disabled
//
// Keys are arbitrary strings (typically request URLs); backends are free to
// hash them for storage. Entries carry an optional TTL.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte payloads under string keys.
//
// Get returns (data, true, nil) on a hit, (nil, false, nil) on a miss, and a
// non-nil error only for backend failures. Expired entries count as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
