// Package cache provides the request cache used to avoid repeat calls to
// the AI provider for identical inputs. Implementations must be safe for
// concurrent use; entries expire on read, there is no background sweep.
package cache

import (
	"context"
	"time"
)

// TTLs per operation class. Validation results churn fastest, evaluations
// and model answers are the most stable.
const (
	TTLKeyValidation = 10 * time.Minute
	TTLQuestion      = 30 * time.Minute
	TTLEvaluation    = 1 * time.Hour
	TTLModelAnswer   = 1 * time.Hour
	TTLAudio         = 1 * time.Hour
)

type Cache interface {
	// Get returns the stored value and true on a live hit. An expired or
	// absent key returns (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with an absolute expiry of now+ttl,
	// replacing any previous entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear empties all entries.
	Clear(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error
}
