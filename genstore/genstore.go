// Package genstore keeps a generation counter per key. Tiers stamp the current
// generation into each entry they write and bump it on Remove, so a value loaded before
// an invalidation can never be written back after it.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. Use LocalGenStore for a single process, or
// RedisGenStore when several replicas share a Remote tier.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes metadata older than retention, if applicable.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
