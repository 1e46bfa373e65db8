// Package provider defines the byte store behind the Remote tier.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the []byte
// previously passed to Set for a key. The Remote tier frames every value with
// internal/wire and treats any foreign bytes found under its namespace as corruption.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// Transport or server failures return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}

// Pinger is implemented by providers that can verify connectivity up front.
type Pinger interface {
	Ping(ctx context.Context) error
}
