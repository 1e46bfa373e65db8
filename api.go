package tiercache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier identifies one of the interchangeable backends.
type Tier uint8

const (
	TierLocal Tier = iota + 1
	TierRemote
	TierHybrid
)

var ErrUnknownTier = errors.New("tiercache: unknown tier")

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierRemote:
		return "remote"
	case TierHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier maps "local", "remote" or "hybrid" (case-insensitive) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(s) {
	case "local":
		return TierLocal, nil
	case "remote":
		return TierRemote, nil
	case "hybrid":
		return TierHybrid, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Source tells where a GetOrCreate result came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceOrigin Source = "origin"
)

// NoExpiration keeps an entry until it is removed or evicted. Any ttl <= 0 means the same.
const NoExpiration time.Duration = 0

// Loader produces the value for key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Store is the contract shared by every tier. Implementations are safe for concurrent use.
type Store[V any] interface {
	Tier() Tier

	// Get returns (v, true, nil) on hit and (zero, false, nil) on miss.
	// An error means the backend could not be asked, never a miss.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set writes value with an absolute ttl from now (<= 0: no expiry).
	// Oversized keys or payloads fail with ErrOversizedEntry and nothing is written.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error

	Close(ctx context.Context) error
}

// Generational is implemented by stores that stamp entries with a per-key generation.
// Remove bumps the generation, so SetWithGen with a generation observed before a Remove
// is skipped instead of resurrecting the removed value.
type Generational[V any] interface {
	SnapshotGen(ctx context.Context, key string) (uint64, error)
	SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error
}

// Remover is the slice of Store used by invalidation fan-out.
type Remover interface {
	Tier() Tier
	Remove(ctx context.Context, key string) error
}
