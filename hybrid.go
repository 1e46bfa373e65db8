package tiercache

import (
	"context"
	"errors"
	"time"
)

// HybridOptions configure a Hybrid. L1 and L2 are required.
type HybridOptions[V any] struct {
	L1 *Local[V]
	L2 *Remote[V]

	// LocalTTL caps how long an entry lives in L1, so replicas that missed an
	// invalidation converge within this bound. 0 => same TTL as L2.
	LocalTTL time.Duration

	Logger Logger
	Hooks  Hooks
}

// Hybrid fronts a Remote (L2) with a Local (L1).
//
// Get checks L1, then L2; an L2 hit is copied into L1 for the entry's remaining
// lifetime. Set and SetWithGen validate against both tiers before writing anything,
// then write L2 followed by L1. GetOrCreate is stampede-protected.
//
// Close closes both tiers.
type Hybrid[V any] struct {
	l1       *Local[V]
	l2       *Remote[V]
	localTTL time.Duration
	log      Logger
	acc      *Accessor[V]
}

var (
	_ Store[int]        = (*Hybrid[int])(nil)
	_ Generational[int] = (*Hybrid[int])(nil)
)

func NewHybrid[V any](opts HybridOptions[V]) (*Hybrid[V], error) {
	if opts.L1 == nil || opts.L2 == nil {
		return nil, errors.New("tiercache: hybrid: L1 and L2 are required")
	}
	if opts.LocalTTL < 0 {
		return nil, errors.New("tiercache: hybrid: negative LocalTTL")
	}
	h := &Hybrid[V]{
		l1:       opts.L1,
		l2:       opts.L2,
		localTTL: opts.LocalTTL,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
	}
	acc, err := NewAccessor[V](h, AccessorOptions{Logger: opts.Logger, Hooks: opts.Hooks})
	if err != nil {
		return nil, err
	}
	h.acc = acc
	return h, nil
}

func (h *Hybrid[V]) Tier() Tier { return TierHybrid }

// L1 and L2 expose the underlying tiers, mainly for tests and diagnostics.
func (h *Hybrid[V]) L1() *Local[V]  { return h.l1 }
func (h *Hybrid[V]) L2() *Remote[V] { return h.l2 }

func (h *Hybrid[V]) Get(ctx context.Context, key string) (V, bool, error) {
	if v, ok, err := h.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, e, ok, err := h.l2.get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	ttl := NoExpiration
	if !e.ExpiresAt.IsZero() {
		ttl = e.Remaining(h.l2.now())
		if ttl <= 0 {
			// expired after L2 accepted it; serve once, keep it out of L1
			return v, true, nil
		}
	}
	if err := h.l1.Set(ctx, key, v, h.l1TTL(ttl)); err != nil {
		h.log.Debug("hybrid L1 backfill failed", Fields{"key": key, "err": err})
	}
	return v, true, nil
}

// GetOrCreate is the stampede-protected read path: L1, L2, then load once and write
// through to both tiers.
func (h *Hybrid[V]) GetOrCreate(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, Source, error) {
	return h.acc.GetOrCreate(ctx, key, load, ttl)
}

// Set writes L2 then L1. An L1 failure (ErrWriteDropped) is returned even though
// L2 already holds the value.
func (h *Hybrid[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := h.validate(key, value)
	if err != nil {
		return err
	}
	g, err := h.l2.SnapshotGen(ctx, key)
	if err != nil {
		return err
	}
	if err := h.l2.write(ctx, key, payload, g, ttl); err != nil {
		return err
	}
	return h.l1.Set(ctx, key, value, h.l1TTL(ttl))
}

func (h *Hybrid[V]) SnapshotGen(ctx context.Context, key string) (uint64, error) {
	return h.l2.SnapshotGen(ctx, key)
}

func (h *Hybrid[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	payload, err := h.validate(key, value)
	if err != nil {
		return err
	}
	written, err := h.l2.writeIfGen(ctx, key, payload, observedGen, ttl)
	if err != nil || !written {
		return err
	}
	return h.l1.Set(ctx, key, value, h.l1TTL(ttl))
}

// Remove deletes from both tiers; both are attempted even if one fails.
func (h *Hybrid[V]) Remove(ctx context.Context, key string) error {
	return errors.Join(h.l1.Remove(ctx, key), h.l2.Remove(ctx, key))
}

func (h *Hybrid[V]) Close(ctx context.Context) error {
	return errors.Join(h.l1.Close(ctx), h.l2.Close(ctx))
}

// validate runs every write check of both tiers so a rejected write leaves no state.
func (h *Hybrid[V]) validate(key string, value V) ([]byte, error) {
	if _, err := h.l1.validate(key, value); err != nil {
		return nil, err
	}
	return h.l2.encode(key, value)
}

func (h *Hybrid[V]) l1TTL(ttl time.Duration) time.Duration {
	if h.localTTL <= 0 {
		return ttl
	}
	if ttl <= 0 || ttl > h.localTTL {
		return h.localTTL
	}
	return ttl
}
