package tiercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	gen "github.com/unkn0wn-root/tiercache/genstore"
)

// SizeFunc reports the size of a value in bytes. The Local tier uses it both as the
// ristretto cost and for the payload limit.
type SizeFunc[V any] func(V) int

// LocalOptions configure the in-process tier.
type LocalOptions[V any] struct {
	Limits

	// Size is optional. Without it every entry costs 1, MaxCost counts entries and
	// payload sizes are not checked.
	Size SizeFunc[V]

	MaxCost     int64 // 0 => 100k entries, or 256 MiB when Size is set
	NumCounters int64 // 0 => 10x the expected entry count
	Metrics     bool  // enable ristretto metrics (see Local.Metrics)

	GenStore gen.GenStore // nil => in-process generations
	Logger   Logger
	Hooks    Hooks
}

type localEntry[V any] struct {
	v   V
	gen uint64
}

// Local is the in-process tier: typed values in a ristretto cache with TinyLFU admission
// and per-entry absolute TTL. Expired entries read as misses; ristretto sweeps them in
// the background. Writes are visible to Get as soon as Set returns.
//
// Local does not coalesce concurrent loads; wrap it in an Accessor for that.
type Local[V any] struct {
	c      *ristretto.Cache
	limits Limits
	size   SizeFunc[V]
	gen    gen.GenStore
	log    Logger
	hooks  Hooks

	closeOnce sync.Once
}

var (
	_ Store[int]        = (*Local[int])(nil)
	_ Generational[int] = (*Local[int])(nil)
)

func NewLocal[V any](opts LocalOptions[V]) (*Local[V], error) {
	limits, err := opts.Limits.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.MaxCost < 0 || opts.NumCounters < 0 {
		return nil, fmt.Errorf("tiercache: local: negative MaxCost or NumCounters")
	}

	maxCost := opts.MaxCost
	if maxCost == 0 {
		maxCost = defaultLocalMaxItems
		if opts.Size != nil {
			maxCost = defaultLocalMaxBytes
		}
	}
	counters := opts.NumCounters
	if counters == 0 {
		expected := maxCost
		if opts.Size != nil {
			// assume ~1 KiB average entries when cost is in bytes
			expected = maxCost / 1024
		}
		counters = coalesce(expected*10, int64(1000))
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        counters,
		MaxCost:            maxCost,
		BufferItems:        defaultRistrettoBuffer,
		Metrics:            opts.Metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tiercache: local: %w", err)
	}

	l := &Local[V]{
		c:      c,
		limits: limits,
		size:   opts.Size,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if opts.GenStore != nil {
		l.gen = opts.GenStore
	} else {
		l.gen = gen.NewLocalGenStore(defaultGenSweep, defaultGenRetention)
	}
	return l, nil
}

func (l *Local[V]) Tier() Tier { return TierLocal }

func (l *Local[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !l.limits.readable(key) {
		return zero, false, nil
	}
	raw, ok := l.c.Get(key)
	if !ok {
		return zero, false, nil
	}
	e, ok := raw.(*localEntry[V])
	if !ok {
		l.c.Del(key)
		l.hooks.SelfHeal(TierLocal, key, "unexpected_type")
		return zero, false, nil
	}
	cur, err := l.gen.Snapshot(ctx, key)
	if err != nil {
		// in-process anomaly: degrade to miss
		l.log.Warn("local gen snapshot failed", Fields{"key": key, "err": err})
		return zero, false, nil
	}
	if e.gen != cur {
		l.c.Del(key)
		l.hooks.SelfHeal(TierLocal, key, "gen_mismatch")
		return zero, false, nil
	}
	return e.v, true, nil
}

func (l *Local[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	cost, err := l.validate(key, value)
	if err != nil {
		return err
	}
	cur, err := l.gen.Snapshot(ctx, key)
	if err != nil {
		return fmt.Errorf("tiercache: local gen snapshot: %w", err)
	}
	return l.put(key, value, cur, cost, ttl)
}

func (l *Local[V]) SnapshotGen(ctx context.Context, key string) (uint64, error) {
	return l.gen.Snapshot(ctx, key)
}

func (l *Local[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	cost, err := l.validate(key, value)
	if err != nil {
		return err
	}
	cur, err := l.gen.Snapshot(ctx, key)
	if err != nil {
		return fmt.Errorf("tiercache: local gen snapshot: %w", err)
	}
	if cur != observedGen {
		l.log.Debug("local SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observedGen, "cur": cur})
		return nil
	}
	return l.put(key, value, cur, cost, ttl)
}

func (l *Local[V]) Remove(ctx context.Context, key string) error {
	if !l.limits.readable(key) {
		return nil
	}
	if _, err := l.gen.Bump(ctx, key); err != nil {
		l.log.Warn("local gen bump failed", Fields{"key": key, "err": err})
	}
	l.c.Del(key)
	return nil
}

func (l *Local[V]) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.c.Close()
		_ = l.gen.Close(ctx)
	})
	return nil
}

// Metrics exposes ristretto counters; nil unless LocalOptions.Metrics was set.
func (l *Local[V]) Metrics() *ristretto.Metrics { return l.c.Metrics }

func (l *Local[V]) validate(key string, value V) (int64, error) {
	if err := l.limits.checkKey(key); err != nil {
		return 0, err
	}
	if l.size == nil {
		return 1, nil
	}
	n := l.size(value)
	if err := l.limits.checkPayload(key, n); err != nil {
		return 0, err
	}
	return int64(coalesce(n, 1)), nil
}

func (l *Local[V]) put(key string, value V, g uint64, cost int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !l.c.SetWithTTL(key, &localEntry[V]{v: value, gen: g}, cost, ttl) {
		l.log.Debug("local set dropped", Fields{"key": key})
		return ErrWriteDropped
	}
	// make the write visible to the next Get
	l.c.Wait()
	return nil
}
