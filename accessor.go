package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type AccessorOptions struct {
	Logger Logger
	Hooks  Hooks
}

// Accessor adds stampede-protected get-or-create to any Store.
//
// Per key, at most one load runs at a time within an Accessor: concurrent misses join
// the in-flight load and receive its result. Use one Accessor per Store instance.
type Accessor[V any] struct {
	store Store[V]
	cas   Generational[V] // nil when store has no generations
	group singleflight.Group
	log   Logger
	hooks Hooks

	inflight atomic.Int64
}

type fillResult[V any] struct {
	v   V
	src Source
}

func NewAccessor[V any](store Store[V], opts AccessorOptions) (*Accessor[V], error) {
	if store == nil {
		return nil, errors.New("tiercache: accessor: store is required")
	}
	a := &Accessor[V]{
		store: store,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if g, ok := store.(Generational[V]); ok {
		a.cas = g
	}
	return a, nil
}

func (a *Accessor[V]) Store() Store[V] { return a.store }

// InFlight returns the number of loads currently running.
func (a *Accessor[V]) InFlight() int { return int(a.inflight.Load()) }

// GetOrCreate returns the cached value for key, or loads, caches and returns it.
//
// Only the loader and ttl of the caller that starts a load are used; callers that join
// it get its result. The load runs on a context that keeps ctx's values but not its
// cancellation, so one caller giving up does not fail the others. When ctx ends first
// this call returns ctx.Err() and the load carries on.
//
// Loader errors are returned verbatim to every joined caller and nothing is cached.
// If caching the loaded value fails (oversized, backend down) the value is still
// returned; the failure goes to Hooks.WriteFailed and the logger.
func (a *Accessor[V]) GetOrCreate(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, Source, error) {
	var zero V
	if load == nil {
		return zero, "", errors.New("tiercache: nil loader")
	}

	v, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return zero, "", err
	}
	if ok {
		a.hooks.Served(a.store.Tier(), SourceCache)
		return v, SourceCache, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.fill(detached, key, load, ttl)
	})

	select {
	case res := <-ch:
		if res.Shared {
			a.hooks.FlightShared(key)
		}
		if res.Err != nil {
			return zero, "", res.Err
		}
		r := res.Val.(fillResult[V])
		a.hooks.Served(a.store.Tier(), r.src)
		return r.v, r.src, nil
	case <-ctx.Done():
		return zero, "", ctx.Err()
	}
}

// fill runs once per flight.
func (a *Accessor[V]) fill(ctx context.Context, key string, load Loader[V], ttl time.Duration) (fillResult[V], error) {
	a.inflight.Add(1)
	defer a.inflight.Add(-1)

	// a previous flight may have filled the key between our miss and this flight
	if v, ok, err := a.store.Get(ctx, key); err != nil {
		return fillResult[V]{}, err
	} else if ok {
		return fillResult[V]{v: v, src: SourceCache}, nil
	}

	var observed uint64
	if a.cas != nil {
		g, err := a.cas.SnapshotGen(ctx, key)
		if err != nil {
			return fillResult[V]{}, err
		}
		observed = g
	}

	v, err := a.runLoader(ctx, key, load)
	if err != nil {
		a.hooks.LoaderFailed(key, err)
		a.log.Debug("loader failed", Fields{"key": key, "err": err})
		return fillResult[V]{}, err
	}

	if a.cas != nil {
		err = a.cas.SetWithGen(ctx, key, v, observed, ttl)
	} else {
		err = a.store.Set(ctx, key, v, ttl)
	}
	if err != nil {
		a.hooks.WriteFailed(a.store.Tier(), key, err)
		a.log.Warn("caching loaded value failed", Fields{"key": key, "tier": a.store.Tier().String(), "err": err})
	}
	return fillResult[V]{v: v, src: SourceOrigin}, nil
}

func (a *Accessor[V]) runLoader(ctx context.Context, key string, load Loader[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return load(ctx, key)
}
