package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/tiercache/codec"
	gen "github.com/unkn0wn-root/tiercache/genstore"
	"github.com/unkn0wn-root/tiercache/internal/util"
	"github.com/unkn0wn-root/tiercache/internal/wire"
	pr "github.com/unkn0wn-root/tiercache/provider"
)

// RemoteOptions configure the out-of-process tier.
// Only Provider is required.
type RemoteOptions[V any] struct {
	Provider  pr.Provider
	Codec     c.Codec[V] // nil => JSON
	Namespace string     // prefix for provider keys, e.g. "app:prod"

	Limits

	// GenStore holds per-key generations. nil => in-process, which is only correct
	// when a single process writes to the provider; use genstore.RedisGenStore otherwise.
	GenStore gen.GenStore

	// PingOnStart checks connectivity at construction when the provider supports it.
	PingOnStart bool

	Now    func() time.Time
	Logger Logger
	Hooks  Hooks
}

// Remote stores codec-encoded, wire-framed values in a byte Provider.
//
// Unusable entries read as misses: absent, expired, stale generation, corrupt frame
// (deleted on read), or undecodable payload (left in place for readers with a newer
// schema, reported via Hooks.DecodeFailed). Provider failures are never misses; they
// surface as *BackendError.
type Remote[V any] struct {
	p      pr.Provider
	codec  c.Codec[V]
	ns     string
	limits Limits
	gen    gen.GenStore
	now    func() time.Time
	log    Logger
	hooks  Hooks

	closeOnce sync.Once
	closeErr  error
}

var (
	_ Store[int]        = (*Remote[int])(nil)
	_ Generational[int] = (*Remote[int])(nil)
)

func NewRemote[V any](ctx context.Context, opts RemoteOptions[V]) (*Remote[V], error) {
	if opts.Provider == nil {
		return nil, errors.New("tiercache: remote: provider is required")
	}
	limits, err := opts.Limits.withDefaults()
	if err != nil {
		return nil, err
	}
	r := &Remote[V]{
		p:      opts.Provider,
		codec:  coalesce[c.Codec[V]](opts.Codec, c.JSON[V]{}),
		ns:     opts.Namespace,
		limits: limits,
		now:    opts.Now,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.GenStore != nil {
		r.gen = opts.GenStore
	} else {
		r.gen = gen.NewLocalGenStore(defaultGenSweep, defaultGenRetention)
	}
	if opts.PingOnStart {
		if p, ok := opts.Provider.(pr.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, &BackendError{Tier: TierRemote, Op: "ping", Err: err}
			}
		}
	}
	return r, nil
}

func (r *Remote[V]) Tier() Tier { return TierRemote }

func (r *Remote[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, _, ok, err := r.get(ctx, key)
	return v, ok, err
}

// get also returns the frame so Hybrid can backfill L1 with the remaining TTL.
func (r *Remote[V]) get(ctx context.Context, key string) (V, wire.Entry, bool, error) {
	var zero V
	if !r.limits.readable(key) {
		return zero, wire.Entry{}, false, nil
	}
	sk := util.StorageKey(r.ns, key)
	raw, ok, err := r.p.Get(ctx, sk)
	if err != nil {
		return zero, wire.Entry{}, false, r.backendErr("get", key, err)
	}
	if !ok {
		return zero, wire.Entry{}, false, nil
	}

	e, err := wire.DecodeEntry(raw)
	if err != nil {
		r.selfHeal(ctx, key, sk, "corrupt")
		return zero, wire.Entry{}, false, nil
	}
	if e.Expired(r.now()) {
		// providers without per-entry TTL (bigcache) keep expired frames around
		if err := r.p.Del(ctx, sk); err != nil {
			r.log.Debug("remote expired entry delete failed", Fields{"key": key, "err": err})
		}
		return zero, wire.Entry{}, false, nil
	}
	cur, err := r.gen.Snapshot(ctx, key)
	if err != nil {
		return zero, wire.Entry{}, false, r.backendErr("gen_snapshot", key, err)
	}
	if e.Gen != cur {
		r.selfHeal(ctx, key, sk, "gen_mismatch")
		return zero, wire.Entry{}, false, nil
	}
	v, err := r.codec.Decode(e.Payload)
	if err != nil {
		r.hooks.DecodeFailed(TierRemote, key, err)
		r.log.Warn("remote payload decode failed; treating as miss", Fields{"key": key, "err": err})
		return zero, wire.Entry{}, false, nil
	}
	return v, e, true, nil
}

func (r *Remote[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := r.encode(key, value)
	if err != nil {
		return err
	}
	cur, err := r.gen.Snapshot(ctx, key)
	if err != nil {
		return r.backendErr("gen_snapshot", key, err)
	}
	return r.write(ctx, key, payload, cur, ttl)
}

func (r *Remote[V]) SnapshotGen(ctx context.Context, key string) (uint64, error) {
	g, err := r.gen.Snapshot(ctx, key)
	if err != nil {
		return 0, r.backendErr("gen_snapshot", key, err)
	}
	return g, nil
}

func (r *Remote[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	payload, err := r.encode(key, value)
	if err != nil {
		return err
	}
	_, err = r.writeIfGen(ctx, key, payload, observedGen, ttl)
	return err
}

// Remove bumps the generation first, then deletes. Both are attempted; a failed bump
// with a successful delete still leaves the key absent.
func (r *Remote[V]) Remove(ctx context.Context, key string) error {
	if !r.limits.readable(key) {
		return nil
	}
	var bumpErr, delErr error
	if _, err := r.gen.Bump(ctx, key); err != nil {
		bumpErr = r.backendErr("gen_bump", key, err)
	}
	if err := r.p.Del(ctx, util.StorageKey(r.ns, key)); err != nil {
		delErr = r.backendErr("del", key, err)
	}
	if bumpErr != nil && delErr == nil {
		r.log.Warn("remote gen bump failed; entry deleted", Fields{"key": key, "err": bumpErr})
		return nil
	}
	return errors.Join(delErr, bumpErr)
}

func (r *Remote[V]) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		_ = r.gen.Close(ctx)
		r.closeErr = r.p.Close(ctx)
	})
	return r.closeErr
}

// encode validates the key, encodes value and validates the payload size.
func (r *Remote[V]) encode(key string, value V) ([]byte, error) {
	if err := r.limits.checkKey(key); err != nil {
		return nil, err
	}
	payload, err := r.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("tiercache: encode %q: %w", key, err)
	}
	if err := r.limits.checkPayload(key, len(payload)); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeIfGen writes payload only if the key's generation still equals observed.
func (r *Remote[V]) writeIfGen(ctx context.Context, key string, payload []byte, observed uint64, ttl time.Duration) (bool, error) {
	cur, err := r.gen.Snapshot(ctx, key)
	if err != nil {
		return false, r.backendErr("gen_snapshot", key, err)
	}
	if cur != observed {
		r.log.Debug("remote SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observed, "cur": cur})
		return false, nil
	}
	if err := r.write(ctx, key, payload, cur, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Remote[V]) write(ctx context.Context, key string, payload []byte, g uint64, ttl time.Duration) error {
	now := r.now()
	e := wire.Entry{Gen: g, CreatedAt: now, Payload: payload}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	} else {
		ttl = 0
	}
	if err := r.p.Set(ctx, util.StorageKey(r.ns, key), wire.EncodeEntry(e), ttl); err != nil {
		return r.backendErr("set", key, err)
	}
	return nil
}

func (r *Remote[V]) selfHeal(ctx context.Context, key, storageKey, reason string) {
	r.hooks.SelfHeal(TierRemote, key, reason)
	if err := r.p.Del(ctx, storageKey); err != nil {
		r.log.Debug("remote self-heal delete failed", Fields{"key": key, "reason": reason, "err": err})
	}
}

func (r *Remote[V]) backendErr(op, key string, err error) error {
	return &BackendError{Tier: TierRemote, Op: op, Key: key, Err: err}
}
