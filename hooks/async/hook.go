// Package asynchook moves hook calls off the cache's hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	remote, _ := tiercache.NewRemote[Product](ctx, tiercache.RemoteOptions[Product]{
//	    Namespace: "app:prod:product",
//	    Provider:  provider,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	inner tiercache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if inner == nil {
		inner = tiercache.NopHooks{}
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(t tiercache.Tier, k, r string) { h.try(func() { h.inner.SelfHeal(t, k, r) }) }
func (h *Hooks) DecodeFailed(t tiercache.Tier, k string, err error) {
	h.try(func() { h.inner.DecodeFailed(t, k, err) })
}
func (h *Hooks) WriteFailed(t tiercache.Tier, k string, err error) {
	h.try(func() { h.inner.WriteFailed(t, k, err) })
}
func (h *Hooks) LoaderFailed(k string, err error) { h.try(func() { h.inner.LoaderFailed(k, err) }) }
func (h *Hooks) Served(t tiercache.Tier, src tiercache.Source) {
	h.try(func() { h.inner.Served(t, src) })
}
func (h *Hooks) FlightShared(k string) { h.try(func() { h.inner.FlightShared(k) }) }
func (h *Hooks) InvalidatePartial(k string, failed []tiercache.TierResult) {
	h.try(func() { h.inner.InvalidatePartial(k, failed) })
}
