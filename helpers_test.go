package tiercache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	c "github.com/unkn0wn-root/tiercache/codec"
	pr "github.com/unkn0wn-root/tiercache/provider"
	rp "github.com/unkn0wn-root/tiercache/provider/redis"
)

type product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var errDown = errors.New("connection refused")

// memProvider ignores TTLs, like bigcache; expiry is enforced by the wire frame.
type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	down    atomic.Bool
	failDel atomic.Bool
	dels    atomic.Int64
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	if p.down.Load() {
		return nil, false, errDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if p.down.Load() {
		return errDown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = append([]byte(nil), value...)
	return nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	if p.down.Load() || p.failDel.Load() {
		return errDown
	}
	p.dels.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

// fakeClock is a settable time source for frame expiry.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// steppingClock returns each time in turn, then repeats the last one.
type steppingClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (s *steppingClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.times[0]
	if len(s.times) > 1 {
		s.times = s.times[1:]
	}
	return t
}

// recLogger keeps debug messages.
type recLogger struct {
	NopLogger
	mu    sync.Mutex
	debug []string
}

func (l *recLogger) Debug(msg string, _ Fields) {
	l.mu.Lock()
	l.debug = append(l.debug, msg)
	l.mu.Unlock()
}

func (l *recLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.debug {
		if m == msg {
			return true
		}
	}
	return false
}

type recHooks struct {
	NopHooks
	mu       sync.Mutex
	selfHeal []string
	decode   int
	writes   []error
	loader   int
	shared   int
	served   map[Source]int
	partial  [][]TierResult
}

func newRecHooks() *recHooks { return &recHooks{served: make(map[Source]int)} }

func (h *recHooks) SelfHeal(_ Tier, _ string, reason string) {
	h.mu.Lock()
	h.selfHeal = append(h.selfHeal, reason)
	h.mu.Unlock()
}

func (h *recHooks) DecodeFailed(Tier, string, error) {
	h.mu.Lock()
	h.decode++
	h.mu.Unlock()
}

func (h *recHooks) WriteFailed(_ Tier, _ string, err error) {
	h.mu.Lock()
	h.writes = append(h.writes, err)
	h.mu.Unlock()
}

func (h *recHooks) LoaderFailed(string, error) {
	h.mu.Lock()
	h.loader++
	h.mu.Unlock()
}

func (h *recHooks) FlightShared(string) {
	h.mu.Lock()
	h.shared++
	h.mu.Unlock()
}

func (h *recHooks) Served(_ Tier, src Source) {
	h.mu.Lock()
	h.served[src]++
	h.mu.Unlock()
}

func (h *recHooks) InvalidatePartial(_ string, failed []TierResult) {
	h.mu.Lock()
	h.partial = append(h.partial, failed)
	h.mu.Unlock()
}

func newTestLocal[V any](t *testing.T, opt func(*LocalOptions[V])) *Local[V] {
	t.Helper()
	var opts LocalOptions[V]
	if opt != nil {
		opt(&opts)
	}
	l, err := NewLocal[V](opts)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func newTestRemote[V any](t *testing.T, p pr.Provider, opt func(*RemoteOptions[V])) *Remote[V] {
	t.Helper()
	opts := RemoteOptions[V]{Provider: p, Namespace: "test", Codec: c.JSON[V]{}}
	if opt != nil {
		opt(&opts)
	}
	r, err := NewRemote[V](context.Background(), opts)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func newMiniredisProvider(t *testing.T) (*rp.Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	p, err := rp.New(rp.Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: s.Addr(), MaxRetries: -1}),
		CloseClient: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p, s
}

// countingLoader counts calls and the peak number of concurrent calls.
type countingLoader struct {
	calls   atomic.Int64
	running atomic.Int64
	peak    atomic.Int64
	release chan struct{}
	err     error
}

func newCountingLoader() *countingLoader {
	return &countingLoader{release: make(chan struct{})}
}

func (l *countingLoader) load(ctx context.Context, key string) (product, error) {
	l.calls.Add(1)
	n := l.running.Add(1)
	defer l.running.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-l.release
	if l.err != nil {
		return product{}, l.err
	}
	if ctx.Err() != nil {
		return product{}, ctx.Err()
	}
	return product{ID: 7, Name: "Product 7 for " + key, Price: 699.93}, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
