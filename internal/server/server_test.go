package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache"
	promhooks "github.com/unkn0wn-root/tiercache/hooks/prom"
	"github.com/unkn0wn-root/tiercache/internal/catalog"
	rp "github.com/unkn0wn-root/tiercache/provider/redis"
)

type fixture struct {
	srv *httptest.Server
	mr  *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p, err := rp.New(rp.Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}),
		CloseClient: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	hooks, err := promhooks.New(reg, "tiercache")
	if err != nil {
		t.Fatal(err)
	}

	local, err := tiercache.NewLocal[catalog.Product](tiercache.LocalOptions[catalog.Product]{Hooks: hooks})
	if err != nil {
		t.Fatal(err)
	}
	remote, err := tiercache.NewRemote[catalog.Product](ctx, tiercache.RemoteOptions[catalog.Product]{
		Provider: p, Namespace: "srv", Hooks: hooks,
	})
	if err != nil {
		t.Fatal(err)
	}
	l1, err := tiercache.NewLocal[catalog.Product](tiercache.LocalOptions[catalog.Product]{Hooks: hooks})
	if err != nil {
		t.Fatal(err)
	}
	hybrid, err := tiercache.NewHybrid[catalog.Product](tiercache.HybridOptions[catalog.Product]{L1: l1, L2: remote, Hooks: hooks})
	if err != nil {
		t.Fatal(err)
	}
	la, _ := tiercache.NewAccessor[catalog.Product](local, tiercache.AccessorOptions{Hooks: hooks})
	ra, _ := tiercache.NewAccessor[catalog.Product](remote, tiercache.AccessorOptions{Hooks: hooks})
	t.Cleanup(func() {
		_ = local.Close(ctx)
		_ = hybrid.Close(ctx)
	})

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cat := &catalog.Catalog{Now: func() time.Time { return at }}
	s, err := New(Options{
		Tiers: map[tiercache.Tier]Getter{
			tiercache.TierLocal:  la,
			tiercache.TierRemote: ra,
			tiercache.TierHybrid: hybrid,
		},
		Invalidator: tiercache.NewInvalidator(tiercache.InvalidatorOptions{Hooks: hooks}, local, remote, hybrid),
		Loader:      cat.Load,
		TTL:         5 * time.Minute,
		Health:      p.Ping,
		Gatherer:    reg,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, mr: mr}
}

func (f *fixture) do(t *testing.T, method, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func (f *fixture) read(t *testing.T, path string) readResponse {
	t.Helper()
	status, body := f.do(t, http.MethodGet, path)
	if status != http.StatusOK {
		t.Fatalf("GET %s: status=%d body=%s", path, status, body)
	}
	var rr readResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return rr
}

func TestReadThroughEveryTier(t *testing.T) {
	f := newFixture(t)
	for _, tier := range []string{"local", "remote", "hybrid"} {
		key := "product:" + map[string]string{"local": "1", "remote": "2", "hybrid": "3"}[tier]
		first := f.read(t, "/cache/"+tier+"/"+key)
		if first.Source != tiercache.SourceOrigin {
			t.Fatalf("%s: first read source=%q", tier, first.Source)
		}
		second := f.read(t, "/cache/"+tier+"/"+key)
		if second.Source != tiercache.SourceCache || second.Value != first.Value {
			t.Fatalf("%s: second read=%+v first=%+v", tier, second, first)
		}
	}
}

func TestDeleteFansOutRegardlessOfTier(t *testing.T) {
	f := newFixture(t)
	f.read(t, "/cache/local/product:7")
	f.read(t, "/cache/hybrid/product:7")

	status, body := f.do(t, http.MethodDelete, "/cache/remote/product:7")
	if status != http.StatusNoContent {
		t.Fatalf("DELETE status=%d body=%s", status, body)
	}
	if rr := f.read(t, "/cache/local/product:7"); rr.Source != tiercache.SourceOrigin {
		t.Fatalf("local not invalidated: %+v", rr)
	}
	if rr := f.read(t, "/cache/hybrid/product:7"); rr.Source != tiercache.SourceOrigin {
		t.Fatalf("hybrid not invalidated: %+v", rr)
	}
}

func TestStatusMapping(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/cache/memory/product:1", http.StatusBadRequest},
		{http.MethodDelete, "/cache/memory/product:1", http.StatusBadRequest},
		{http.MethodGet, "/cache/hybrid/user:1", http.StatusNotFound},
		{http.MethodGet, "/healthz", http.StatusOK},
	}
	for _, c := range cases {
		if got, body := f.do(t, c.method, c.path); got != c.want {
			t.Fatalf("%s %s: status=%d want %d body=%s", c.method, c.path, got, c.want, body)
		}
	}
}

func TestRemoteOutage(t *testing.T) {
	f := newFixture(t)
	f.read(t, "/cache/local/product:5")
	f.mr.SetError("LOADING Redis is loading the dataset in memory")

	if status, body := f.do(t, http.MethodGet, "/cache/remote/product:5"); status != http.StatusServiceUnavailable {
		t.Fatalf("GET remote during outage: status=%d body=%s", status, body)
	}
	if status, _ := f.do(t, http.MethodGet, "/healthz"); status != http.StatusServiceUnavailable {
		t.Fatalf("healthz during outage: status=%d", status)
	}

	status, body := f.do(t, http.MethodDelete, "/cache/local/product:5")
	if status != http.StatusBadGateway {
		t.Fatalf("DELETE during outage: status=%d body=%s", status, body)
	}
	var ir invalidateResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		t.Fatal(err)
	}
	if ir.Key != "product:5" || len(ir.Tiers) != 3 {
		t.Fatalf("response=%+v", ir)
	}
	if ir.Tiers[0].Tier != "local" || ir.Tiers[0].Error != "" {
		t.Fatalf("local tier should have succeeded: %+v", ir.Tiers[0])
	}
	if ir.Tiers[1].Error == "" || ir.Tiers[2].Error == "" {
		t.Fatalf("remote and hybrid should report errors: %+v", ir.Tiers)
	}

	f.mr.SetError("")
	if rr := f.read(t, "/cache/local/product:5"); rr.Source != tiercache.SourceOrigin {
		t.Fatalf("local tier was not invalidated during the outage: %+v", rr)
	}
}

func TestMetricsExposeHooks(t *testing.T) {
	f := newFixture(t)
	f.read(t, "/cache/hybrid/product:9")
	f.read(t, "/cache/hybrid/product:9")

	status, body := f.do(t, http.MethodGet, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	for _, want := range []string{
		`tiercache_served_total{source="origin",tier="hybrid"} 1`,
		`tiercache_served_total{source="cache",tier="hybrid"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without tiers")
	}
}
