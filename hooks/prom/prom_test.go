package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/tiercache"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "tiercache")
	if err != nil {
		t.Fatal(err)
	}

	h.Served(tiercache.TierHybrid, tiercache.SourceOrigin)
	h.Served(tiercache.TierHybrid, tiercache.SourceCache)
	h.Served(tiercache.TierHybrid, tiercache.SourceCache)
	h.SelfHeal(tiercache.TierRemote, "k", "corrupt")
	h.LoaderFailed("k", errors.New("db down"))
	h.InvalidatePartial("k", []tiercache.TierResult{{Tier: tiercache.TierRemote, Err: errors.New("down")}})

	if got := testutil.ToFloat64(h.served.WithLabelValues("hybrid", "cache")); got != 2 {
		t.Fatalf("served cache=%v", got)
	}
	if got := testutil.ToFloat64(h.served.WithLabelValues("hybrid", "origin")); got != 1 {
		t.Fatalf("served origin=%v", got)
	}
	if got := testutil.ToFloat64(h.selfHeal.WithLabelValues("remote", "corrupt")); got != 1 {
		t.Fatalf("self heal=%v", got)
	}
	if got := testutil.ToFloat64(h.loaderFailed); got != 1 {
		t.Fatalf("loader failed=%v", got)
	}
	if got := testutil.ToFloat64(h.invPartial.WithLabelValues("remote")); got != 1 {
		t.Fatalf("invalidate failed=%v", got)
	}
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "tiercache"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, "tiercache"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
