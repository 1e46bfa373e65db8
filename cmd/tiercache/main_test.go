package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/config"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body
}

func TestBuildBigcache(t *testing.T) {
	cfg, err := config.Parse([]byte("remote:\n  driver: bigcache\ncodec: cbor\n"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := build(context.Background(), cfg, tiercache.NopLogger{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	// hybrid shares the remote tier as its L2, so it sees what remote loaded
	for _, c := range []struct{ tier, want string }{
		{"local", "origin"},
		{"remote", "origin"},
		{"hybrid", "cache"},
		{"hybrid", "cache"},
	} {
		code, body := get(t, a.handler, "/cache/"+c.tier+"/product:3")
		if code != http.StatusOK || body["source"] != c.want {
			t.Fatalf("%s: code=%d body=%v, want source %s", c.tier, code, body, c.want)
		}
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache/hybrid/product:3", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE code=%d body=%s", rec.Code, rec.Body)
	}
	if code, body := get(t, a.handler, "/cache/remote/product:3"); body["source"] != "origin" {
		t.Fatalf("after DELETE: code=%d body=%v", code, body)
	}
}

func TestBuildRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.Parse([]byte("remote:\n  url: redis://" + mr.Addr() + "/0\n"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := build(context.Background(), cfg, tiercache.NopLogger{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	if code, body := get(t, a.handler, "/cache/hybrid/product:4"); code != http.StatusOK || body["source"] != "origin" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	if !mr.Exists("tiercache:product:4") {
		t.Fatalf("entry not written to redis; keys=%v", mr.Keys())
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache/local/product:4", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE code=%d", rec.Code)
	}
	if !mr.Exists("gen:tiercache:product:4") {
		t.Fatalf("generation not bumped in redis; keys=%v", mr.Keys())
	}
	if code, _ := get(t, a.handler, "/healthz"); code != http.StatusOK {
		t.Fatalf("healthz=%d", code)
	}
}

func TestBuildFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg, err := config.Parse([]byte("remote:\n  url: redis://" + addr + "/0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := build(context.Background(), cfg, tiercache.NopLogger{}, prometheus.NewRegistry()); err == nil {
		t.Fatal("expected PingOnStart to fail")
	}
}

func TestNewLoggerBackends(t *testing.T) {
	for _, b := range []string{"zap", "logrus", "slog"} {
		l, flush, err := newLogger(config.Log{Backend: b, Level: "warn"})
		if err != nil || l == nil {
			t.Fatalf("%s: %v", b, err)
		}
		flush()
	}
	if _, _, err := newLogger(config.Log{Backend: "zap", Level: "loud"}); err == nil {
		t.Fatal("expected error for a bad level")
	}
}
