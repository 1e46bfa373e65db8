package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/tiercache"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.DecodeFailed(tiercache.TierRemote, "user:secret@example.com", errors.New("bad"))
	out := buf.String()
	if strings.Contains(out, "secret@example.com") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "tiercache.decode_failed") || !strings.Contains(out, "tier=remote") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSelfHealSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{SelfHealEvery: 5, Redact: func(string) string { return "k" }})
	for i := 0; i < 10; i++ {
		h.SelfHeal(tiercache.TierLocal, "product:1", "gen_mismatch")
	}
	if n := strings.Count(buf.String(), "tiercache.self_heal"); n != 2 {
		t.Fatalf("logged %d self-heals, want 2", n)
	}
}

func TestInvalidatePartialListsTiers(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.InvalidatePartial("product:7", []tiercache.TierResult{{Tier: tiercache.TierRemote, Err: errors.New("down")}})
	if !strings.Contains(buf.String(), "failed_tiers=[remote]") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	h := New(nil, Options{})
	h.SelfHeal(tiercache.TierLocal, "k", "corrupt")
	h.InvalidatePartial("k", nil)
}
