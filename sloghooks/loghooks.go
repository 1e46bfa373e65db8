package sloghooks

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	ServedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	servedCtr   atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(tier tiercache.Tier, key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tiercache.self_heal",
		"tier", tier.String(),
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) DecodeFailed(tier tiercache.Tier, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.decode_failed",
		"tier", tier.String(),
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) WriteFailed(tier tiercache.Tier, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.write_failed",
		"tier", tier.String(),
		"key", h.redact(key),
		"dropped", errors.Is(err, tiercache.ErrWriteDropped),
		"err", err)
}

func (h *Hooks) LoaderFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Info("tiercache.loader_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Served(tier tiercache.Tier, src tiercache.Source) {
	if h.l == nil || !sample(h.opts.ServedEvery, &h.servedCtr) {
		return
	}
	h.l.Debug("tiercache.served",
		"tier", tier.String(),
		"source", string(src))
}

func (h *Hooks) FlightShared(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("tiercache.flight_shared", "key", h.redact(key))
}

func (h *Hooks) InvalidatePartial(key string, failed []tiercache.TierResult) {
	if h.l == nil {
		return
	}
	tiers := make([]string, 0, len(failed))
	for _, r := range failed {
		tiers = append(tiers, r.Tier.String())
	}
	h.l.Error("tiercache.invalidate_partial",
		"key", h.redact(key),
		"failed_tiers", tiers)
}
