// Package promhooks exports cache events as Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache"
)

// Hooks counts events by tier and outcome. Keys are never used as labels.
type Hooks struct {
	served       *prometheus.CounterVec
	selfHeal     *prometheus.CounterVec
	decodeFailed *prometheus.CounterVec
	writeFailed  *prometheus.CounterVec
	loaderFailed prometheus.Counter
	flightShared prometheus.Counter
	invPartial   *prometheus.CounterVec
}

var _ tiercache.Hooks = (*Hooks)(nil)

// New registers the counters with reg under namespace (e.g. "tiercache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	h := &Hooks{
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "served_total",
			Help: "GetOrCreate results by tier and source (cache or origin).",
		}, []string{"tier", "source"}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "self_heal_total",
			Help: "Unusable entries deleted on read.",
		}, []string{"tier", "reason"}),
		decodeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_failed_total",
			Help: "Stored payloads that failed to decode.",
		}, []string{"tier"}),
		writeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "write_failed_total",
			Help: "Writes that were dropped or failed.",
		}, []string{"tier"}),
		loaderFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loader_failed_total",
			Help: "Loader calls that returned an error or panicked.",
		}),
		flightShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flight_shared_total",
			Help: "GetOrCreate calls answered by a shared load.",
		}),
		invPartial: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invalidate_failed_total",
			Help: "Per-tier invalidation failures.",
		}, []string{"tier"}),
	}
	for _, c := range []prometheus.Collector{
		h.served, h.selfHeal, h.decodeFailed, h.writeFailed,
		h.loaderFailed, h.flightShared, h.invPartial,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(t tiercache.Tier, _ string, reason string) {
	h.selfHeal.WithLabelValues(t.String(), reason).Inc()
}

func (h *Hooks) DecodeFailed(t tiercache.Tier, _ string, _ error) {
	h.decodeFailed.WithLabelValues(t.String()).Inc()
}

func (h *Hooks) WriteFailed(t tiercache.Tier, _ string, _ error) {
	h.writeFailed.WithLabelValues(t.String()).Inc()
}

func (h *Hooks) LoaderFailed(string, error) { h.loaderFailed.Inc() }

func (h *Hooks) Served(t tiercache.Tier, src tiercache.Source) {
	h.served.WithLabelValues(t.String(), string(src)).Inc()
}

func (h *Hooks) FlightShared(string) { h.flightShared.Inc() }

func (h *Hooks) InvalidatePartial(_ string, failed []tiercache.TierResult) {
	for _, r := range failed {
		h.invPartial.WithLabelValues(r.Tier.String()).Inc()
	}
}
