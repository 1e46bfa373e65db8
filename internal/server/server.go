// Package server is the HTTP façade over the cache tiers.
//
//	GET    /cache/:tier/:key  read through the tier, loading from the catalog on a miss
//	DELETE /cache/:tier/:key  invalidate key in every tier
//	GET    /healthz
//	GET    /metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/catalog"
)

// Getter is the read side of a tier: a Hybrid, or an Accessor over Local or Remote.
type Getter interface {
	GetOrCreate(ctx context.Context, key string, load tiercache.Loader[catalog.Product], ttl time.Duration) (catalog.Product, tiercache.Source, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type Options struct {
	Tiers       map[tiercache.Tier]Getter
	Invalidator Invalidator
	Loader      tiercache.Loader[catalog.Product]
	TTL         time.Duration // 0 => catalog values never expire

	// Health is called by /healthz; nil => always healthy.
	Health func(ctx context.Context) error
	// Gatherer backs /metrics; nil => the route is not installed.
	Gatherer prometheus.Gatherer

	Logger tiercache.Logger
}

type Server struct {
	tiers  map[tiercache.Tier]Getter
	inv    Invalidator
	load   tiercache.Loader[catalog.Product]
	ttl    time.Duration
	health func(context.Context) error
	log    tiercache.Logger
	router *httprouter.Router
}

type readResponse struct {
	Source tiercache.Source `json:"source"`
	Value  catalog.Product  `json:"value"`
}

type tierStatus struct {
	Tier  string `json:"tier"`
	Error string `json:"error,omitempty"`
}

type invalidateResponse struct {
	Key   string       `json:"key"`
	Tiers []tierStatus `json:"tiers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(opts Options) (*Server, error) {
	if len(opts.Tiers) == 0 {
		return nil, errors.New("server: no tiers")
	}
	if opts.Invalidator == nil || opts.Loader == nil {
		return nil, errors.New("server: invalidator and loader are required")
	}
	s := &Server{
		tiers:  opts.Tiers,
		inv:    opts.Invalidator,
		load:   opts.Loader,
		ttl:    opts.TTL,
		health: opts.Health,
		log:    opts.Logger,
		router: httprouter.New(),
	}
	if s.log == nil {
		s.log = tiercache.NopLogger{}
	}

	s.router.GET("/cache/:tier/:key", s.logged(s.handleGet))
	s.router.DELETE("/cache/:tier/:key", s.logged(s.handleDelete))
	s.router.GET("/healthz", s.logged(s.handleHealth))
	if opts.Gatherer != nil {
		mh := promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
		s.router.Handler(http.MethodGet, "/metrics", mh)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tier, err := tiercache.ParseTier(ps.ByName("tier"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	g, ok := s.tiers[tier]
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("tier %s is not configured", tier)})
		return
	}
	key := ps.ByName("key")

	v, src, err := g.GetOrCreate(r.Context(), key, s.load, s.ttl)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Warn("cache read failed", tiercache.Fields{"tier": tier.String(), "key": key, "status": status, "err": err})
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, readResponse{Source: src, Value: v})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// the tier is validated but invalidation always covers every tier
	if _, err := tiercache.ParseTier(ps.ByName("tier")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	key := ps.ByName("key")

	err := s.inv.Invalidate(r.Context(), key)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var ie *tiercache.InvalidateError
	if !errors.As(err, &ie) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	resp := invalidateResponse{Key: key, Tiers: make([]tierStatus, 0, len(ie.Results))}
	for _, res := range ie.Results {
		ts := tierStatus{Tier: res.Tier.String()}
		if res.Err != nil {
			ts.Error = res.Err.Error()
		}
		resp.Tiers = append(resp.Tiers, ts)
	}
	writeJSON(w, http.StatusBadGateway, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, tiercache.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logged(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, ps)
		s.log.Debug("http request", tiercache.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	}
}
