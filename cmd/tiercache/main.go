// Command tiercache serves the local, remote and hybrid cache tiers over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	gen "github.com/unkn0wn-root/tiercache/genstore"
	asynchook "github.com/unkn0wn-root/tiercache/hooks/async"
	promhooks "github.com/unkn0wn-root/tiercache/hooks/prom"
	"github.com/unkn0wn-root/tiercache/internal/catalog"
	"github.com/unkn0wn-root/tiercache/internal/config"
	"github.com/unkn0wn-root/tiercache/internal/server"
	pr "github.com/unkn0wn-root/tiercache/provider"
	bcp "github.com/unkn0wn-root/tiercache/provider/bigcache"
	rp "github.com/unkn0wn-root/tiercache/provider/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config (empty = defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, flush, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("tiercache exited", tiercache.Fields{"err": err})
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log tiercache.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer a.close()

	hs := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", tiercache.Fields{"addr": cfg.Listen, "remote": cfg.Remote.Driver, "codec": cfg.Codec})
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return hs.Shutdown(sctx)
}

type app struct {
	handler http.Handler
	close   func()
}

// build wires the tiers, invalidator and HTTP façade. The Remote tier doubles as the
// Hybrid's L2, so both read paths share one set of entries and generations. Each read
// path has its own Accessor, so concurrent misses on /cache/remote/k and
// /cache/hybrid/k may each run the loader once; coalescing holds per Accessor.
func build(ctx context.Context, cfg config.Config, log tiercache.Logger, reg prometheus.Registerer) (*app, error) {
	ph, err := promhooks.New(reg, "tiercache")
	if err != nil {
		return nil, err
	}
	hooks := asynchook.New(ph, 1, 4096)

	limits := tiercache.Limits{
		MaxKeyLength:    cfg.Limits.MaxKeyLength,
		MaxPayloadBytes: cfg.Limits.MaxPayloadBytes,
	}
	inner, err := codec.ByName[catalog.Product](cfg.Codec)
	if err != nil {
		hooks.Close()
		return nil, err
	}
	cdc := codec.Limit[catalog.Product]{Inner: inner, MaxDecode: coalesce(cfg.Limits.MaxPayloadBytes, tiercache.DefaultMaxPayloadBytes)}

	p, health, gens, err := newRemoteBackend(ctx, cfg)
	if err != nil {
		hooks.Close()
		return nil, err
	}

	var closers []func(context.Context) error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i](context.Background())
		}
		hooks.Close()
	}
	fail := func(err error) (*app, error) {
		cleanup()
		return nil, err
	}

	remote, err := tiercache.NewRemote[catalog.Product](ctx, tiercache.RemoteOptions[catalog.Product]{
		Provider:    p,
		Codec:       cdc,
		Namespace:   cfg.Namespace,
		Limits:      limits,
		GenStore:    gens,
		PingOnStart: true,
		Logger:      log,
		Hooks:       hooks,
	})
	if err != nil {
		_ = p.Close(ctx)
		if gens != nil {
			_ = gens.Close(ctx)
		}
		return fail(err)
	}
	closers = append(closers, remote.Close)

	newLocal := func() (*tiercache.Local[catalog.Product], error) {
		return tiercache.NewLocal[catalog.Product](tiercache.LocalOptions[catalog.Product]{
			Limits:      limits,
			MaxCost:     cfg.Local.MaxCost,
			NumCounters: cfg.Local.NumCounters,
			Logger:      log,
			Hooks:       hooks,
		})
	}
	local, err := newLocal()
	if err != nil {
		return fail(err)
	}
	closers = append(closers, local.Close)
	l1, err := newLocal()
	if err != nil {
		return fail(err)
	}
	closers = append(closers, l1.Close)

	hybrid, err := tiercache.NewHybrid[catalog.Product](tiercache.HybridOptions[catalog.Product]{
		L1: l1, L2: remote, LocalTTL: cfg.LocalTTL, Logger: log, Hooks: hooks,
	})
	if err != nil {
		return fail(err)
	}

	accOpts := tiercache.AccessorOptions{Logger: log, Hooks: hooks}
	localAcc, err := tiercache.NewAccessor[catalog.Product](local, accOpts)
	if err != nil {
		return fail(err)
	}
	remoteAcc, err := tiercache.NewAccessor[catalog.Product](remote, accOpts)
	if err != nil {
		return fail(err)
	}

	cat := &catalog.Catalog{}
	srv, err := server.New(server.Options{
		Tiers: map[tiercache.Tier]server.Getter{
			tiercache.TierLocal:  localAcc,
			tiercache.TierRemote: remoteAcc,
			tiercache.TierHybrid: hybrid,
		},
		Invalidator: tiercache.NewInvalidator(tiercache.InvalidatorOptions{Logger: log, Hooks: hooks}, local, remote, hybrid),
		Loader:      cat.Load,
		TTL:         cfg.LoadTTL,
		Health:      health,
		Gatherer:    gathererOf(reg),
		Logger:      log,
	})
	if err != nil {
		return fail(err)
	}
	return &app{handler: srv.Handler(), close: cleanup}, nil
}

// newRemoteBackend returns the byte provider, a health probe and, for redis, a shared
// generation store. A nil GenStore means the Remote tier keeps generations in-process.
func newRemoteBackend(ctx context.Context, cfg config.Config) (pr.Provider, func(context.Context) error, gen.GenStore, error) {
	switch cfg.Remote.Driver {
	case "redis":
		p, err := rp.Dial(cfg.Remote.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		var gs gen.GenStore
		if cfg.Remote.Generations == "redis" {
			gs, err = gen.NewRedisGenStore(gen.RedisConfig{
				Client:    p.Client(),
				Namespace: cfg.Namespace,
				TTL:       cfg.Remote.GenTTL,
			})
			if err != nil {
				_ = p.Close(ctx)
				return nil, nil, nil, err
			}
		}
		return p, p.Ping, gs, nil
	case "bigcache":
		bc := cfg.Remote.BigCache
		p, err := bcp.New(ctx, bcp.Config{
			LifeWindow:         bc.LifeWindow,
			Shards:             bc.Shards,
			MaxEntrySize:       bc.MaxEntrySize,
			HardMaxCacheSizeMB: bc.HardMaxCacheSizeMB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return p, nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
	}
}

func gathererOf(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return nil
}

func coalesce(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
