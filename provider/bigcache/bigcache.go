// Package bigcache is an in-process byte provider for running the Remote tier without a
// Redis server (single-process development and tests).
//
// BigCache only supports a global LifeWindow, not per-entry TTLs. The Remote tier stores
// the absolute expiry inside every framed entry and enforces it on read, so LifeWindow
// only bounds how long garbage may linger. Set it to at least the longest TTL in use.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration
	Shards             int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores ttl; see package doc.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	return p.c.Set(key, value)
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
