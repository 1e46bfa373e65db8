package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Pinger   = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Dial parses a redis:// or rediss:// URL and returns a provider owning the client.
func Dial(url string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("redis provider: empty url")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis provider: parse url: %w", err)
	}
	return New(Config{Client: goredis.NewClient(opts), CloseClient: true})
}

// Client returns the underlying client, e.g. to share it with a genstore.RedisGenStore.
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // KEEPTTL is -1 in go-redis; we want "no expiry"
	}
	return p.rdb.Set(ctx, key, value, ttl).Err()
}

// Del is idempotent: DEL on a missing key replies 0, not an error.
func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

func (p *Redis) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close releases the underlying client only when this provider owns it.
// Safe to call multiple times.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
