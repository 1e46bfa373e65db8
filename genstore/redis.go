package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares per-key generations across processes and survives restarts.
// With a TTL, a generation key that expires reads as 0 again; choose a TTL longer than
// the longest entry TTL so expired generations cannot resurrect older entries.
type RedisGenStore struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisConfig struct {
	Client      redis.UniversalClient
	Namespace   string
	TTL         time.Duration // 0 disables expiry of generation keys
	CloseClient bool          // set only if this store exclusively owns the client
}

func NewRedisGenStore(cfg RedisConfig) (*RedisGenStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("genstore: nil redis client")
	}
	return &RedisGenStore{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: redis gen parse: %w", err)
	}
	return u, nil
}

// Bump increments the generation. With a TTL, INCR and EXPIRE are pipelined in one
// round trip.
func (s *RedisGenStore) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		return s.rdb.Incr(ctx, k).Uint64()
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires generation keys itself when a TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
