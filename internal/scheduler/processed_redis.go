package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSet keeps the processed set in a sorted set scored by insertion
// time, so several replicas can share it and it outlives restarts.
type RedisSet struct {
	client redis.UniversalClient
	key    string
	window time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Window   time.Duration
}

// NewRedisSet connects and pings the server.
func NewRedisSet(ctx context.Context, opts RedisOptions) (*RedisSet, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{opts.Addr},
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisSetWithClient(client, opts.Key, opts.Window), nil
}

func NewRedisSetWithClient(client redis.UniversalClient, key string, window time.Duration) *RedisSet {
	if key == "" {
		key = "triage:processed"
	}
	return &RedisSet{client: client, key: key, window: window}
}

func (s *RedisSet) Contains(ctx context.Context, key string, now time.Time) (bool, error) {
	score, err := s.client.ZScore(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.window <= 0 {
		return true, nil
	}
	return now.Before(time.Unix(int64(score), 0).Add(s.window)), nil
}

func (s *RedisSet) Add(ctx context.Context, key string, now time.Time) error {
	return s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(now.Unix()), Member: key}).Err()
}

func (s *RedisSet) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.window <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.window).Unix()
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", strconv.FormatInt(cutoff, 10)).Result()
	return int(n), err
}

func (s *RedisSet) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	return int(n), err
}

func (s *RedisSet) Close() error {
	return s.client.Close()
}
