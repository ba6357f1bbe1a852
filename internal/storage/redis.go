package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "threadsched/pkg/logx"
)

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// redisStore keeps each pin record under <prefix><task> with no expiry.
type redisStore struct {
	client redisClient
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("pin ledger opened", logx.String("addr", addr), logx.Int("db", cfg.DB))
	return newRedisStore(c, cfg.Prefix, log), nil
}

func newRedisStore(c redisClient, prefix string, log logx.Logger) *redisStore {
	return &redisStore{client: c, prefix: prefix, log: log}
}

func (s *redisStore) key(task string) string { return s.prefix + task }

func (s *redisStore) LoadPin(ctx context.Context, task string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(task)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	id = strings.TrimSpace(id)
	return id, id != "", nil
}

func (s *redisStore) StorePin(ctx context.Context, task, messageID string) error {
	return s.client.Set(ctx, s.key(task), strings.TrimSpace(messageID), 0).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }
