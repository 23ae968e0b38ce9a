package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"hokhau-ai/internal/kb"
	"hokhau-ai/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const versionKey = "chat:response-cache:version"

// ResponseCache stores chat responses in Redis keyed by the normalized
// message plus a version counter. Bumping the version after a knowledge
// reload orphans every cached response at once; orphaned keys simply expire.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewResponseCache(cfg *config.RedisConfig, logger *zap.Logger) (*ResponseCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ResponseCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Get returns the cached response for a message, if any. Errors are treated
// as misses.
func (c *ResponseCache) Get(ctx context.Context, message, chatContext string) (string, bool) {
	key, err := c.responseKey(ctx, message, chatContext)
	if err != nil {
		return "", false
	}

	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Response cache read failed", zap.Error(err))
		}
		return "", false
	}
	return value, true
}

// Set caches a response. Failures are logged and swallowed: the cache is an
// optimization, never a dependency.
func (c *ResponseCache) Set(ctx context.Context, message, chatContext, response string) {
	key, err := c.responseKey(ctx, message, chatContext)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, response, c.ttl).Err(); err != nil {
		c.logger.Warn("Response cache write failed", zap.Error(err))
	}
}

// BumpVersion invalidates every cached response by incrementing the shared
// version counter. Called after each successful knowledge reload.
func (c *ResponseCache) BumpVersion(ctx context.Context) (int64, error) {
	version, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump cache version: %w", err)
	}
	return version, nil
}

func (c *ResponseCache) Close() error {
	return c.client.Close()
}

func (c *ResponseCache) responseKey(ctx context.Context, message, chatContext string) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Result()
	if err == redis.Nil {
		version = "0"
	} else if err != nil {
		c.logger.Warn("Response cache version read failed", zap.Error(err))
		return "", err
	}

	sum := md5.Sum([]byte(version + "|" + kb.Normalize(message) + "|" + kb.Normalize(chatContext)))
	return "chat:response:" + hex.EncodeToString(sum[:]), nil
}
