package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "cv-shortlist:"

// JudgmentCache stores raw judge responses with a fixed TTL.
type JudgmentCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func New(url string, ttl time.Duration) (*JudgmentCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 2 * time.Second
	}
	return NewWithClient(goredis.NewClient(opts), ttl), nil
}

func NewWithClient(client *goredis.Client, ttl time.Duration) *JudgmentCache {
	return &JudgmentCache{client: client, ttl: ttl}
}

func (c *JudgmentCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *JudgmentCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (c *JudgmentCache) Put(ctx context.Context, key, response string) error {
	if err := c.client.Set(ctx, keyPrefix+key, response, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *JudgmentCache) Close() error {
	return c.client.Close()
}
