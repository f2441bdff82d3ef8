// Package cache keeps a per-feed set of persisted article links in Redis so
// repeat ingestion runs can skip the store query when nothing is new.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newsfeed/backend/internal/config"
)

const keyPrefix = "newsfeed:feed:"

type LinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLinkCache connects to Redis and verifies connectivity.
func NewLinkCache(ctx context.Context, cfg config.RedisConfig) (*LinkCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}

	return &LinkCache{client: client, ttl: cfg.LinkTTL}, nil
}

func linksKey(feedID int64) string {
	return fmt.Sprintf("%s%d:links", keyPrefix, feedID)
}

// Known reports, for each link, whether it is recorded for the feed.
func (c *LinkCache) Known(ctx context.Context, feedID int64, links []string) (map[string]bool, error) {
	known := make(map[string]bool, len(links))
	if len(links) == 0 {
		return known, nil
	}

	members := make([]any, len(links))
	for i, link := range links {
		members[i] = link
	}
	res, err := c.client.SMIsMember(ctx, linksKey(feedID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check cached links: %w", err)
	}
	for i, link := range links {
		known[link] = res[i]
	}
	return known, nil
}

// Add records links for the feed and refreshes the key expiry.
func (c *LinkCache) Add(ctx context.Context, feedID int64, links ...string) error {
	if len(links) == 0 {
		return nil
	}

	members := make([]any, len(links))
	for i, link := range links {
		members[i] = link
	}
	key := linksKey(feedID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add cached links: %w", err)
	}
	return nil
}

func (c *LinkCache) Close() error {
	return c.client.Close()
}
