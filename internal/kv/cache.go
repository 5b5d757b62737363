package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const resolveKeyPrefix = "showpipe:resolve:"

func resolveKey(locale, normalizedTitle string) string {
	return resolveKeyPrefix + strings.ToLower(strings.TrimSpace(locale)) + ":" + normalizedTitle
}

// GetResolve looks up a cached title resolution. A miss or an unreadable
// value returns found=false; the cache is never a correctness dependency.
func (c *Client) GetResolve(ctx context.Context, locale, normalizedTitle string) (int64, bool, error) {
	if c == nil || c.rdb == nil {
		return 0, false, fmt.Errorf("kv client is not initialized")
	}

	raw, err := c.rdb.Get(ctx, resolveKey(locale, normalizedTitle)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get resolve cache: %w", err)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// SetResolve stores a title resolution with the configured TTL.
func (c *Client) SetResolve(ctx context.Context, locale, normalizedTitle string, catalogID int64, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("kv client is not initialized")
	}

	key := resolveKey(locale, normalizedTitle)
	if err := c.rdb.Set(ctx, key, strconv.FormatInt(catalogID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("set resolve cache: %w", err)
	}
	return nil
}
