// Package cache keeps tenant resolutions in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/psds-microservice/cityfix-service/internal/service"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "cityfix:geo:"
	generationKey = "generation"
)

var _ service.ResolutionCache = (*ResolutionCache)(nil)

// ResolutionCache stores one entry per exact coordinate under the current
// registry generation. Old generations are never read again and expire by TTL.
type ResolutionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewResolutionCache(client *redis.Client, ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{client: client, prefix: defaultPrefix, ttl: ttl}
}

// WithPrefix namespaces keys, mainly so tests can share a database.
func (c *ResolutionCache) WithPrefix(prefix string) *ResolutionCache {
	c.prefix = prefix
	return c
}

func (c *ResolutionCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache generation: %w", err)
	}
	return gen, nil
}

func (c *ResolutionCache) Get(ctx context.Context, gen int64, p orb.Point) (service.Resolution, bool, error) {
	raw, err := c.client.Get(ctx, c.key(gen, p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return service.Resolution{}, false, nil
	}
	if err != nil {
		return service.Resolution{}, false, fmt.Errorf("read cached resolution: %w", err)
	}
	var res service.Resolution
	if err := json.Unmarshal(raw, &res); err != nil {
		return service.Resolution{}, false, fmt.Errorf("decode cached resolution: %w", err)
	}
	return res, true, nil
}

func (c *ResolutionCache) Set(ctx context.Context, gen int64, p orb.Point, r service.Resolution) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}
	if err := c.client.Set(ctx, c.key(gen, p), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached resolution: %w", err)
	}
	return nil
}

// Invalidate retires every cached resolution by moving to a new generation.
func (c *ResolutionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.prefix+generationKey).Err(); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}

func (c *ResolutionCache) key(gen int64, p orb.Point) string {
	return c.prefix + strconv.FormatInt(gen, 10) + ":" +
		strconv.FormatFloat(p.Lon(), 'f', -1, 64) + ":" +
		strconv.FormatFloat(p.Lat(), 'f', -1, 64)
}
