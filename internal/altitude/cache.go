package altitude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// Cache keeps known heights in Redis, keyed by coordinates rounded to four
// decimals (about 11 m). Unknown heights are not cached.
type Cache struct {
	next Provider
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCache(next Provider, rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{next: next, rdb: rdb, ttl: ttl}
}

func cacheKey(p orb.Point) string {
	return fmt.Sprintf("altitude:%.4f:%.4f", p.Lat(), p.Lon())
}

func (c *Cache) Lookup(ctx context.Context, p orb.Point) (Height, error) {
	key := cacheKey(p)
	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			return Height{Meters: &v}, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Debug("altitude: cache read failed", "key", key, "error", err)
	}

	h, err := c.next.Lookup(ctx, p)
	if err != nil || h.Meters == nil {
		return h, err
	}
	if err := c.rdb.Set(ctx, key, strconv.FormatFloat(*h.Meters, 'f', -1, 64), c.ttl).Err(); err != nil {
		slog.Debug("altitude: cache write failed", "key", key, "error", err)
	}
	return h, nil
}
