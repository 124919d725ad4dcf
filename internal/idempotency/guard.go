package idempotency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Guard is an atomic check-and-set over string keys. Acquire returns false when
// the key is already held.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// LowStockKey identifies one low-stock notification: the case, the normalised
// model and the normalised, sorted missing items.
func LowStockKey(caseID, model string, missingItems []string) string {
	items := make([]string, 0, len(missingItems))
	for _, item := range missingItems {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	sort.Strings(items)
	return fmt.Sprintf("lowstock|%s|%s|%s", caseID, strings.ToLower(strings.TrimSpace(model)), strings.Join(items, ","))
}

// WelcomeKey allows one welcome email per case.
func WelcomeKey(caseID string) string {
	return "welcome|" + caseID
}

type MemoryGuard struct {
	c *cache.Cache
}

// NewMemoryGuard keeps keys for ttl; zero keeps them for the process lifetime.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryGuard{c: cache.New(ttl, 10*time.Minute)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	if err := g.c.Add(key, time.Now().UTC(), cache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.c.Delete(key)
	return nil
}

type RedisGuard struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: "onboardline:guard:", ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.prefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
