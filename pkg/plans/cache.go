package plans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"lexsign/custodian/pkg/records"
)

// Cache holds resolved plans for a bounded time. Implementations are
// handed to the Resolver explicitly; there is no process-wide cache.
type Cache interface {
	Get(ctx context.Context, key string) (*records.ResolvedPlan, bool)
	Set(ctx context.Context, key string, plan *records.ResolvedPlan, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// NopCache never caches.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(context.Context, string) (*records.ResolvedPlan, bool) { return nil, false }

// Set discards the plan.
func (NopCache) Set(context.Context, string, *records.ResolvedPlan, time.Duration) {}

// Delete does nothing.
func (NopCache) Delete(context.Context, string) {}

type memoryEntry struct {
	value     *records.ResolvedPlan
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache keyed by scope.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of a live entry. Expired entries are dropped.
func (c *MemoryCache) Get(_ context.Context, key string) (*records.ResolvedPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return clonePlan(e.value), true
}

// Set stores plan until ttl elapses.
func (c *MemoryCache) Set(_ context.Context, key string, plan *records.ResolvedPlan, ttl time.Duration) {
	if plan == nil || ttl <= 0 {
		return
	}
	cp := clonePlan(plan)
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: cp, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// clonePlan copies plan deep enough that the copy shares no feature flag
// map or quota pointer with the original.
func clonePlan(plan *records.ResolvedPlan) *records.ResolvedPlan {
	cp := *plan
	if plan.FeatureFlags != nil {
		cp.FeatureFlags = copyFlags(plan.FeatureFlags)
	}
	q := &cp.Quotas
	for _, limit := range []**int64{
		&q.DocumentsPerMonth, &q.StorageGB, &q.OTPSMSPerMonth,
		&q.EvidenceGenerationsPerMonth, &q.EvidenceCPUSecondsPerMonth,
		&q.Cases, &q.Clients, &q.Users,
	} {
		if *limit != nil {
			v := **limit
			*limit = &v
		}
	}
	return &cp
}

// Delete drops an entry.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// RedisCache shares resolved plans between processes. Errors degrade to
// cache misses so plan resolution never depends on Redis being up.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisCache creates a RedisCache. Keys are stored under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "custodian:plan:"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "plans.cache.redis"),
	}
}

// Get reads and decodes an entry.
func (c *RedisCache) Get(ctx context.Context, key string) (*records.ResolvedPlan, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("plan cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var plan records.ResolvedPlan
	if err := json.Unmarshal(val, &plan); err != nil {
		c.logger.Warn("plan cache entry is corrupt", "key", key, "error", err)
		return nil, false
	}
	return &plan, true
}

// Set encodes and writes an entry with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, plan *records.ResolvedPlan, ttl time.Duration) {
	if plan == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(plan)
	if err != nil {
		c.logger.Warn("failed to marshal plan", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("plan cache write failed", "key", key, "error", err)
	}
}

// Delete removes an entry.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("plan cache delete failed", "key", key, "error", err)
	}
}

// NewRedisClient builds a client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func cacheKey(scope records.Scope) string {
	return fmt.Sprintf("%s:%s", scope.Kind, scope.ID)
}
