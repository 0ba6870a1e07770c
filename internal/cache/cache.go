// Package cache implements the two-tier cache used across the hub: a
// process-local LRU with write-time expiry, and an optional distributed
// key/value tier with explicit TTLs. A policy table binds logical data
// classes to tiers; misses that trigger a build share one producer per key.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

// Tier selects which layers a data class is stored in.
type Tier int

const (
	// TierLocal keeps entries only in the process-local LRU.
	TierLocal Tier = iota
	// TierDistributed keeps entries only in the distributed store.
	TierDistributed
	// TierBoth writes through the local LRU into the distributed store.
	TierBoth
)

// Config controls cache sizing and TTLs.
type Config struct {
	Enabled   bool
	LocalSize int
	LocalTTL  time.Duration
	RemoteTTL time.Duration
	Policy    Policy
}

// Cache is the two-tier cache. The zero value is unusable; construct with New.
type Cache struct {
	enabled   bool
	local     *lru.LRU[string, []byte]
	remote    *redis.Client
	remoteTTL time.Duration
	policy    Policy
	group     singleflight.Group
	log       *logger.Logger
}

// New constructs a cache. remote may be nil, which disables the distributed
// tier; classes bound to it fall back to the local tier.
func New(cfg Config, remote *redis.Client, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = 1024
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 5 * time.Minute
	}
	if cfg.RemoteTTL <= 0 {
		cfg.RemoteTTL = 30 * time.Minute
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}

	onEvict := func(string, []byte) { metrics.RecordCacheOp("local", "eviction") }
	return &Cache{
		enabled:   cfg.Enabled,
		local:     lru.NewLRU[string, []byte](cfg.LocalSize, onEvict, cfg.LocalTTL),
		remote:    remote,
		remoteTTL: cfg.RemoteTTL,
		policy:    cfg.Policy,
		log:       log,
	}
}

func (c *Cache) tierFor(class string) Tier {
	t := c.policy.TierFor(class)
	if t != TierLocal && c.remote == nil {
		return TierLocal
	}
	return t
}

// Get returns the raw bytes stored for (class, key).
func (c *Cache) Get(ctx context.Context, class, key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	tier := c.tierFor(class)
	fullKey := class + ":" + key

	if tier != TierDistributed {
		if val, ok := c.local.Get(fullKey); ok {
			metrics.RecordCacheOp("local", "hit")
			return val, true
		}
		metrics.RecordCacheOp("local", "miss")
	}

	if tier != TierLocal && c.remote != nil {
		val, err := c.remote.Get(ctx, fullKey).Bytes()
		if err == nil {
			metrics.RecordCacheOp("remote", "hit")
			if tier == TierBoth {
				c.local.Add(fullKey, val)
			}
			return val, true
		}
		if err != redis.Nil {
			c.log.WithError(err).WithField("key", fullKey).Warn("distributed cache read failed")
		}
		metrics.RecordCacheOp("remote", "miss")
	}

	return nil, false
}

// Put stores raw bytes for (class, key). ttl overrides the configured remote
// TTL when positive; the local tier always uses its write-time expiry.
func (c *Cache) Put(ctx context.Context, class, key string, value []byte, ttl time.Duration) {
	if !c.enabled {
		return
	}

	tier := c.tierFor(class)
	fullKey := class + ":" + key

	if tier != TierDistributed {
		c.local.Add(fullKey, value)
	}
	if tier != TierLocal && c.remote != nil {
		if ttl <= 0 {
			ttl = c.remoteTTL
		}
		if err := c.remote.Set(ctx, fullKey, value, ttl).Err(); err != nil {
			c.log.WithError(err).WithField("key", fullKey).Warn("distributed cache write failed")
		}
	}
}

// Invalidate removes (class, key) from every tier.
func (c *Cache) Invalidate(ctx context.Context, class, key string) {
	if !c.enabled {
		return
	}
	fullKey := class + ":" + key
	c.local.Remove(fullKey)
	if c.remote != nil {
		if err := c.remote.Del(ctx, fullKey).Err(); err != nil {
			c.log.WithError(err).WithField("key", fullKey).Warn("distributed cache delete failed")
		}
	}
}

// GetJSON decodes the cached entry into v. Malformed entries are treated as
// a miss and dropped.
func (c *Cache) GetJSON(ctx context.Context, class, key string, v interface{}) bool {
	raw, ok := c.Get(ctx, class, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.WithError(err).WithField("key", class+":"+key).Warn("malformed cache entry dropped")
		c.Invalidate(ctx, class, key)
		return false
	}
	return true
}

// PutJSON serializes v and stores it for (class, key).
func (c *Cache) PutJSON(ctx context.Context, class, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).WithField("key", class+":"+key).Warn("cache serialization failed")
		return
	}
	c.Put(ctx, class, key, raw, ttl)
}

// GetOrBuild returns the cached entry or invokes build once per key across
// concurrent callers, caching the result.
func (c *Cache) GetOrBuild(ctx context.Context, class, key string, ttl time.Duration, build func(context.Context) ([]byte, error)) ([]byte, error) {
	if c.enabled {
		if val, ok := c.Get(ctx, class, key); ok {
			return val, nil
		}
	}

	val, err, _ := c.group.Do(class+":"+key, func() (interface{}, error) {
		if c.enabled {
			if val, ok := c.Get(ctx, class, key); ok {
				return val, nil
			}
		}
		built, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(ctx, class, key, built, ttl)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// Ping verifies the distributed tier is reachable when configured.
func (c *Cache) Ping(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Ping(ctx).Err()
}
