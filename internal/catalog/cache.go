package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianhealth/adjudicator/internal/types"
)

/*
 * Read-through rule cache.
 *
 * Sits in front of any Catalog and caches active rule sets in redis, keyed
 * by rule type. Lifecycle mutations invalidate every key, so the common case
 * after a mutation is one cache miss followed by fresh fills.
 *
 * Correctness is not delegated to the cache: entries carry a short TTL and
 * every redis failure (down, timeout, corrupt entry) falls through to the
 * inner catalog. A stale rule set is tolerated by contract; a failed
 * execution because redis hiccuped is not.
 *
 * The asOf instant is deliberately not part of the key. Rule sets change on
 * mutation, not on the clock, and the effective-window check is re-applied
 * on every read from the cached set below.
 */

const keyPrefix = "adjudicator:rules:active:"

// cacheKeys enumerates every key the cache may write, one per rule type plus
// the untyped set. Fixed enumeration keeps invalidation a single DEL.
var cacheKeys = []string{
	keyPrefix + "all",
	keyPrefix + string(types.RuleTypeValidation),
	keyPrefix + string(types.RuleTypeAdjudication),
	keyPrefix + string(types.RuleTypeCalculation),
	keyPrefix + string(types.RuleTypeNotification),
}

// KV is the slice of redis used by the cache. Narrowed from the go-redis
// client so tests can substitute an in-memory fake.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisKV adapts a go-redis client to the KV interface.
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV wraps a go-redis client.
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// CachedCatalog is a read-through cache decorator over another Catalog.
type CachedCatalog struct {
	inner Catalog
	kv    KV
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedCatalog wraps inner with a redis-backed cache. log may be nil.
func NewCachedCatalog(inner Catalog, kv KV, ttl time.Duration, log *zap.Logger) *CachedCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedCatalog{inner: inner, kv: kv, ttl: ttl, log: log}
}

// ActiveRules serves from cache when possible, filling from the inner
// catalog on miss. Cache failures degrade to the inner catalog.
func (c *CachedCatalog) ActiveRules(ctx context.Context, asOf time.Time, ruleType *types.RuleType) ([]*types.Rule, error) {
	key := cacheKey(ruleType)

	if raw, err := c.kv.Get(ctx, key); err == nil {
		var cached []*types.Rule
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return filterEffective(cached, asOf), nil
		}
		c.log.Warn("corrupt rule cache entry, refilling", zap.String("key", key))
	}

	rules, err := c.inner.ActiveRules(ctx, asOf, ruleType)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(rules); err == nil {
		if err := c.kv.Set(ctx, key, string(encoded), c.ttl); err != nil {
			c.log.Warn("rule cache fill failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rules, nil
}

// Invalidate drops every cached rule set. Called by the lifecycle manager
// after any mutation; failure is logged and tolerated (TTL bounds staleness).
func (c *CachedCatalog) Invalidate(ctx context.Context) {
	if err := c.kv.Del(ctx, cacheKeys...); err != nil {
		c.log.Warn("rule cache invalidation failed", zap.Error(err))
	}
}

func cacheKey(ruleType *types.RuleType) string {
	if ruleType == nil {
		return keyPrefix + "all"
	}
	return keyPrefix + string(*ruleType)
}

// filterEffective re-applies the effective-window check to a cached set.
// Cached entries are keyed by type only, so a rule whose window closed since
// the fill must still be excluded at read time.
func filterEffective(rules []*types.Rule, asOf time.Time) []*types.Rule {
	out := make([]*types.Rule, 0, len(rules))
	for _, r := range rules {
		if r.EffectiveAt(asOf) {
			out = append(out, r)
		}
	}
	return out
}
