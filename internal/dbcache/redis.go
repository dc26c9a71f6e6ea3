package dbcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "feature:"
	sourcePrefix = "source:"
)

// Redis：多实例共享的引用缓存，值为 Entry 的 JSON，键为 feature:<kind>:<id>
// 约束：ttl<=0 时取 1 小时；source:<source> 集合记录该来源的键，随条目一起续期，过期成员在列举时清理
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedis(rc *redis.Client, ttlSec int) *Redis {
	ttl := time.Duration(ttlSec) * time.Second
	if ttlSec <= 0 {
		ttl = 3600 * time.Second
	}
	return &Redis{rc: rc, ttl: ttl}
}

func (r *Redis) Record(ctx context.Context, e Entry) error {
	if e.Feature == nil {
		return ErrNoFeature
	}
	k := e.Key()
	if k == "" {
		return ErrNoID
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyPrefix+k, string(b), r.ttl)
		if e.Source != "" {
			p.SAdd(ctx, sourcePrefix+e.Source, k)
			p.Expire(ctx, sourcePrefix+e.Source, r.ttl)
		}
		return nil
	})
	return err
}

func (r *Redis) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	s, err := r.rc.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return Entry{}, false, nil
	}
	if err != nil {
		logger.L().Warn("dbcache_redis_get_error", "key", key, "err", err)
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return Entry{}, false, err
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return e, true, nil
}

func (r *Redis) Forget(ctx context.Context, key string) error {
	e, ok, err := r.Lookup(ctx, key)
	if err != nil {
		return err
	}
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyPrefix+key)
		if ok && e.Source != "" {
			p.SRem(ctx, sourcePrefix+e.Source, key)
		}
		return nil
	})
	return err
}

// BySource：读取来源集合并批量取值；已过期的成员从集合中移除
func (r *Redis) BySource(ctx context.Context, source string) ([]Entry, error) {
	keys, err := r.rc.SMembers(ctx, sourcePrefix+source).Result()
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	vals, err := r.rc.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			logger.L().Debug("dbcache_redis_decode_skip", "key", keys[i], "err", err)
			continue
		}
		out = append(out, e)
	}
	if len(stale) > 0 {
		if err := r.rc.SRem(ctx, sourcePrefix+source, stale...).Err(); err != nil {
			logger.L().Debug("dbcache_redis_prune_error", "source", source, "err", err)
		}
	}
	return out, nil
}
