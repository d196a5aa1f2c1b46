package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed insight cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// Retention expires a key's whole log once nothing has been written to it
	// for this long. It must exceed FreshnessWindow.
	Retention time.Duration
	// ScanDepth bounds how many of the newest rows Lookup inspects.
	ScanDepth int64
}

// RedisInsightCache keeps one list per cache key, newest row first.
type RedisInsightCache struct {
	rdb       *goredis.Client
	prefix    string
	retention time.Duration
	scanDepth int64
	logger    *zap.Logger
}

func NewRedisInsightCache(cfg RedisConfig, logger *zap.Logger) (*RedisInsightCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "scout:insights:"
	}
	if cfg.Retention <= FreshnessWindow {
		cfg.Retention = time.Hour
	}
	if cfg.ScanDepth <= 0 {
		cfg.ScanDepth = 20
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisInsightCache(rdb, cfg, logger), nil
}

func newRedisInsightCache(rdb *goredis.Client, cfg RedisConfig, logger *zap.Logger) *RedisInsightCache {
	return &RedisInsightCache{
		rdb:       rdb,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
		scanDepth: cfg.ScanDepth,
		logger:    logger.With(zap.String("component", "redis_insight_cache")),
	}
}

func (c *RedisInsightCache) Lookup(ctx context.Context, key string, notBefore time.Time) (*models.Insight, bool, error) {
	raws, err := c.rdb.LRange(ctx, c.prefix+key, 0, c.scanDepth-1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lrange: %w", err)
	}

	var newest *models.CachedInsight
	for _, raw := range raws {
		var row models.CachedInsight
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			c.logger.Warn("Skipping undecodable cache row", zap.Error(err), zap.String("cache_key", key))
			continue
		}
		if row.CreatedAt.Before(notBefore) {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			r := row
			newest = &r
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	return &newest.Insight, true, nil
}

func (c *RedisInsightCache) Store(ctx context.Context, entry *models.CachedInsight) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache row: %w", err)
	}

	redisKey := c.prefix + entry.CacheKey
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, redisKey, raw)
	pipe.Expire(ctx, redisKey, c.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: %w", err)
	}
	return nil
}

func (c *RedisInsightCache) Close() error {
	return c.rdb.Close()
}
