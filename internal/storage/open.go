package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

// Open builds the store selected by config.Driver: "postgres", "sqlite" or
// "memory". An empty driver means postgres.
func Open(config DatabaseConfig, logger *zap.Logger) (Storage, error) {
	switch config.Driver {
	case "", "postgres":
		return NewPostgresStorage(config, logger)
	case "sqlite":
		return NewSQLiteStorage(config.Path, logger)
	case "memory":
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}

// cacheCloser is an InsightCache that owns a connection.
type cacheCloser interface {
	InsightCache
	Close() error
}

// overlay routes insight cache traffic to a separate cache while chat logging
// and analytics reads stay on the base store.
type overlay struct {
	Storage
	cache cacheCloser
}

// WithInsightCache returns base with its insight cache replaced by cache.
// Closing the result closes both.
func WithInsightCache(base Storage, cache cacheCloser) Storage {
	return &overlay{Storage: base, cache: cache}
}

func (o *overlay) Lookup(ctx context.Context, key string, notBefore time.Time) (*models.Insight, bool, error) {
	return o.cache.Lookup(ctx, key, notBefore)
}

func (o *overlay) Store(ctx context.Context, entry *models.CachedInsight) error {
	return o.cache.Store(ctx, entry)
}

func (o *overlay) Close() error {
	return errors.Join(o.cache.Close(), o.Storage.Close())
}

// Unwrap exposes the base store, e.g. for seeding.
func (o *overlay) Unwrap() Storage {
	return o.Storage
}

// AsSeeder returns the seedable store behind s, if any.
func AsSeeder(s Storage) (Seeder, bool) {
	for {
		if seeder, ok := s.(Seeder); ok {
			return seeder, true
		}
		u, ok := s.(interface{ Unwrap() Storage })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
}
