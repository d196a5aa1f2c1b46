package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/scout-insights/internal/analytics"
	"github.com/xaenox/scout-insights/internal/chat"
	"github.com/xaenox/scout-insights/internal/classifier"
	"github.com/xaenox/scout-insights/internal/insights"
	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"github.com/xaenox/scout-insights/pkg/config"
	"go.uber.org/zap"
)

// demoDays is how much history the in-memory store is seeded with.
const demoDays = 60

// app holds every long-lived component built from the config.
type app struct {
	store      storage.Storage
	analytics  *analytics.Service
	insights   *insights.Generator
	chat       *chat.Orchestrator
	classifier classifier.Classifier
}

func newLogger(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development || verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zcfg.Level = level
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func databaseConfig(c config.DatabaseConfig) storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
		Path:     c.Path,
	}
}

// openStore opens the configured database and, when Redis is configured,
// moves the insight cache there. The in-memory store is seeded with demo data.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	store, err := storage.Open(databaseConfig(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if seeder, ok := storage.AsSeeder(store); ok && cfg.Database.Driver == "memory" {
		if err := storage.Seed(ctx, seeder, storage.DemoDataset(time.Now(), demoDays)); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
		logger.Info("Seeded in-memory store with demo data", zap.Int("days", demoDays))
	}

	if cfg.Redis.Addr == "" {
		return store, nil
	}
	cache, err := storage.NewRedisInsightCache(storage.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Retention: cfg.Redis.Retention,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
	}
	logger.Info("Using Redis insight cache", zap.String("addr", cfg.Redis.Addr))
	return storage.WithInsightCache(store, cache), nil
}

// newProvider builds one provider by kind. A kind without credentials yields
// (nil, nil) so the pair can run on whatever is configured.
func newProvider(cfg *config.Config, kind string, logger *zap.Logger) (llm.Provider, error) {
	if kind == "" {
		return nil, nil
	}
	pc, err := cfg.Provider(kind)
	if err != nil {
		return nil, err
	}
	p, err := llm.New(llm.Config{
		Kind:        kind,
		APIKey:      pc.APIKey,
		Model:       pc.Model,
		BaseURL:     pc.BaseURL,
		MaxTokens:   pc.MaxTokens,
		Temperature: pc.Temperature,
		Timeout:     pc.Timeout,
	}, logger)
	if errors.Is(err, llm.ErrNoProvider) {
		logger.Warn("LLM provider not configured", zap.String("kind", kind), zap.Error(err))
		return nil, nil
	}
	return p, err
}

// newPair orders the configured providers. If the primary is unavailable the
// secondary is promoted.
func newPair(cfg *config.Config, primary, secondary string, logger *zap.Logger) (*llm.Pair, error) {
	first, err := newProvider(cfg, primary, logger)
	if err != nil {
		return nil, err
	}
	second, err := newProvider(cfg, secondary, logger)
	if err != nil {
		return nil, err
	}
	if first == nil {
		first, second = second, nil
	}
	pair := llm.NewPair(first, second, logger)
	if first == nil {
		logger.Warn("No LLM provider available; insight and chat requests will fail")
	} else {
		logger.Info("LLM providers ready", zap.Strings("order", pair.Names()))
	}
	return pair, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	insightPair, err := newPair(cfg, cfg.Insights.Primary, cfg.Insights.Secondary, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	chatPair, err := newPair(cfg, cfg.Chat.Primary, cfg.Chat.Secondary, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	var cls classifier.Classifier = classifier.NewKeywordClassifier(models.ModuleTrends)
	if cfg.Telegram.UseLLMClassifier && insightPair.Primary != nil {
		cls = classifier.NewLLMClassifier(insightPair, cls, logger)
	}

	return &app{
		store:     store,
		analytics: analytics.NewService(store, logger),
		insights: insights.NewGenerator(store, store, insightPair, logger, insights.Options{
			Temperature: llm.Temperature(cfg.Insights.Temperature),
			MaxTokens:   cfg.Insights.MaxTokens,
		}),
		chat: chat.NewOrchestrator(store, store, chatPair, logger, chat.Options{
			Temperature: llm.Temperature(cfg.Chat.Temperature),
			MaxTokens:   cfg.Chat.MaxTokens,
		}),
		classifier: cls,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
