// Package insights produces narrative insights for dashboard modules, backed
// by an append-only cache and a primary/secondary provider pair.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	// Temperature defaults to 0.7 when nil.
	Temperature *float64
	MaxTokens   int
	// Clock stamps insights and decides cache freshness. Defaults to time.Now.
	Clock func() time.Time
}

type Generator struct {
	cache       storage.InsightCache
	source      storage.AnalyticsSource
	providers   *llm.Pair
	logger      *zap.Logger
	temperature float64
	maxTokens   int
	now         func() time.Time

	inflight singleflight.Group
}

func NewGenerator(cache storage.InsightCache, source storage.AnalyticsSource, providers *llm.Pair, logger *zap.Logger, opts Options) *Generator {
	if opts.Temperature == nil {
		opts.Temperature = llm.Temperature(0.7)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Generator{
		cache:       cache,
		source:      source,
		providers:   providers,
		logger:      logger.With(zap.String("component", "insights")),
		temperature: *opts.Temperature,
		maxTokens:   opts.MaxTokens,
		now:         opts.Clock,
	}
}

// Generate returns a fresh cached insight for req or produces a new one.
// Concurrent calls for the same request share a single upstream generation.
func (g *Generator) Generate(ctx context.Context, req models.InsightRequest) (*models.Insight, error) {
	if req.VibeContext == "" {
		req.VibeContext = req.Filters.VibeContext
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := CacheKey(req)
	if err != nil {
		return nil, err
	}

	// The shared call outlives any single caller's cancellation.
	ch := g.inflight.DoChan(key, func() (any, error) {
		return g.generate(context.WithoutCancel(ctx), req, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers sharing one generation must not share its slices.
		insight := res.Val.(*models.Insight).Clone()
		return &insight, nil
	}
}

func (g *Generator) generate(ctx context.Context, req models.InsightRequest, key string) (*models.Insight, error) {
	logger := g.logger.With(
		zap.String("module", string(req.ActiveModule)),
		zap.String("vibe", string(req.VibeContext)),
		zap.String("cache_key", key))

	cached, ok, err := g.cache.Lookup(ctx, key, g.now().Add(-storage.FreshnessWindow))
	if err != nil {
		logger.Warn("Insight cache lookup failed, treating as miss", zap.Error(err))
	} else if ok {
		logger.Debug("Insight cache hit", zap.String("provider", cached.LLMProvider))
		return cached, nil
	}

	dc, err := BuildContext(ctx, g.source, req.ActiveModule, req.Filters)
	if err != nil {
		return nil, err
	}
	prompt, err := BuildPrompt(req.ActiveModule, req.VibeContext, dc)
	if err != nil {
		return nil, err
	}

	insight, provider, err := llm.Run(ctx, g.providers, func(ctx context.Context, p llm.Provider) (*models.Insight, error) {
		return g.ask(ctx, p, prompt)
	})
	if err != nil {
		logger.Error("Insight generation failed", zap.Error(err))
		return nil, fmt.Errorf("generating insight: %w", err)
	}

	entry := &models.CachedInsight{
		CacheKey:       key,
		ModuleType:     req.ActiveModule,
		Provider:       provider,
		Prompt:         prompt,
		Insight:        *insight,
		VibeContext:    req.VibeContext,
		TokensUsed:     insight.TokensUsed,
		ResponseTimeMs: insight.ResponseTimeMs,
		CreatedAt:      insight.Timestamp,
	}
	if err := g.cache.Store(ctx, entry); err != nil {
		logger.Error("Failed to store insight in cache", zap.Error(err), zap.String("provider", provider))
	}

	logger.Info("Generated insight",
		zap.String("provider", provider),
		zap.Int("tokens_used", insight.TokensUsed),
		zap.Int64("response_time_ms", insight.ResponseTimeMs))
	return insight, nil
}

// ask runs one provider call. Only the primary is asked for JSON mode.
func (g *Generator) ask(ctx context.Context, p llm.Provider, prompt string) (*models.Insight, error) {
	start := time.Now()
	resp, err := p.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: llm.Temperature(g.temperature),
		MaxTokens:   g.maxTokens,
		JSONMode:    p == g.providers.Primary,
	})
	if err != nil {
		return nil, err
	}

	insight, err := ParseInsight(resp.Text)
	if err != nil {
		g.logger.Warn("Provider returned malformed insight",
			zap.String("provider", p.Name()),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	insight.LLMProvider = p.Name()
	insight.Timestamp = g.now()
	insight.TokensUsed = resp.TokensUsed
	insight.ResponseTimeMs = time.Since(start).Milliseconds()
	return insight, nil
}
