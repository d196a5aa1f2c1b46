package main

import (
	"context"
	"testing"

	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/pkg/config"
	"go.uber.org/zap"
)

func TestNewPairPromotesSecondary(t *testing.T) {
	cfg := &config.Config{Ollama: config.ProviderConfig{BaseURL: "http://localhost:11434"}}

	pair, err := newPair(cfg, "openai", "ollama", zap.NewNop())
	if err != nil {
		t.Fatalf("newPair: %v", err)
	}
	if pair.Primary == nil || pair.Secondary != nil {
		t.Fatalf("expected ollama promoted to primary, got %v", pair.Names())
	}

	if _, err := newPair(cfg, "gemini", "", zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider kind")
	}
}

func TestNewAppWithMemoryStore(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Insights: config.InsightsConfig{Primary: "openai", Secondary: "anthropic"},
		Chat:     config.ChatConfig{Primary: "anthropic", Secondary: "openai"},
	}

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	report, err := a.analytics.Trends(context.Background(), models.DefaultFilters())
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(report.Trends) == 0 {
		t.Error("expected the memory store to be seeded with demo data")
	}
	if got := a.classifier.Classify(context.Background(), "which region sells most"); got != models.ModuleGeographic {
		t.Errorf("expected keyword classifier, got %s", got)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := newLogger(config.LogConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for invalid level")
	}
}
