package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
)

// Row caps bound the size of each module's prompt context.
const (
	TrendContextRows      = 30
	ProductContextRows    = 20
	BehaviorContextRows   = 100
	GeographicContextRows = 10
)

const systemPrompt = "You are a Philippine retail analytics expert specializing in sari-sari store insights."

var vibeDirectives = map[models.VibeContext]string{
	models.VibeIntent:  "Focus on strategic intentions, goals, and forward-looking opportunities.",
	models.VibeTension: "Highlight challenges, conflicts, competitive pressures, and areas needing attention.",
	models.VibeEquity:  "Emphasize brand value, customer loyalty, market position, and competitive advantages.",
}

// VibeDirective returns the framing instruction for a vibe context.
func VibeDirective(v models.VibeContext) string {
	return vibeDirectives[v]
}

// CacheKey derives the cache key for a request: the hex SHA-256 of its JSON
// encoding. Struct field order makes the encoding deterministic.
func CacheKey(req models.InsightRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding insight request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// DataContext is the data payload embedded in an insight prompt.
// Which slice is populated depends on the module.
type DataContext struct {
	Module              models.Module           `json:"module,omitempty"`
	RecentTrends        []models.DailyMetricRow `json:"recentTrends,omitempty"`
	TopProducts         []models.ProductRow     `json:"topProducts,omitempty"`
	Behaviors           []models.BehaviorRow    `json:"behaviors,omitempty"`
	RegionalPerformance []models.RegionalRow    `json:"regionalPerformance,omitempty"`
	Filters             models.FilterContext    `json:"filters"`
}

// BuildContext fetches a bounded sample of rows for module. Modules without
// a dedicated builder just echo the module and filters.
func BuildContext(ctx context.Context, source storage.AnalyticsSource, module models.Module, f models.FilterContext) (*DataContext, error) {
	dc := &DataContext{Filters: f}

	switch module {
	case models.ModuleTrends:
		rows, err := source.DailyMetrics(ctx, storage.DailyQuery{
			Brand:    f.BrandFilter(),
			Category: f.CategoryFilter(),
			Region:   f.GeographyFilter(),
			Limit:    TrendContextRows,
			Desc:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("trend context: %w", err)
		}
		dc.RecentTrends = rows

	case models.ModuleProducts:
		rows, err := source.TopProducts(ctx, storage.ProductQuery{Brand: f.BrandFilter(), Limit: ProductContextRows})
		if err != nil {
			return nil, fmt.Errorf("product context: %w", err)
		}
		dc.TopProducts = rows

	case models.ModuleBehavior:
		rows, err := source.TransactionBehaviors(ctx, "", "", BehaviorContextRows)
		if err != nil {
			return nil, fmt.Errorf("behavior context: %w", err)
		}
		dc.Behaviors = rows

	case models.ModuleGeographic:
		rows, err := source.RegionalPerformance(ctx, GeographicContextRows)
		if err != nil {
			return nil, fmt.Errorf("geographic context: %w", err)
		}
		dc.RegionalPerformance = rows

	default:
		dc.Module = module
	}
	return dc, nil
}

// BuildPrompt renders the insight prompt for one module and vibe.
func BuildPrompt(module models.Module, vibe models.VibeContext, dc *DataContext) (string, error) {
	data, err := json.MarshalIndent(dc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding data context: %w", err)
	}

	return fmt.Sprintf(`You are analyzing Philippine retail data for sari-sari stores.
Module: %s
Vibe Context: %s - %s

Data Context:
%s

Generate an insight that:
1. Provides a main insight (2-3 sentences)
2. Lists 2-3 key points
3. Detects any anomalies if present
4. Offers 2 actionable recommendations

Format as JSON with keys: mainInsight, keyPoints[], anomaly (optional), recommendations[]`,
		module, vibe, VibeDirective(vibe), data), nil
}
