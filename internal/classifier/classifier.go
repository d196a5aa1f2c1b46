// Package classifier routes a free-text question to the dashboard module
// best suited to answer it.
package classifier

import (
	"context"
	"strings"

	"github.com/xaenox/scout-insights/internal/models"
)

type Classifier interface {
	Classify(ctx context.Context, text string) models.Module
}

var moduleKeywords = map[models.Module][]string{
	models.ModuleTrends:      {"trend", "revenue", "sales", "growth", "forecast", "weekly", "daily", "volume"},
	models.ModuleProducts:    {"product", "sku", "category", "mix", "snack", "beverage", "milk", "basket"},
	models.ModuleBehavior:    {"payment", "gcash", "cash", "credit", "request", "behavior", "pointing", "suki"},
	models.ModuleProfiling:   {"consumer", "customer", "shopper", "age", "gender", "profile", "demographic"},
	models.ModuleComparative: {"compare", "versus", " vs", "competitor", "substitut", "switch"},
	models.ModuleGeographic:  {"region", "ncr", "luzon", "visayas", "mindanao", "province", "geograph", "city"},
}

// KeywordClassifier scores each module by how many of its keywords appear.
type KeywordClassifier struct {
	fallback models.Module
}

func NewKeywordClassifier(fallback models.Module) *KeywordClassifier {
	if !fallback.Valid() {
		fallback = models.ModuleTrends
	}
	return &KeywordClassifier{fallback: fallback}
}

// Classify returns the highest-scoring module, or the fallback when nothing matches.
// Ties go to the module listed first by models.Modules.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) models.Module {
	text = strings.ToLower(text)

	best, bestScore := c.fallback, 0
	for _, module := range models.Modules() {
		score := 0
		for _, kw := range moduleKeywords[module] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = module, score
		}
	}
	return best
}
