package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

type moduleChoice struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

// LLMClassifier asks the provider pair to pick a module and falls back to
// keyword matching when the providers fail or answer outside the enum.
type LLMClassifier struct {
	providers *llm.Pair
	fallback  Classifier
	logger    *zap.Logger
}

func NewLLMClassifier(providers *llm.Pair, fallback Classifier, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{providers: providers, fallback: fallback, logger: logger}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) models.Module {
	modules := make([]string, 0, len(models.Modules()))
	for _, m := range models.Modules() {
		modules = append(modules, string(m))
	}

	prompt := fmt.Sprintf(`A store owner asked the following question about their sari-sari store dashboard.
Pick the single dashboard module best suited to answer it.

Modules: %s

Return the response as a JSON object with this structure:
{
    "module": "one_of_the_modules",
    "reason": "short_reason"
}

Question: %s`, strings.Join(modules, ", "), text)

	choice, provider, err := llm.Run(ctx, c.providers, func(ctx context.Context, p llm.Provider) (models.Module, error) {
		resp, err := p.Generate(ctx, llm.Request{
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			MaxTokens:   100,
			Temperature: llm.Temperature(0.1),
			JSONMode:    true,
		})
		if err != nil {
			return "", err
		}
		var out moduleChoice
		if err := llm.DecodeJSON(resp.Text, &out); err != nil {
			return "", err
		}
		m := models.Module(strings.ToLower(strings.TrimSpace(out.Module)))
		if !m.Valid() {
			return "", fmt.Errorf("%w: unknown module %q", llm.ErrMalformedOutput, out.Module)
		}
		return m, nil
	})
	if err != nil {
		c.logger.Warn("Module classification failed, using keywords", zap.Error(err))
		return c.fallback.Classify(ctx, text)
	}

	c.logger.Debug("Classified question",
		zap.String("module", string(choice)),
		zap.String("provider", provider))
	return choice
}
