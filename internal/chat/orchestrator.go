// Package chat implements the dashboard's conversational assistant.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	trendRows    = 7
	regionalRows = 5
	productRows  = 10
)

// Reply is the assistant's answer and the provider that produced it.
type Reply struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
}

type Options struct {
	// Temperature defaults to 0.7 when nil.
	Temperature *float64
	MaxTokens   int
	Clock       func() time.Time
}

// Orchestrator answers chat messages with live dashboard data in the prompt.
// It holds no conversation state; callers pass the history on every call.
type Orchestrator struct {
	source      storage.AnalyticsSource
	chatLog     storage.ChatLog
	providers   *llm.Pair
	logger      *zap.Logger
	temperature float64
	maxTokens   int
	now         func() time.Time
}

func NewOrchestrator(source storage.AnalyticsSource, chatLog storage.ChatLog, providers *llm.Pair, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.Temperature == nil {
		opts.Temperature = llm.Temperature(0.7)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		source:      source,
		chatLog:     chatLog,
		providers:   providers,
		logger:      logger.With(zap.String("component", "chat")),
		temperature: *opts.Temperature,
		maxTokens:   opts.MaxTokens,
		now:         opts.Clock,
	}
}

type trendSnapshot struct {
	Date             models.Date     `json:"date"`
	Revenue          decimal.Decimal `json:"revenue"`
	TransactionCount int64           `json:"transaction_count"`
}

type regionSnapshot struct {
	RegionName   string          `json:"region_name"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int64           `json:"transactions"`
}

// DashboardContext is the data snapshot embedded in the chat system prompt.
type DashboardContext struct {
	Trends   []trendSnapshot     `json:"trends"`
	Regional []regionSnapshot    `json:"regional"`
	Products []models.ProductRow `json:"products"`
}

// BuildDashboardContext runs the three dashboard reads concurrently.
func (o *Orchestrator) BuildDashboardContext(ctx context.Context) (*DashboardContext, error) {
	var (
		daily   []models.DailyMetricRow
		regions []models.RegionalRow
		dc      DashboardContext
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := o.source.DailyMetrics(gctx, storage.DailyQuery{Limit: trendRows, Desc: true})
		if err != nil {
			return fmt.Errorf("recent trends: %w", err)
		}
		daily = rows
		return nil
	})
	g.Go(func() error {
		rows, err := o.source.RegionalPerformance(gctx, regionalRows)
		if err != nil {
			return fmt.Errorf("regional summary: %w", err)
		}
		regions = rows
		return nil
	})
	g.Go(func() error {
		rows, err := o.source.TopProducts(gctx, storage.ProductQuery{Limit: productRows})
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		dc.Products = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dc.Trends = make([]trendSnapshot, 0, len(daily))
	for _, r := range daily {
		dc.Trends = append(dc.Trends, trendSnapshot{Date: r.Date, Revenue: r.Revenue, TransactionCount: r.TransactionCount})
	}
	dc.Regional = make([]regionSnapshot, 0, len(regions))
	for _, r := range regions {
		dc.Regional = append(dc.Regional, regionSnapshot{RegionName: r.RegionName, Revenue: r.Revenue, Transactions: r.Transactions})
	}
	return &dc, nil
}

// BuildSystemPrompt renders the per-call system prompt.
func BuildSystemPrompt(f models.FilterContext, dc *DashboardContext) (string, error) {
	data, err := json.MarshalIndent(dc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding dashboard context: %w", err)
	}

	return fmt.Sprintf(`You are an AI assistant for Scout Databank Dashboard v2.5, analyzing Philippine retail data from sari-sari stores.

Current Context:
- Date Range: %s
- Geography: %s
- Brand Filter: %s
- Category: %s
- Vibe Context: %s

Available Data:
%s

You can help with:
1. Comparing brand performance across regions
2. Analyzing substitution patterns
3. Identifying consumer behavior trends
4. Geographic insights and regional differences
5. Product mix optimization
6. Forecasting and predictions

Be specific, data-driven, and provide actionable insights.`,
		f.DateRange, f.Geography, f.Brand, f.Category, f.VibeContext, data), nil
}

// SendMessage answers text given the prior conversation. The exchange is
// logged as two rows; logging failures never fail the call.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, filters models.FilterContext, history []models.ChatMessage) (*Reply, error) {
	dc, err := o.BuildDashboardContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("building dashboard context: %w", err)
	}
	system, err := BuildSystemPrompt(filters, dc)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleAssistant
		if m.Role == models.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	reply, provider, err := llm.Run(ctx, o.providers, func(ctx context.Context, p llm.Provider) (string, error) {
		resp, err := p.Generate(ctx, llm.Request{
			System:      system,
			Messages:    messages,
			Temperature: llm.Temperature(o.temperature),
			MaxTokens:   o.maxTokens,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if err != nil {
		o.logger.Error("Chat message failed", zap.Error(err), zap.Int("history", len(history)))
		return nil, fmt.Errorf("sending chat message: %w", err)
	}

	o.logExchange(ctx, text, reply, provider)
	return &Reply{Content: reply, Provider: provider}, nil
}

func (o *Orchestrator) logExchange(ctx context.Context, userText, reply, provider string) {
	now := o.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	err := o.chatLog.LogMessages(ctx, []models.ChatLogEntry{
		{
			Role:      models.RoleUser,
			Content:   userText,
			Metadata:  map[string]string{"timestamp": stamp},
			CreatedAt: now,
		},
		{
			Role:      models.RoleAssistant,
			Content:   reply,
			Metadata:  map[string]string{"provider": provider, "timestamp": stamp},
			CreatedAt: now.Add(time.Millisecond),
		},
	})
	if err != nil {
		o.logger.Warn("Failed to log chat interaction", zap.Error(err))
	}
}
