package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
)

const (
	topProductsLimit = 10
	topRegionsLimit  = 3
)

// Service builds the dashboard's analytic views from an AnalyticsSource.
type Service struct {
	source storage.AnalyticsSource
	logger *zap.Logger
	now    func() time.Time
}

func NewService(source storage.AnalyticsSource, logger *zap.Logger) *Service {
	return &Service{source: source, logger: logger, now: time.Now}
}

// WithClock replaces the time source used to resolve date ranges.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Range resolves the filter's date range against the service clock.
func (s *Service) Range(f models.FilterContext) Range {
	return ResolveDateRange(f.DateRange, s.now())
}

// Trends returns grouped daily metrics with a week-over-week summary.
func (s *Service) Trends(ctx context.Context, f models.FilterContext) (*TrendReport, error) {
	r := s.Range(f)
	rows, err := s.source.DailyMetrics(ctx, storage.DailyQuery{
		Start:    r.Start,
		End:      r.End,
		Brand:    f.BrandFilter(),
		Category: f.CategoryFilter(),
		Region:   f.GeographyFilter(),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching daily metrics: %w", err)
	}

	report := BuildTrendReport(rows, f.CompareMode)
	report.Range = r

	s.logger.Debug("Built trend report",
		zap.String("start", r.Start),
		zap.String("end", r.End),
		zap.Int("rows", len(rows)),
		zap.Int("days", len(report.Trends)),
		zap.Bool("has_baseline", report.Summary.HasBaseline))
	return &report, nil
}

// CategoryShare is one category's slice of revenue.
type CategoryShare struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int64           `json:"units"`
	Share    float64         `json:"share"`
}

// ProductMix is the product mix view.
type ProductMix struct {
	Range        Range               `json:"range"`
	TotalRevenue decimal.Decimal     `json:"totalRevenue"`
	Categories   []CategoryShare     `json:"categories"`
	TopProducts  []models.ProductRow `json:"topProducts"`
}

func (s *Service) ProductMix(ctx context.Context, f models.FilterContext) (*ProductMix, error) {
	r := s.Range(f)
	q := storage.ProductQuery{Start: r.Start, End: r.End, Brand: f.BrandFilter()}

	categories, err := s.source.CategoryMix(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching category mix: %w", err)
	}
	q.Limit = topProductsLimit
	products, err := s.source.TopProducts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching top products: %w", err)
	}

	mix := &ProductMix{Range: r, TopProducts: products}
	for _, c := range categories {
		mix.TotalRevenue = mix.TotalRevenue.Add(c.Revenue)
	}
	for _, c := range categories {
		mix.Categories = append(mix.Categories, CategoryShare{
			Category: c.Category,
			Revenue:  c.Revenue,
			Units:    c.Units,
			Share:    share(c.Revenue, mix.TotalRevenue),
		})
	}
	return mix, nil
}

// MethodCount is how often one request or payment method occurred.
type MethodCount struct {
	Method string  `json:"method"`
	Count  int     `json:"count"`
	Share  float64 `json:"share"`
}

// BehaviorSummary is the consumer behavior view.
type BehaviorSummary struct {
	Range          Range         `json:"range"`
	Transactions   int           `json:"transactions"`
	RequestMethods []MethodCount `json:"requestMethods"`
	PaymentMethods []MethodCount `json:"paymentMethods"`
}

func (s *Service) ConsumerBehavior(ctx context.Context, f models.FilterContext) (*BehaviorSummary, error) {
	r := s.Range(f)
	rows, err := s.source.TransactionBehaviors(ctx, r.Start, r.End, 0)
	if err != nil {
		return nil, fmt.Errorf("fetching transactions: %w", err)
	}
	return SummarizeBehaviors(r, rows), nil
}

// SummarizeBehaviors counts request and payment methods, most frequent first.
func SummarizeBehaviors(r Range, rows []models.BehaviorRow) *BehaviorSummary {
	requests := make(map[string]int)
	payments := make(map[string]int)
	for _, row := range rows {
		requests[row.RequestMethod]++
		payments[row.PaymentMethod]++
	}
	return &BehaviorSummary{
		Range:          r,
		Transactions:   len(rows),
		RequestMethods: rankMethods(requests, len(rows)),
		PaymentMethods: rankMethods(payments, len(rows)),
	}
}

func rankMethods(counts map[string]int, total int) []MethodCount {
	out := make([]MethodCount, 0, len(counts))
	for method, n := range counts {
		mc := MethodCount{Method: method, Count: n}
		if total > 0 {
			mc.Share = float64(n) / float64(total)
		}
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// GeographicView is the regional performance view.
type GeographicView struct {
	Regions      []models.RegionalRow `json:"regions"`
	TopRegions   []models.RegionalRow `json:"topRegions"`
	TotalRevenue decimal.Decimal      `json:"totalRevenue"`
}

// Geographic returns regions ordered by revenue, narrowed to the filter's
// region group when one is set.
func (s *Service) Geographic(ctx context.Context, f models.FilterContext) (*GeographicView, error) {
	rows, err := s.source.RegionalPerformance(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetching regional performance: %w", err)
	}

	group := f.GeographyFilter()
	view := &GeographicView{Regions: make([]models.RegionalRow, 0, len(rows))}
	for _, row := range rows {
		if group != "" && row.RegionGroup != group {
			continue
		}
		view.Regions = append(view.Regions, row)
		view.TotalRevenue = view.TotalRevenue.Add(row.Revenue)
	}
	view.TopRegions = view.Regions[:min(topRegionsLimit, len(view.Regions))]
	return view, nil
}

func share(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Round(4).InexactFloat64()
}
