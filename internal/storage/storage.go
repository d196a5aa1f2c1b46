package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/models"
)

// FreshnessWindow is how long a cached insight stays valid after it was written.
const FreshnessWindow = 5 * time.Minute

// InsightCache is an append-only log of generated insights. Freshness is a
// read-time filter: rows are never updated or deleted by the cache itself.
type InsightCache interface {
	// Lookup returns the newest insight stored under key at or after notBefore.
	Lookup(ctx context.Context, key string, notBefore time.Time) (*models.Insight, bool, error)
	Store(ctx context.Context, entry *models.CachedInsight) error
}

// ChatLog durably records chat turns, one row per turn.
type ChatLog interface {
	LogMessages(ctx context.Context, entries []models.ChatLogEntry) error
	RecentMessages(ctx context.Context, limit int) ([]models.ChatLogEntry, error)
}

// DailyQuery selects rows from the daily metrics view.
// Empty Brand/Category/Region mean "all". Zero Limit means unlimited.
type DailyQuery struct {
	Start    string
	End      string
	Brand    string
	Category string
	Region   string
	Limit    int
	Desc     bool
}

// ProductQuery selects products rolled up over [Start, End).
// Empty Start/End leave the range open.
type ProductQuery struct {
	Start string
	End   string
	Brand string
	Limit int
}

// AnalyticsSource is the read side of the external analytics store.
type AnalyticsSource interface {
	DailyMetrics(ctx context.Context, q DailyQuery) ([]models.DailyMetricRow, error)
	RegionalPerformance(ctx context.Context, limit int) ([]models.RegionalRow, error)
	TopProducts(ctx context.Context, q ProductQuery) ([]models.ProductRow, error)
	CategoryMix(ctx context.Context, q ProductQuery) ([]models.CategoryRow, error)
	TransactionBehaviors(ctx context.Context, start, end string, limit int) ([]models.BehaviorRow, error)
}

type Storage interface {
	InsightCache
	ChatLog
	AnalyticsSource
	Close() error
}

// ProductSale is one raw product sales row, used to seed local stores.
type ProductSale struct {
	Date        models.Date
	ProductID   string
	ProductName string
	BrandID     string
	Category    string
	Revenue     decimal.Decimal
	Units       int64
}

// Transaction is one raw transaction row, used to seed local stores.
type Transaction struct {
	ID            string
	Date          models.Date
	RequestMethod string
	PaymentMethod string
}

// Seeder loads raw analytics rows into a local store.
type Seeder interface {
	InsertDailyMetrics(ctx context.Context, rows []models.DailyMetricRow) error
	InsertRegions(ctx context.Context, rows []models.RegionalRow) error
	InsertProductSales(ctx context.Context, rows []ProductSale) error
	InsertTransactions(ctx context.Context, rows []Transaction) error
}
