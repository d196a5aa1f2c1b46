package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/models"
)

type MemoryStorage struct {
	mu           sync.RWMutex
	insights     []models.CachedInsight
	chatLog      []models.ChatLogEntry
	daily        []models.DailyMetricRow
	regions      []models.RegionalRow
	sales        []ProductSale
	transactions []Transaction
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Insight cache methods
func (s *MemoryStorage) Lookup(ctx context.Context, key string, notBefore time.Time) (*models.Insight, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.CachedInsight
	for i := range s.insights {
		row := &s.insights[i]
		if row.CacheKey != key || row.CreatedAt.Before(notBefore) {
			continue
		}
		if newest == nil || !row.CreatedAt.Before(newest.CreatedAt) {
			newest = row
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	insight := newest.Insight.Clone()
	return &insight, true, nil
}

func (s *MemoryStorage) Store(ctx context.Context, entry *models.CachedInsight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *entry
	if row.ID == "" {
		row.ID = ulid.Make().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.Insight = entry.Insight.Clone()
	s.insights = append(s.insights, row)
	return nil
}

// CachedRows returns every row written under key, oldest first.
func (s *MemoryStorage) CachedRows(key string) []models.CachedInsight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.CachedInsight
	for _, row := range s.insights {
		if row.CacheKey == key {
			rows = append(rows, row)
		}
	}
	return rows
}

// Chat log methods
func (s *MemoryStorage) LogMessages(ctx context.Context, entries []models.ChatLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = ulid.Make().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		s.chatLog = append(s.chatLog, e)
	}
	return nil
}

func (s *MemoryStorage) RecentMessages(ctx context.Context, limit int) ([]models.ChatLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.chatLog) > limit {
		start = len(s.chatLog) - limit
	}
	out := make([]models.ChatLogEntry, len(s.chatLog)-start)
	copy(out, s.chatLog[start:])
	return out, nil
}

// Analytics methods
func (s *MemoryStorage) DailyMetrics(ctx context.Context, q DailyQuery) ([]models.DailyMetricRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.DailyMetricRow
	for _, r := range s.daily {
		if !inRange(r.Date, q.Start, q.End) {
			continue
		}
		if q.Brand != "" && r.BrandID != q.Brand {
			continue
		}
		if q.Category != "" && r.CategoryID != q.Category {
			continue
		}
		if q.Region != "" && r.Region != q.Region {
			continue
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.Desc {
			return rows[i].Date > rows[j].Date
		}
		return rows[i].Date < rows[j].Date
	})
	return limitRows(rows, q.Limit), nil
}

func (s *MemoryStorage) RegionalPerformance(ctx context.Context, limit int) ([]models.RegionalRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]models.RegionalRow, len(s.regions))
	copy(rows, s.regions)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue.GreaterThan(rows[j].Revenue)
	})
	return limitRows(rows, limit), nil
}

func (s *MemoryStorage) TopProducts(ctx context.Context, q ProductQuery) ([]models.ProductRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]*models.ProductRow)
	var order []string
	for _, sale := range s.sales {
		if !inRange(sale.Date, q.Start, q.End) || (q.Brand != "" && sale.BrandID != q.Brand) {
			continue
		}
		p, ok := byID[sale.ProductID]
		if !ok {
			p = &models.ProductRow{
				ProductID:   sale.ProductID,
				ProductName: sale.ProductName,
				BrandID:     sale.BrandID,
				Category:    sale.Category,
				Revenue:     decimal.Zero,
			}
			byID[sale.ProductID] = p
			order = append(order, sale.ProductID)
		}
		p.Revenue = p.Revenue.Add(sale.Revenue)
		p.Units += sale.Units
	}

	rows := make([]models.ProductRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byID[id])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue.GreaterThan(rows[j].Revenue)
	})
	return limitRows(rows, q.Limit), nil
}

func (s *MemoryStorage) CategoryMix(ctx context.Context, q ProductQuery) ([]models.CategoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]*models.CategoryRow)
	var order []string
	for _, sale := range s.sales {
		if !inRange(sale.Date, q.Start, q.End) || (q.Brand != "" && sale.BrandID != q.Brand) {
			continue
		}
		c, ok := byName[sale.Category]
		if !ok {
			c = &models.CategoryRow{Category: sale.Category, Revenue: decimal.Zero}
			byName[sale.Category] = c
			order = append(order, sale.Category)
		}
		c.Revenue = c.Revenue.Add(sale.Revenue)
		c.Units += sale.Units
	}

	rows := make([]models.CategoryRow, 0, len(order))
	for _, name := range order {
		rows = append(rows, *byName[name])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue.GreaterThan(rows[j].Revenue)
	})
	return limitRows(rows, q.Limit), nil
}

func (s *MemoryStorage) TransactionBehaviors(ctx context.Context, start, end string, limit int) ([]models.BehaviorRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Transaction
	for _, t := range s.transactions {
		if inRange(t.Date, start, end) {
			matched = append(matched, t)
		}
	}
	// Newest first, so a limit keeps the most recent transactions.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date > matched[j].Date })

	rows := make([]models.BehaviorRow, 0, len(matched))
	for _, t := range matched {
		rows = append(rows, models.BehaviorRow{RequestMethod: t.RequestMethod, PaymentMethod: t.PaymentMethod})
	}
	return limitRows(rows, limit), nil
}

// Seeding methods
func (s *MemoryStorage) InsertDailyMetrics(ctx context.Context, rows []models.DailyMetricRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily = append(s.daily, rows...)
	return nil
}

func (s *MemoryStorage) InsertRegions(ctx context.Context, rows []models.RegionalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, rows...)
	return nil
}

func (s *MemoryStorage) InsertProductSales(ctx context.Context, rows []ProductSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, rows...)
	return nil
}

func (s *MemoryStorage) InsertTransactions(ctx context.Context, rows []Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, rows...)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func inRange(d models.Date, start, end string) bool {
	if start != "" && string(d) < start {
		return false
	}
	if end != "" && string(d) >= end {
		return false
	}
	return true
}

func limitRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
