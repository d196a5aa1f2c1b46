package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// SQLStorage implements Storage over database/sql. The same queries serve
// PostgreSQL (lib/pq) and SQLite (modernc); only placeholders differ.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return s, nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) Lookup(ctx context.Context, key string, notBefore time.Time) (*models.Insight, bool, error) {
	query := s.rebind(`
		SELECT response
		FROM cached_insights
		WHERE cache_key = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)

	var raw string
	err := s.db.QueryRowContext(ctx, query, key, notBefore.UnixMilli()).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error querying cached insight: %w", err)
	}

	var insight models.Insight
	if err := json.Unmarshal([]byte(raw), &insight); err != nil {
		return nil, false, fmt.Errorf("error decoding cached insight: %w", err)
	}
	return &insight, true, nil
}

func (s *SQLStorage) Store(ctx context.Context, entry *models.CachedInsight) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(entry.Insight)
	if err != nil {
		return fmt.Errorf("error encoding insight: %w", err)
	}

	query := s.rebind(`
		INSERT INTO cached_insights
		(id, cache_key, insight_type, llm_provider, prompt, response, vibe_context, tokens_used, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.CacheKey,
		string(entry.ModuleType),
		entry.Provider,
		entry.Prompt,
		string(payload),
		string(entry.VibeContext),
		entry.TokensUsed,
		entry.ResponseTimeMs,
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error storing cached insight: %w", err)
	}
	return nil
}

func (s *SQLStorage) LogMessages(ctx context.Context, entries []models.ChatLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO chat_messages (id, role, content, metadata, created_at) VALUES ")
	args := make([]any, 0, len(entries)*5)
	for i, e := range entries {
		if e.ID == "" {
			e.ID = ulid.Make().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("error encoding chat metadata: %w", err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, e.ID, string(e.Role), e.Content, string(meta), e.CreatedAt.UnixMilli())
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(b.String()), args...); err != nil {
		return fmt.Errorf("error logging chat messages: %w", err)
	}
	return nil
}

func (s *SQLStorage) RecentMessages(ctx context.Context, limit int) ([]models.ChatLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`
		SELECT id, role, content, COALESCE(metadata, ''), created_at
		FROM chat_messages
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying chat messages: %w", err)
	}
	defer rows.Close()

	var entries []models.ChatLogEntry
	for rows.Next() {
		var (
			e       models.ChatLogEntry
			role    string
			meta    string
			created int64
		)
		if err := rows.Scan(&e.ID, &role, &e.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("error scanning chat message: %w", err)
		}
		e.Role = models.Role(role)
		e.CreatedAt = time.UnixMilli(created)
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding chat metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *SQLStorage) DailyMetrics(ctx context.Context, q DailyQuery) ([]models.DailyMetricRow, error) {
	var (
		where []string
		args  []any
	)
	if q.Start != "" {
		where = append(where, "metric_date >= ?")
		args = append(args, q.Start)
	}
	if q.End != "" {
		where = append(where, "metric_date < ?")
		args = append(args, q.End)
	}
	if q.Brand != "" {
		where = append(where, "brand_id = ?")
		args = append(args, q.Brand)
	}
	if q.Category != "" {
		where = append(where, "category_id = ?")
		args = append(args, q.Category)
	}
	if q.Region != "" {
		where = append(where, "region = ?")
		args = append(args, q.Region)
	}

	query := `
		SELECT metric_date, COALESCE(brand_id, ''), COALESCE(category_id, ''), COALESCE(region, ''),
		       revenue, transaction_count, avg_basket_size, avg_duration
		FROM mv_daily_metrics`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Desc {
		query += " ORDER BY metric_date DESC"
	} else {
		query += " ORDER BY metric_date ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying daily metrics: %w", err)
	}
	defer rows.Close()

	var out []models.DailyMetricRow
	for rows.Next() {
		var r models.DailyMetricRow
		if err := rows.Scan(&r.Date, &r.BrandID, &r.CategoryID, &r.Region,
			&r.Revenue, &r.TransactionCount, &r.AvgBasketSize, &r.AvgDuration); err != nil {
			return nil, fmt.Errorf("error scanning daily metric: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) RegionalPerformance(ctx context.Context, limit int) ([]models.RegionalRow, error) {
	query := `
		SELECT region_id, region_name, COALESCE(region_group, ''), revenue, transactions, unique_consumers, avg_basket_size
		FROM mv_regional_performance
		ORDER BY revenue DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying regional performance: %w", err)
	}
	defer rows.Close()

	var out []models.RegionalRow
	for rows.Next() {
		var r models.RegionalRow
		if err := rows.Scan(&r.RegionID, &r.RegionName, &r.RegionGroup, &r.Revenue,
			&r.Transactions, &r.UniqueConsumers, &r.AvgBasketSize); err != nil {
			return nil, fmt.Errorf("error scanning region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func productWhere(q ProductQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Start != "" {
		where = append(where, "sale_date >= ?")
		args = append(args, q.Start)
	}
	if q.End != "" {
		where = append(where, "sale_date < ?")
		args = append(args, q.End)
	}
	if q.Brand != "" {
		where = append(where, "brand_id = ?")
		args = append(args, q.Brand)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *SQLStorage) TopProducts(ctx context.Context, q ProductQuery) ([]models.ProductRow, error) {
	where, args := productWhere(q)
	query := `
		SELECT product_id, MAX(product_name), COALESCE(MAX(brand_id), ''), COALESCE(MAX(category), ''),
		       SUM(revenue), SUM(units)
		FROM product_sales` + where + `
		GROUP BY product_id
		ORDER BY SUM(revenue) DESC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying top products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductRow
	for rows.Next() {
		var r models.ProductRow
		if err := rows.Scan(&r.ProductID, &r.ProductName, &r.BrandID, &r.Category, &r.Revenue, &r.Units); err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) CategoryMix(ctx context.Context, q ProductQuery) ([]models.CategoryRow, error) {
	where, args := productWhere(q)
	query := `
		SELECT COALESCE(category, ''), SUM(revenue), SUM(units)
		FROM product_sales` + where + `
		GROUP BY category
		ORDER BY SUM(revenue) DESC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying category mix: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryRow
	for rows.Next() {
		var r models.CategoryRow
		if err := rows.Scan(&r.Category, &r.Revenue, &r.Units); err != nil {
			return nil, fmt.Errorf("error scanning category: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) TransactionBehaviors(ctx context.Context, start, end string, limit int) ([]models.BehaviorRow, error) {
	var (
		where []string
		args  []any
	)
	if start != "" {
		where = append(where, "transaction_date >= ?")
		args = append(args, start)
	}
	if end != "" {
		where = append(where, "transaction_date < ?")
		args = append(args, end)
	}
	query := "SELECT COALESCE(request_method, ''), COALESCE(payment_method, '') FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	var out []models.BehaviorRow
	for rows.Next() {
		var r models.BehaviorRow
		if err := rows.Scan(&r.RequestMethod, &r.PaymentMethod); err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) InsertDailyMetrics(ctx context.Context, rows []models.DailyMetricRow) error {
	return s.insertEach(ctx, `INSERT INTO mv_daily_metrics
		(metric_date, brand_id, category_id, region, revenue, transaction_count, avg_basket_size, avg_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{string(r.Date), r.BrandID, r.CategoryID, r.Region, r.Revenue.String(),
			r.TransactionCount, r.AvgBasketSize, r.AvgDuration}
	})
}

func (s *SQLStorage) InsertRegions(ctx context.Context, rows []models.RegionalRow) error {
	return s.insertEach(ctx, `INSERT INTO mv_regional_performance
		(region_id, region_name, region_group, revenue, transactions, unique_consumers, avg_basket_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.RegionID, r.RegionName, r.RegionGroup, r.Revenue.String(),
			r.Transactions, r.UniqueConsumers, r.AvgBasketSize}
	})
}

func (s *SQLStorage) InsertProductSales(ctx context.Context, rows []ProductSale) error {
	return s.insertEach(ctx, `INSERT INTO product_sales
		(sale_date, product_id, product_name, brand_id, category, revenue, units)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{string(r.Date), r.ProductID, r.ProductName, r.BrandID, r.Category, r.Revenue.String(), r.Units}
	})
}

func (s *SQLStorage) InsertTransactions(ctx context.Context, rows []Transaction) error {
	return s.insertEach(ctx, `INSERT INTO transactions
		(id, transaction_date, request_method, payment_method)
		VALUES (?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		id := r.ID
		if id == "" {
			id = ulid.Make().String()
		}
		return []any{id, string(r.Date), r.RequestMethod, r.PaymentMethod}
	})
}

// insertEach runs one prepared insert per row inside a single transaction.
func (s *SQLStorage) insertEach(ctx context.Context, query string, n int, argsFor func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(query))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, argsFor(i)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Ping checks the database connection.
func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
