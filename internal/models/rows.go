package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format used for metric dates.
const DateLayout = "2006-01-02"

// Date is a calendar day. It scans from DATE columns (time.Time) as well as
// TEXT columns holding YYYY-MM-DD.
type Date string

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = Date(v.UTC().Format(DateLayout))
	case string:
		*d = Date(trimDate(v))
	case []byte:
		*d = Date(trimDate(string(v)))
	case nil:
		*d = ""
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return string(d), nil
}

func trimDate(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// DailyMetricRow is one pre-aggregated day from the daily metrics view.
// A date may appear several times (one row per brand, category or region).
type DailyMetricRow struct {
	Date             Date            `json:"date"`
	BrandID          string          `json:"brand_id,omitempty"`
	CategoryID       string          `json:"category_id,omitempty"`
	Region           string          `json:"region,omitempty"`
	Revenue          decimal.Decimal `json:"revenue"`
	TransactionCount int64           `json:"transaction_count"`
	AvgBasketSize    float64         `json:"avg_basket_size"`
	AvgDuration      float64         `json:"avg_duration"`
}

// RegionalRow is one region from the regional performance view.
type RegionalRow struct {
	RegionID        string          `json:"region_id"`
	RegionName      string          `json:"region_name"`
	RegionGroup     string          `json:"region_group,omitempty"`
	Revenue         decimal.Decimal `json:"revenue"`
	Transactions    int64           `json:"transactions"`
	UniqueConsumers int64           `json:"unique_consumers"`
	AvgBasketSize   float64         `json:"avg_basket_size"`
}

// ProductRow is one product rolled up over a date range.
type ProductRow struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	BrandID     string          `json:"brand_id"`
	Category    string          `json:"category"`
	Revenue     decimal.Decimal `json:"revenue"`
	Units       int64           `json:"units"`
}

// CategoryRow is the revenue and unit total for one category.
type CategoryRow struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int64           `json:"units"`
}

// BehaviorRow is how one transaction was requested and paid for.
type BehaviorRow struct {
	RequestMethod string `json:"request_method"`
	PaymentMethod string `json:"payment_method"`
}
