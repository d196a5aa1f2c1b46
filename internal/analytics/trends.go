// Package analytics turns raw analytics rows into dashboard views.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/models"
)

// SummaryWindow is the number of grouped days in each summary period.
const SummaryWindow = 7

// Range is a half-open [Start, End) span of calendar days.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ResolveDateRange maps a date-range filter to concrete days relative to now.
// Custom ranges have no bounds of their own and resolve like last30days.
func ResolveDateRange(dr models.DateRange, now time.Time) Range {
	days := 30
	switch dr {
	case models.DateRangeLast7Days:
		days = 7
	case models.DateRangeLast90Days:
		days = 90
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Range{
		Start: today.AddDate(0, 0, -days).Format(models.DateLayout),
		End:   today.AddDate(0, 0, 1).Format(models.DateLayout),
	}
}

// TrendPoint is one grouped day.
type TrendPoint struct {
	Date     models.Date     `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Volume   int64           `json:"volume"`
	Basket   float64         `json:"basket"`
	Duration float64         `json:"duration"`
}

// GroupDaily merges rows sharing a date, keeping first-seen date order.
// Basket size and duration are summed across duplicates, not averaged.
func GroupDaily(rows []models.DailyMetricRow) []TrendPoint {
	points := make([]TrendPoint, 0, len(rows))
	index := make(map[models.Date]int, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Date]; ok {
			p := &points[i]
			p.Revenue = p.Revenue.Add(r.Revenue)
			p.Volume += r.TransactionCount
			p.Basket += r.AvgBasketSize
			p.Duration += r.AvgDuration
			continue
		}
		index[r.Date] = len(points)
		points = append(points, TrendPoint{
			Date:     r.Date,
			Revenue:  r.Revenue,
			Volume:   r.TransactionCount,
			Basket:   r.AvgBasketSize,
			Duration: r.AvgDuration,
		})
	}
	return points
}

// PeriodTotals aggregates one summary window.
type PeriodTotals struct {
	Revenue  decimal.Decimal `json:"revenue"`
	Volume   int64           `json:"volume"`
	Basket   float64         `json:"basket"`
	Duration float64         `json:"duration"`
}

// Summary compares the latest window with the one before it.
// Change and Forecast are nil when HasBaseline is false.
type Summary struct {
	Current     decimal.Decimal  `json:"current"`
	Previous    decimal.Decimal  `json:"previous"`
	HasBaseline bool             `json:"hasBaseline"`
	Change      *decimal.Decimal `json:"change,omitempty"`
	Forecast    *decimal.Decimal `json:"forecast,omitempty"`
}

// ComparisonPoint is one labeled period of a compare-mode series.
type ComparisonPoint struct {
	Period string `json:"period"`
	PeriodTotals
}

// TrendReport is the transaction trends view.
type TrendReport struct {
	Range      Range             `json:"range"`
	Trends     []TrendPoint      `json:"trends"`
	Summary    Summary           `json:"summary"`
	Comparison []ComparisonPoint `json:"comparison,omitempty"`
}

func totals(points []TrendPoint) PeriodTotals {
	var t PeriodTotals
	for _, p := range points {
		t.Revenue = t.Revenue.Add(p.Revenue)
		t.Volume += p.Volume
		t.Basket += p.Basket / SummaryWindow
		t.Duration += p.Duration / SummaryWindow
	}
	return t
}

// Periods splits the grouped series into the last window and the window preceding it.
func Periods(points []TrendPoint) (current, previous PeriodTotals) {
	n := len(points)
	curStart := max(n-SummaryWindow, 0)
	prevStart := max(n-2*SummaryWindow, 0)
	return totals(points[curStart:]), totals(points[prevStart:curStart])
}

// Summarize computes the week-over-week change and a naive one-step forecast:
// change = current/previous - 1, forecast = current * (1 + change).
func Summarize(current, previous PeriodTotals) Summary {
	s := Summary{Current: current.Revenue, Previous: previous.Revenue}
	if previous.Revenue.IsZero() {
		return s
	}
	change := current.Revenue.Div(previous.Revenue).Sub(decimal.NewFromInt(1))
	forecast := current.Revenue.Mul(change.Add(decimal.NewFromInt(1)))
	s.HasBaseline = true
	s.Change = &change
	s.Forecast = &forecast
	return s
}

// BuildTrendReport groups time-ordered rows and summarizes them.
func BuildTrendReport(rows []models.DailyMetricRow, compare bool) TrendReport {
	points := GroupDaily(rows)
	current, previous := Periods(points)
	report := TrendReport{
		Trends:  points,
		Summary: Summarize(current, previous),
	}
	if compare {
		report.Comparison = []ComparisonPoint{
			{Period: "Current", PeriodTotals: current},
			{Period: "Previous", PeriodTotals: previous},
		}
	}
	return report
}
