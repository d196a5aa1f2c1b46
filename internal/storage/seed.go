package storage

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/scout-insights/internal/models"
)

// Dataset is a batch of raw analytics rows.
type Dataset struct {
	Daily        []models.DailyMetricRow
	Regions      []models.RegionalRow
	Sales        []ProductSale
	Transactions []Transaction
}

// Seed writes every part of ds through s.
func Seed(ctx context.Context, s Seeder, ds Dataset) error {
	if err := s.InsertDailyMetrics(ctx, ds.Daily); err != nil {
		return fmt.Errorf("seeding daily metrics: %w", err)
	}
	if err := s.InsertRegions(ctx, ds.Regions); err != nil {
		return fmt.Errorf("seeding regions: %w", err)
	}
	if err := s.InsertProductSales(ctx, ds.Sales); err != nil {
		return fmt.Errorf("seeding product sales: %w", err)
	}
	if err := s.InsertTransactions(ctx, ds.Transactions); err != nil {
		return fmt.Errorf("seeding transactions: %w", err)
	}
	return nil
}

type demoProduct struct {
	id, name, brand, category string
	price                     int64
}

var demoProducts = []demoProduct{
	{"alaska-evap-370", "Alaska Evaporated Milk 370ml", "alaska", "beverages", 38},
	{"alaska-condensed-300", "Alaska Condensed Milk 300ml", "alaska", "beverages", 52},
	{"oishi-prawn-60", "Oishi Prawn Crackers 60g", "oishi", "snacks", 18},
	{"oishi-ridges-85", "Oishi Ridges 85g", "oishi", "snacks", 25},
	{"champion-bar-145", "Champion Detergent Bar 145g", "champion", "household", 14},
	{"champion-powder-70", "Champion Powder 70g", "champion", "household", 9},
	{"delmonte-pineapple-240", "Del Monte Pineapple Juice 240ml", "delmonte", "beverages", 29},
	{"delmonte-spaghetti-250", "Del Monte Spaghetti Sauce 250g", "delmonte", "household", 43},
	{"winston-red-20", "Winston Red 20s", "winston", "tobacco", 150},
	{"safeguard-bar-60", "Safeguard Bar 60g", "safeguard", "personal", 27},
}

var demoRegions = []struct {
	id, name, group string
	weight          int64
}{
	{"ncr", "National Capital Region", "ncr", 9},
	{"region-3", "Central Luzon", "luzon", 6},
	{"region-4a", "CALABARZON", "luzon", 7},
	{"region-7", "Central Visayas", "visayas", 5},
	{"region-6", "Western Visayas", "visayas", 3},
	{"region-11", "Davao Region", "mindanao", 4},
	{"region-10", "Northern Mindanao", "mindanao", 2},
}

// DemoDataset builds a deterministic sari-sari store dataset covering the
// given number of days up to and including today.
func DemoDataset(today time.Time, days int) Dataset {
	rng := rand.New(rand.NewSource(42))
	var ds Dataset

	regionGroups := []string{"ncr", "luzon", "visayas", "mindanao"}
	requestMethods := []string{"branded", "unbranded", "pointing", "indirect"}
	paymentMethods := []string{"cash", "gcash", "maya", "credit"}

	start := today.AddDate(0, 0, -(days - 1))
	for d := 0; d < days; d++ {
		date := models.Date(start.AddDate(0, 0, d).Format(models.DateLayout))
		for _, p := range demoProducts {
			units := int64(20 + rng.Intn(40))
			revenue := decimal.NewFromInt(units * p.price)
			ds.Sales = append(ds.Sales, ProductSale{
				Date:        date,
				ProductID:   p.id,
				ProductName: p.name,
				BrandID:     p.brand,
				Category:    p.category,
				Revenue:     revenue,
				Units:       units,
			})
			group := regionGroups[rng.Intn(len(regionGroups))]
			ds.Daily = append(ds.Daily, models.DailyMetricRow{
				Date:             date,
				BrandID:          p.brand,
				CategoryID:       p.category,
				Region:           group,
				Revenue:          revenue,
				TransactionCount: units / 2,
				AvgBasketSize:    1.5 + rng.Float64()*2,
				AvgDuration:      30 + rng.Float64()*60,
			})
		}
		for i := 0; i < 25; i++ {
			ds.Transactions = append(ds.Transactions, Transaction{
				ID:            fmt.Sprintf("txn-%s-%02d", date, i),
				Date:          date,
				RequestMethod: requestMethods[rng.Intn(len(requestMethods))],
				PaymentMethod: paymentMethods[rng.Intn(len(paymentMethods))],
			})
		}
	}

	for _, r := range demoRegions {
		tx := r.weight * int64(days) * 40
		ds.Regions = append(ds.Regions, models.RegionalRow{
			RegionID:        r.id,
			RegionName:      r.name,
			RegionGroup:     r.group,
			Revenue:         decimal.NewFromInt(tx * 35),
			Transactions:    tx,
			UniqueConsumers: tx / 3,
			AvgBasketSize:   1.8 + float64(r.weight)/10,
		})
	}
	return ds
}
