package salesync

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// profitEstimateRate is the fraction of revenue used when the backend supplies
// no profit figure for a period. It matches the backend's own 30% heuristic
// and is an estimate, not authoritative accounting.
var profitEstimateRate = decimal.NewFromFloat(0.30)

// MonthStats is the derived bucket for a single month.
type MonthStats struct {
	Orders     int             `json:"orders"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Profit     decimal.Decimal `json:"profit"`
}

// Stats is the derived view of sales under a filter. Months always holds all
// twelve keys "1".."12"; absent periods are zeroed so chart rendering never
// sees gaps. The roll-up fields equal the sum over Months after every
// recomputation.
type Stats struct {
	Filter Filter                `json:"-"`
	Months map[string]MonthStats `json:"sales"`
	Total  decimal.Decimal       `json:"total"`
	Orders int                   `json:"orders"`
	// TotalProfit sums per-month profit, preferring reported figures.
	TotalProfit decimal.Decimal `json:"total_profit"`
	// ProfitReported sums only the backend-supplied profit figures.
	ProfitReported decimal.Decimal `json:"profit_reported"`
	// ProfitEstimated is the 30%-of-revenue heuristic over the whole filter
	// window. Kept separate from ProfitReported; no reconciliation between
	// the two is attempted.
	ProfitEstimated decimal.Decimal `json:"profit_estimated"`
}

// Aggregate derives Stats from the backend's raw per-period buckets. Pure and
// deterministic: no I/O, same inputs always produce the same output. Roll-ups
// are recomputed from the per-month entries, never taken from the raw totals,
// so the invariant total == sum(months) holds by construction.
func Aggregate(raw RawStats, filter Filter) Stats {
	stats := Stats{
		Filter: filter,
		Months: make(map[string]MonthStats, 12),
	}
	for month := 1; month <= 12; month++ {
		stats.Months[strconv.Itoa(month)] = MonthStats{
			TotalPrice: decimal.Zero,
			Profit:     decimal.Zero,
		}
	}

	for key, period := range raw.Sales {
		month, err := strconv.Atoi(key)
		if err != nil || month < 1 || month > 12 {
			continue
		}
		// A reported zero stays zero; only an absent figure is estimated.
		profit := decimal.Zero
		if period.Profit != nil {
			profit = *period.Profit
			stats.ProfitReported = stats.ProfitReported.Add(profit)
		} else if !period.TotalPrice.IsZero() {
			profit = period.TotalPrice.Mul(profitEstimateRate)
		}
		stats.Months[strconv.Itoa(month)] = MonthStats{
			Orders:     period.Orders,
			TotalPrice: period.TotalPrice,
			Profit:     profit,
		}
	}

	stats.Total = decimal.Zero
	stats.TotalProfit = decimal.Zero
	for _, bucket := range stats.Months {
		stats.Total = stats.Total.Add(bucket.TotalPrice)
		stats.TotalProfit = stats.TotalProfit.Add(bucket.Profit)
		stats.Orders += bucket.Orders
	}
	stats.ProfitEstimated = stats.Total.Mul(profitEstimateRate)
	return stats
}

// Month returns the bucket for a 1-based month number.
func (s Stats) Month(n int) MonthStats {
	return s.Months[strconv.Itoa(n)]
}

// Zeroed reports whether the stats carry no sales at all, the degraded shape
// dashboards render when the stats fetch failed but other slots loaded.
func (s Stats) Zeroed() bool {
	return s.Orders == 0 && s.Total.IsZero()
}
