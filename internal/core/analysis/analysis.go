// Package analysis classifies and aggregates inventory snapshots. Every
// function is pure: the caller passes the reference time and re-derives on
// each replica change.
package analysis

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

// NoExpiry is returned by DaysUntilExpiry for items without an expiry date.
const NoExpiry = math.MaxInt

// StatsExpiryWindowDays is the window AggregateStats uses for its expiring count.
const StatsExpiryWindowDays = 7

const day = 24 * time.Hour

// DaysUntilExpiry counts whole days from the start of today to the expiry
// date, rounding up. Today is now's calendar date, compared against the
// expiry's wall clock in the expiry's own location.
func DaysUntilExpiry(item domain.Item, now time.Time) int {
	if item.ExpiryDate == nil {
		return NoExpiry
	}
	expiry := *item.ExpiryDate
	today := startOfDay(now, expiry.Location())
	diff := expiry.Sub(today)
	return int(math.Ceil(float64(diff) / float64(day)))
}

func IsOutOfStock(item domain.Item) bool {
	return item.Stock == 0
}

func IsLowStock(item domain.Item) bool {
	return item.Stock > 0 && item.Stock <= item.Minimum
}

func IsExpiringSoon(item domain.Item, windowDays int, now time.Time) bool {
	days := DaysUntilExpiry(item, now)
	return days != NoExpiry && days > 0 && days <= windowDays
}

func IsExpired(item domain.Item, now time.Time) bool {
	if item.ExpiryDate == nil {
		return false
	}
	return DaysUntilExpiry(item, now) <= 0
}

// StockPercentage is stock as a rounded percentage of the reorder minimum.
func StockPercentage(item domain.Item) float64 {
	if item.Minimum <= 0 {
		return 0
	}
	return math.Round(item.Stock / item.Minimum * 100)
}

func OutOfStock(items []domain.Item) []domain.Item {
	return filter(items, IsOutOfStock)
}

func LowStock(items []domain.Item) []domain.Item {
	return filter(items, IsLowStock)
}

func Expiring(items []domain.Item, windowDays int, now time.Time) []domain.Item {
	return filter(items, func(item domain.Item) bool {
		return IsExpiringSoon(item, windowDays, now)
	})
}

func Expired(items []domain.Item, now time.Time) []domain.Item {
	return filter(items, func(item domain.Item) bool {
		return IsExpired(item, now)
	})
}

func AggregateStats(items []domain.Item, now time.Time) domain.InventoryStats {
	stats := domain.InventoryStats{
		TotalItems:       len(items),
		TotalValue:       decimal.Zero,
		CountsByCategory: make(map[string]int),
	}
	for _, item := range items {
		stats.TotalValue = stats.TotalValue.Add(decimal.NewFromFloat(item.Stock).Mul(item.UnitCost))
		stats.CountsByCategory[item.Category]++

		switch {
		case IsOutOfStock(item):
			stats.OutOfStockCount++
		case IsLowStock(item):
			stats.LowStockCount++
		}
		switch {
		case IsExpired(item, now):
			stats.ExpiredCount++
		case IsExpiringSoon(item, StatsExpiryWindowDays, now):
			stats.ExpiringCount++
		}
	}
	return stats
}

func filter(items []domain.Item, keep func(domain.Item) bool) []domain.Item {
	out := make([]domain.Item, 0)
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// startOfDay is midnight of t's calendar date, placed in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
