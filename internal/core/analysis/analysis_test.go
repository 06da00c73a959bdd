package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

var now = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func expiringIn(days int) *time.Time {
	t := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &t
}

func TestDaysUntilExpiry(t *testing.T) {
	tests := []struct {
		name   string
		expiry *time.Time
		want   int
	}{
		{"no expiry", nil, NoExpiry},
		{"today", expiringIn(0), 0},
		{"tomorrow", expiringIn(1), 1},
		{"next week", expiringIn(7), 7},
		{"yesterday", expiringIn(-1), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysUntilExpiry(domain.Item{ExpiryDate: tt.expiry}, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysUntilExpiry_ClockOutsideUTC(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	est := time.FixedZone("EST", -5*60*60)
	utcDate := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	tests := []struct {
		name   string
		now    time.Time
		expiry *time.Time
		want   int
	}{
		{"ahead of UTC, expires today", time.Date(2030, 1, 1, 10, 0, 0, 0, wib), utcDate(2030, 1, 1), 0},
		{"ahead of UTC, expires tomorrow", time.Date(2030, 1, 1, 10, 0, 0, 0, wib), utcDate(2030, 1, 2), 1},
		{"ahead of UTC, just after local midnight", time.Date(2030, 1, 2, 0, 30, 0, 0, wib), utcDate(2030, 1, 2), 0},
		{"behind UTC, expires today", time.Date(2030, 1, 1, 22, 0, 0, 0, est), utcDate(2030, 1, 1), 0},
		{"behind UTC, expires tomorrow", time.Date(2030, 1, 1, 22, 0, 0, 0, est), utcDate(2030, 1, 2), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.Item{ExpiryDate: tt.expiry}

			assert.Equal(t, tt.want, DaysUntilExpiry(item, tt.now))
			assert.Equal(t, tt.want <= 0, IsExpired(item, tt.now))
			assert.Equal(t, tt.want > 0, IsExpiringSoon(item, 3, tt.now))
		})
	}
}

func TestStockClassificationBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		stock, min float64
		outOfStock bool
		lowStock   bool
	}{
		{"zero stock is out of stock only", 0, 5, true, false},
		{"stock equal to minimum is low", 5, 5, false, true},
		{"stock below minimum is low", 3, 10, false, true},
		{"stock above minimum is fine", 6, 5, false, false},
		{"zero minimum never low", 2, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.Item{Stock: tt.stock, Minimum: tt.min}
			assert.Equal(t, tt.outOfStock, IsOutOfStock(item))
			assert.Equal(t, tt.lowStock, IsLowStock(item))
		})
	}
}

func TestExpiryClassificationBoundaries(t *testing.T) {
	expiresToday := domain.Item{ExpiryDate: expiringIn(0)}
	assert.True(t, IsExpired(expiresToday, now))
	assert.False(t, IsExpiringSoon(expiresToday, 7, now))

	inAWeek := domain.Item{ExpiryDate: expiringIn(7)}
	assert.True(t, IsExpiringSoon(inAWeek, 7, now))
	assert.False(t, IsExpiringSoon(inAWeek, 3, now))
	assert.False(t, IsExpired(inAWeek, now))

	noExpiry := domain.Item{}
	assert.False(t, IsExpired(noExpiry, now))
	assert.False(t, IsExpiringSoon(noExpiry, 365, now))
}

func TestStockPercentage(t *testing.T) {
	assert.Equal(t, 30.0, StockPercentage(domain.Item{Stock: 3, Minimum: 10}))
	assert.Equal(t, 33.0, StockPercentage(domain.Item{Stock: 1, Minimum: 3}))
	assert.Equal(t, 0.0, StockPercentage(domain.Item{Stock: 3, Minimum: 0}))
}

func TestAggregateStats(t *testing.T) {
	items := []domain.Item{
		{ID: "a", Category: "dairy", Stock: 0, Minimum: 2, UnitCost: decimal.RequireFromString("4.50")},
		{ID: "b", Category: "dairy", Stock: 2, Minimum: 5, UnitCost: decimal.RequireFromString("1.25"), ExpiryDate: expiringIn(2)},
		{ID: "c", Category: "flour", Stock: 10, Minimum: 1, UnitCost: decimal.RequireFromString("0.80"), ExpiryDate: expiringIn(-3)},
		{ID: "d", Category: "flour", Stock: 4, Minimum: 1, UnitCost: decimal.RequireFromString("2"), ExpiryDate: expiringIn(30)},
	}

	stats := AggregateStats(items, now)

	assert.Equal(t, 4, stats.TotalItems)
	assert.True(t, decimal.RequireFromString("18.5").Equal(stats.TotalValue), stats.TotalValue.String())
	assert.Equal(t, map[string]int{"dairy": 2, "flour": 2}, stats.CountsByCategory)
	assert.Equal(t, 1, stats.OutOfStockCount)
	assert.Equal(t, 1, stats.LowStockCount)
	assert.Equal(t, 1, stats.ExpiringCount)
	assert.Equal(t, 1, stats.ExpiredCount)
}

func TestFiltersReturnEmptySlices(t *testing.T) {
	assert.NotNil(t, OutOfStock(nil))
	assert.Empty(t, LowStock([]domain.Item{{Stock: 10, Minimum: 1}}))
	assert.Empty(t, Expiring(nil, 3, now))
	assert.Empty(t, Expired(nil, now))
}
