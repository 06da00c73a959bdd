package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/analysis"
	"github.com/rl1809/stock-sync/internal/core/dedup"
	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
	"github.com/rl1809/stock-sync/internal/port"
)

type AlertConfig struct {
	StockAlertCap      int
	ExpiryAlertCap     int
	ExpiryWindowDays   int
	CriticalExpiryDays int
	SummaryThreshold   int
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		StockAlertCap:      3,
		ExpiryAlertCap:     2,
		ExpiryWindowDays:   3,
		CriticalExpiryDays: 1,
		SummaryThreshold:   5,
	}
}

type AlertOption func(*AlertService)

func WithAlertClock(now func() time.Time) AlertOption {
	return func(s *AlertService) { s.now = now }
}

// AlertService turns replica state into prioritized, deduplicated alerts and
// hands them to the notification surface. Delivery failures are logged and
// never stop evaluation of the remaining alerts.
type AlertService struct {
	ownerID  string
	dedup    *dedup.Deduplicator
	notifier port.NotificationSurface
	cfg      AlertConfig
	now      func() time.Time
	logger   zerolog.Logger
}

func NewAlertService(ownerID string, d *dedup.Deduplicator, notifier port.NotificationSurface, cfg AlertConfig, logger zerolog.Logger, opts ...AlertOption) *AlertService {
	s := &AlertService{
		ownerID:  ownerID,
		dedup:    d,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate scans a snapshot and emits at most StockAlertCap alerts per stock
// condition and ExpiryAlertCap per expiry condition, plus one summary when the
// total number of issues exceeds SummaryThreshold.
func (s *AlertService) Evaluate(ctx context.Context, items []domain.Item) []domain.Alert {
	now := s.now()

	outOfStock := analysis.OutOfStock(items)
	lowStock := analysis.LowStock(items)
	expiring := analysis.Expiring(items, s.cfg.ExpiryWindowDays, now)
	expired := analysis.Expired(items, now)

	alerts := make([]domain.Alert, 0)
	for _, item := range capped(outOfStock, s.cfg.StockAlertCap) {
		alerts = s.emit(ctx, alerts, s.outOfStockAlert(item, now))
	}
	for _, item := range capped(lowStock, s.cfg.StockAlertCap) {
		alerts = s.emit(ctx, alerts, s.lowStockAlert(item, now))
	}
	for _, item := range capped(expiring, s.cfg.ExpiryAlertCap) {
		alerts = s.emit(ctx, alerts, s.expiringAlert(item, now))
	}
	for _, item := range capped(expired, s.cfg.ExpiryAlertCap) {
		alerts = s.emit(ctx, alerts, s.expiredAlert(item, now))
	}

	total := len(outOfStock) + len(lowStock) + len(expiring) + len(expired)
	if total > s.cfg.SummaryThreshold {
		alerts = s.emit(ctx, alerts, s.summaryAlert(total, now))
	}
	return alerts
}

// OnItemAdded announces the new item and any condition it already has.
func (s *AlertService) OnItemAdded(ctx context.Context, item domain.Item) []domain.Alert {
	now := s.now()
	alerts := s.emit(ctx, make([]domain.Alert, 0), s.lifecycleAlert(domain.AlertItemAdded, item, now))
	return s.conditionAlerts(ctx, alerts, item, now)
}

// OnItemUpdated re-checks the item. Conditions that no longer hold have their
// dedup keys evicted so a later relapse alerts immediately.
func (s *AlertService) OnItemUpdated(ctx context.Context, item domain.Item) []domain.Alert {
	now := s.now()
	alerts := s.conditionAlerts(ctx, make([]domain.Alert, 0), item, now)
	return s.emit(ctx, alerts, s.lifecycleAlert(domain.AlertItemUpdated, item, now))
}

// OnItemDeleted drops every dedup key derived from the item.
func (s *AlertService) OnItemDeleted(ctx context.Context, item domain.Item) []domain.Alert {
	for _, kind := range itemConditionKinds {
		s.dedup.Evict(dedupKey(kind, item.ID))
	}
	return s.emit(ctx, make([]domain.Alert, 0), s.lifecycleAlert(domain.AlertItemDeleted, item, s.now()))
}

func (s *AlertService) OnBulkOperation(ctx context.Context, kind string, count int) []domain.Alert {
	if count <= 0 {
		return nil
	}
	now := s.now()
	alert := domain.Alert{
		Kind:         domain.AlertBulk,
		Severity:     domain.SeverityLow,
		Title:        "Bulk " + kind + " completed",
		Message:      fmt.Sprintf("%d items affected by bulk %s", count, kind),
		CurrentValue: float64(count),
		DedupKey:     fmt.Sprintf("%s-%s-%d", domain.AlertBulk, kind, count),
	}
	return s.emit(ctx, make([]domain.Alert, 0), s.stamp(alert, now))
}

var itemConditionKinds = []domain.AlertKind{
	domain.AlertOutOfStock,
	domain.AlertLowStock,
	domain.AlertExpiringSoon,
	domain.AlertExpired,
}

func (s *AlertService) conditionAlerts(ctx context.Context, alerts []domain.Alert, item domain.Item, now time.Time) []domain.Alert {
	switch {
	case analysis.IsOutOfStock(item):
		s.dedup.Evict(dedupKey(domain.AlertLowStock, item.ID))
		alerts = s.emit(ctx, alerts, s.outOfStockAlert(item, now))
	case analysis.IsLowStock(item):
		s.dedup.Evict(dedupKey(domain.AlertOutOfStock, item.ID))
		alerts = s.emit(ctx, alerts, s.lowStockAlert(item, now))
	default:
		s.dedup.Evict(dedupKey(domain.AlertOutOfStock, item.ID))
		s.dedup.Evict(dedupKey(domain.AlertLowStock, item.ID))
	}

	switch {
	case analysis.IsExpired(item, now):
		s.dedup.Evict(dedupKey(domain.AlertExpiringSoon, item.ID))
		alerts = s.emit(ctx, alerts, s.expiredAlert(item, now))
	case analysis.IsExpiringSoon(item, s.cfg.ExpiryWindowDays, now):
		s.dedup.Evict(dedupKey(domain.AlertExpired, item.ID))
		alerts = s.emit(ctx, alerts, s.expiringAlert(item, now))
	default:
		s.dedup.Evict(dedupKey(domain.AlertExpiringSoon, item.ID))
		s.dedup.Evict(dedupKey(domain.AlertExpired, item.ID))
	}
	return alerts
}

// emit delivers alert if its dedup key is not in its window and appends it.
func (s *AlertService) emit(ctx context.Context, alerts []domain.Alert, alert domain.Alert) []domain.Alert {
	if !s.dedup.ShouldSend(alert.DedupKey) {
		metrics.AlertsSuppressed.Inc()
		return alerts
	}

	metrics.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()
	if s.notifier != nil {
		if err := s.notifier.AddNotification(ctx, alert); err != nil {
			metrics.AlertDeliveryFailures.Inc()
			s.logger.Error().Err(err).Str("dedup_key", alert.DedupKey).Msg("alert delivery failed")
		}
	}
	return append(alerts, alert)
}

func (s *AlertService) outOfStockAlert(item domain.Item, now time.Time) domain.Alert {
	return s.stamp(domain.Alert{
		Kind:         domain.AlertOutOfStock,
		Severity:     domain.SeverityHigh,
		ItemID:       item.ID,
		Title:        "Out of stock",
		Message:      fmt.Sprintf("%s is out of stock (reorder level %s %s)", item.Name, formatQty(item.Minimum), item.Unit),
		CurrentValue: item.Stock,
		Threshold:    item.Minimum,
		DedupKey:     dedupKey(domain.AlertOutOfStock, item.ID),
	}, now)
}

func (s *AlertService) lowStockAlert(item domain.Item, now time.Time) domain.Alert {
	pct := analysis.StockPercentage(item)
	return s.stamp(domain.Alert{
		Kind:         domain.AlertLowStock,
		Severity:     domain.SeverityMedium,
		ItemID:       item.ID,
		Title:        "Low stock",
		Message:      fmt.Sprintf("%s is running low: %s of %s %s (%.0f%%)", item.Name, formatQty(item.Stock), formatQty(item.Minimum), item.Unit, pct),
		CurrentValue: item.Stock,
		Threshold:    item.Minimum,
		Percentage:   pct,
		DedupKey:     dedupKey(domain.AlertLowStock, item.ID),
	}, now)
}

func (s *AlertService) expiringAlert(item domain.Item, now time.Time) domain.Alert {
	days := analysis.DaysUntilExpiry(item, now)
	severity := domain.SeverityMedium
	if days <= s.cfg.CriticalExpiryDays {
		severity = domain.SeverityHigh
	}
	return s.stamp(domain.Alert{
		Kind:            domain.AlertExpiringSoon,
		Severity:        severity,
		ItemID:          item.ID,
		Title:           "Expiring soon",
		Message:         fmt.Sprintf("%s expires in %d day(s)", item.Name, days),
		CurrentValue:    float64(days),
		Threshold:       float64(s.cfg.ExpiryWindowDays),
		DaysUntilExpiry: days,
		DedupKey:        dedupKey(domain.AlertExpiringSoon, item.ID),
	}, now)
}

func (s *AlertService) expiredAlert(item domain.Item, now time.Time) domain.Alert {
	days := analysis.DaysUntilExpiry(item, now)
	return s.stamp(domain.Alert{
		Kind:            domain.AlertExpired,
		Severity:        domain.SeverityHigh,
		ItemID:          item.ID,
		Title:           "Expired",
		Message:         fmt.Sprintf("%s expired %d day(s) ago", item.Name, -days),
		CurrentValue:    float64(days),
		DaysUntilExpiry: days,
		DedupKey:        dedupKey(domain.AlertExpired, item.ID),
	}, now)
}

// summaryAlert keys on the exact total, so any change in the count re-alerts.
func (s *AlertService) summaryAlert(total int, now time.Time) domain.Alert {
	return s.stamp(domain.Alert{
		Kind:         domain.AlertSummary,
		Severity:     domain.SeverityMedium,
		Title:        "Inventory needs attention",
		Message:      fmt.Sprintf("%d items need attention", total),
		CurrentValue: float64(total),
		Threshold:    float64(s.cfg.SummaryThreshold),
		DedupKey:     fmt.Sprintf("%s-%d", domain.AlertSummary, total),
	}, now)
}

func (s *AlertService) lifecycleAlert(kind domain.AlertKind, item domain.Item, now time.Time) domain.Alert {
	var title string
	switch kind {
	case domain.AlertItemAdded:
		title = "Item added"
	case domain.AlertItemUpdated:
		title = "Item updated"
	default:
		title = "Item deleted"
	}
	return s.stamp(domain.Alert{
		Kind:         kind,
		Severity:     domain.SeverityLow,
		ItemID:       item.ID,
		Title:        title,
		Message:      fmt.Sprintf("%s: %s %s", item.Name, formatQty(item.Stock), item.Unit),
		CurrentValue: item.Stock,
		Threshold:    item.Minimum,
		DedupKey:     dedupKey(kind, item.ID),
	}, now)
}

func (s *AlertService) stamp(alert domain.Alert, now time.Time) domain.Alert {
	alert.ID = uuid.NewString()
	alert.OwnerID = s.ownerID
	alert.CreatedAt = now
	return alert
}

func dedupKey(kind domain.AlertKind, itemID string) string {
	return string(kind) + "-" + itemID
}

func capped(items []domain.Item, n int) []domain.Item {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
