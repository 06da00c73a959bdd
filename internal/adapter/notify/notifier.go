// Package notify holds notification surfaces that do not need a backing
// store.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

// LogNotifier writes each alert as a structured log line, at a level
// matching its severity.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) AddNotification(ctx context.Context, alert domain.Alert) error {
	var event *zerolog.Event
	switch alert.Severity {
	case domain.SeverityHigh:
		event = n.logger.Warn()
	case domain.SeverityMedium:
		event = n.logger.Info()
	default:
		event = n.logger.Debug()
	}

	event.
		Str("alert_id", alert.ID).
		Str("owner_id", alert.OwnerID).
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Str("item_id", alert.ItemID).
		Str("dedup_key", alert.DedupKey).
		Float64("current", alert.CurrentValue).
		Msg(alert.Title + ": " + alert.Message)
	return nil
}

// Fanout delivers to every surface and joins their errors.
type Fanout []port.NotificationSurface

func (f Fanout) AddNotification(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, surface := range f {
		if err := surface.AddNotification(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
