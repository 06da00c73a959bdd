package port

import (
	"context"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

type NotificationSurface interface {
	// AddNotification hands an alert to whatever displays it to the user
	AddNotification(ctx context.Context, alert domain.Alert) error
}
