package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

const (
	notificationKeyPrefix  = "inventory:notifications:"
	DefaultNotificationCap = 200
)

func NotificationKey(ownerID string) string {
	return notificationKeyPrefix + ownerID
}

// RedisNotifier keeps the newest alerts of each owner in a capped list.
type RedisNotifier struct {
	client *redis.Client
	limit  int64
}

func NewRedisNotifier(client *redis.Client, limit int) *RedisNotifier {
	if limit <= 0 {
		limit = DefaultNotificationCap
	}
	return &RedisNotifier{client: client, limit: int64(limit)}
}

func (r *RedisNotifier) AddNotification(ctx context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	key := NotificationKey(alert.OwnerID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, r.limit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Recent returns up to n alerts for the owner, newest first.
func (r *RedisNotifier) Recent(ctx context.Context, ownerID string, n int) ([]domain.Alert, error) {
	if n <= 0 || int64(n) > r.limit {
		n = int(r.limit)
	}

	raw, err := r.client.LRange(ctx, NotificationKey(ownerID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(raw))
	for _, entry := range raw {
		var alert domain.Alert
		if err := json.Unmarshal([]byte(entry), &alert); err != nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
