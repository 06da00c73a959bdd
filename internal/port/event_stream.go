package port

import (
	"context"
	"errors"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

// SubscriptionStatus is the terminal status of one subscribe/unsubscribe cycle.
type SubscriptionStatus string

const (
	StatusSubscribed   SubscriptionStatus = "subscribed"
	StatusChannelError SubscriptionStatus = "channel_error"
	StatusTimedOut     SubscriptionStatus = "timed_out"
	StatusClosed       SubscriptionStatus = "closed"
)

var (
	ErrSubscriptionTimedOut = errors.New("subscription timed out")
	ErrSubscriptionChannel  = errors.New("subscription channel error")
	ErrSubscriptionClosed   = errors.New("subscription closed")
)

type EventStream interface {
	// Subscribe blocks until the owner's change feed is confirmed or fails
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}

type Subscription interface {
	// Events delivers change events in arrival order and is closed when the subscription ends
	Events() <-chan domain.ChangeEvent

	// Status reports the terminal status once Events is closed, StatusSubscribed before
	Status() SubscriptionStatus

	// Close detaches the subscription; safe to call more than once
	Close() error
}

type EventPublisher interface {
	// Publish announces a remote mutation on the owner's change feed
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// StatusError maps a terminal subscription status to its sentinel error.
func StatusError(status SubscriptionStatus) error {
	switch status {
	case StatusTimedOut:
		return ErrSubscriptionTimedOut
	case StatusChannelError:
		return ErrSubscriptionChannel
	case StatusClosed:
		return ErrSubscriptionClosed
	}
	return nil
}
