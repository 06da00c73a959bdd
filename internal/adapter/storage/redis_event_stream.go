package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
	"github.com/rl1809/stock-sync/internal/port"
)

const (
	eventChannelPrefix      = "inventory:events:"
	DefaultSubscribeTimeout = 10 * time.Second
	subscriptionBuffer      = 256
)

func EventChannel(ownerID string) string {
	return eventChannelPrefix + ownerID
}

// RedisEventStream carries change events over one pub/sub channel per owner.
type RedisEventStream struct {
	client           *redis.Client
	subscribeTimeout time.Duration
	logger           zerolog.Logger
}

func NewRedisEventStream(client *redis.Client, subscribeTimeout time.Duration, logger zerolog.Logger) *RedisEventStream {
	if subscribeTimeout <= 0 {
		subscribeTimeout = DefaultSubscribeTimeout
	}
	return &RedisEventStream{
		client:           client,
		subscribeTimeout: subscribeTimeout,
		logger:           logger,
	}
}

// Subscribe waits for the server to confirm the subscription. No confirmation
// within the subscribe timeout is reported as ErrSubscriptionTimedOut.
func (r *RedisEventStream) Subscribe(ctx context.Context, ownerID string) (port.Subscription, error) {
	channel := EventChannel(ownerID)
	ps := r.client.Subscribe(ctx, channel)

	confirmCtx, cancel := context.WithTimeout(ctx, r.subscribeTimeout)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		if confirmCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s: %w", port.ErrSubscriptionTimedOut, channel, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", port.ErrSubscriptionChannel, channel, err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan domain.ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
		status: port.StatusSubscribed,
		logger: r.logger.With().Str("channel", channel).Logger(),
	}
	go sub.run(ctx)
	return sub, nil
}

func (r *RedisEventStream) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, EventChannel(event.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	events    chan domain.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger

	mu     sync.Mutex
	status port.SubscriptionStatus
}

func (s *redisSubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *redisSubscription) Status() port.SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.events)

	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			s.end(ctx, err)
			return
		}

		var event domain.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			metrics.EventsSkipped.Inc()
			s.logger.Warn().Err(err).Msg("dropping undecodable change event")
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			s.setStatus(port.StatusClosed)
			return
		}
	}
}

// end records why the receive loop stopped. Errors caused by Close or by the
// caller's context count as a clean close; any other error releases the
// pubsub connection.
func (s *redisSubscription) end(ctx context.Context, err error) {
	select {
	case <-s.done:
		s.setStatus(port.StatusClosed)
		return
	default:
	}
	if ctx.Err() != nil {
		s.setStatus(port.StatusClosed)
		return
	}
	s.logger.Warn().Err(err).Msg("change feed receive failed")
	s.setStatus(port.StatusChannelError)
	if cerr := s.Close(); cerr != nil {
		s.logger.Debug().Err(cerr).Msg("closing failed pubsub")
	}
}

func (s *redisSubscription) setStatus(status port.SubscriptionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}
