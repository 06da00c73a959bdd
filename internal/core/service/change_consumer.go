package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
	"github.com/rl1809/stock-sync/internal/port"
)

var (
	ErrConsumerStopped = errors.New("consumer stopped")
	errForeignOwner    = errors.New("record belongs to another owner")
)

// ChangeListener observes replica mutations after they are applied.
type ChangeListener interface {
	OnItemAdded(ctx context.Context, item domain.Item)
	OnItemUpdated(ctx context.Context, item domain.Item)
	OnItemDeleted(ctx context.Context, item domain.Item)
	OnReload(ctx context.Context, items []domain.Item)
}

// ChangeConsumer keeps the replica in step with the owner's change feed.
//
// Each Start opens a new generation. Events, reloads and retries carry the
// generation they were issued under and are dropped once it is superseded, so
// nothing from a torn-down subscription reaches the replica after Stop.
type ChangeConsumer struct {
	stream   port.EventStream
	store    port.RemoteStore
	replica  *ReplicaStore
	conn     *ConnectionManager
	listener ChangeListener
	logger   zerolog.Logger

	mu      sync.Mutex
	ownerID string
	gen     uint64
	stopped bool
	sub     port.Subscription

	// applyMu serializes event application with full reloads.
	applyMu sync.Mutex
	wg      sync.WaitGroup
}

func NewChangeConsumer(
	stream port.EventStream,
	store port.RemoteStore,
	replica *ReplicaStore,
	conn *ConnectionManager,
	listener ChangeListener,
	logger zerolog.Logger,
) *ChangeConsumer {
	return &ChangeConsumer{
		stream:   stream,
		store:    store,
		replica:  replica,
		conn:     conn,
		listener: listener,
		logger:   logger,
		stopped:  true,
	}
}

// Start subscribes to ownerID's feed, reloads the replica from the remote
// store and then applies events in arrival order. A failed subscribe is
// reported to the connection manager, which calls back into the consumer.
func (c *ChangeConsumer) Start(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.ownerID = ownerID
	c.stopped = false
	old := c.sub
	c.sub = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return c.connect(ctx, gen)
}

// Stop detaches the subscription, cancels any pending retry and waits for the
// event loop to drain.
func (c *ChangeConsumer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gen++
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	c.conn.MarkDisconnected()
	if sub != nil {
		_ = sub.Close()
	}
	c.wg.Wait()
}

func (c *ChangeConsumer) OwnerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownerID
}

func (c *ChangeConsumer) connect(ctx context.Context, gen uint64) error {
	ownerID, ok := c.current(gen)
	if !ok {
		return ErrConsumerStopped
	}

	c.conn.MarkConnecting()
	sub, err := c.stream.Subscribe(ctx, ownerID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("subscribe failed")
		c.fail(ctx, gen, err)
		return err
	}

	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		_ = sub.Close()
		return ErrConsumerStopped
	}
	c.sub = sub
	c.wg.Add(1)
	c.mu.Unlock()

	c.conn.MarkConnected()
	c.logger.Info().Msg("change feed subscribed")

	// Events buffered on the subscription wait until the reload has landed.
	if err := c.reload(ctx, gen); err != nil {
		c.logger.Error().Err(err).Msg("reload after subscribe failed")
	}

	go c.consume(ctx, gen, sub)
	return nil
}

func (c *ChangeConsumer) consume(ctx context.Context, gen uint64, sub port.Subscription) {
	defer c.wg.Done()

	for event := range sub.Events() {
		c.apply(ctx, gen, event)
	}

	c.mu.Lock()
	live := !c.stopped && gen == c.gen
	if live {
		c.sub = nil
	}
	c.mu.Unlock()
	if !live {
		return
	}

	status := sub.Status()
	if cerr := sub.Close(); cerr != nil {
		c.logger.Debug().Err(cerr).Msg("closing ended subscription")
	}
	err := port.StatusError(status)
	if err == nil {
		err = port.ErrSubscriptionClosed
	}
	c.logger.Warn().Str("status", string(status)).Msg("change feed ended")
	c.fail(ctx, gen, err)
}

func (c *ChangeConsumer) fail(ctx context.Context, gen uint64, err error) {
	if _, ok := c.current(gen); !ok {
		return
	}
	c.conn.HandleError(err, func() {
		c.retry(ctx, gen)
	})
}

func (c *ChangeConsumer) retry(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	next := c.gen
	c.mu.Unlock()

	_ = c.connect(ctx, next)
}

// reload replaces the replica with a full snapshot. It is the only
// reconciliation for events missed while disconnected.
func (c *ChangeConsumer) reload(ctx context.Context, gen uint64) error {
	ownerID, ok := c.current(gen)
	if !ok {
		return ErrConsumerStopped
	}

	items, err := c.store.SelectAll(ctx, ownerID)
	if err != nil {
		metrics.ReloadsTotal.WithLabelValues("error").Inc()
		return err
	}

	valid := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if err := c.checkItem(item, ownerID); err != nil {
			metrics.EventsSkipped.Inc()
			c.logger.Warn().Err(err).Str("item_id", item.ID).Msg("skipping record from reload")
			continue
		}
		valid = append(valid, item)
	}

	c.applyMu.Lock()
	if _, ok := c.current(gen); !ok {
		c.applyMu.Unlock()
		return ErrConsumerStopped
	}
	c.replica.Replace(valid)
	snapshot := c.replica.Snapshot()
	c.applyMu.Unlock()

	metrics.ReloadsTotal.WithLabelValues("ok").Inc()
	metrics.ReplicaItems.Set(float64(len(snapshot)))
	c.logger.Info().Int("items", len(snapshot)).Msg("replica reloaded")

	if c.listener != nil {
		c.listener.OnReload(ctx, snapshot)
	}
	return nil
}

// apply handles one event idempotently: duplicate creates become updates,
// updates for unknown ids insert, deletes for unknown ids are no-ops.
func (c *ChangeConsumer) apply(ctx context.Context, gen uint64, event domain.ChangeEvent) {
	c.applyMu.Lock()

	ownerID, ok := c.current(gen)
	if !ok {
		c.applyMu.Unlock()
		metrics.EventsSkipped.Inc()
		return
	}
	if err := c.checkEvent(event, ownerID); err != nil {
		c.applyMu.Unlock()
		metrics.EventsSkipped.Inc()
		c.logger.Warn().Err(err).Str("event_type", string(event.Type)).Str("item_id", event.SubjectID()).Msg("skipping change event")
		return
	}

	var notify func()
	switch event.Type {
	case domain.ChangeCreated, domain.ChangeUpdated:
		item := *event.Item
		inserted := c.replica.Upsert(item)
		if inserted && event.Type == domain.ChangeCreated {
			notify = func() { c.listener.OnItemAdded(ctx, item) }
		} else {
			notify = func() { c.listener.OnItemUpdated(ctx, item) }
		}
	case domain.ChangeDeleted:
		if removed, ok := c.replica.Remove(event.SubjectID()); ok {
			notify = func() { c.listener.OnItemDeleted(ctx, removed) }
		}
	}
	size := c.replica.Len()
	c.applyMu.Unlock()

	metrics.EventsApplied.WithLabelValues(string(event.Type)).Inc()
	metrics.ReplicaItems.Set(float64(size))
	c.logger.Debug().Str("event_type", string(event.Type)).Str("item_id", event.SubjectID()).Msg("change event applied")

	if notify != nil && c.listener != nil {
		notify()
	}
}

func (c *ChangeConsumer) checkEvent(event domain.ChangeEvent, ownerID string) error {
	if event.OwnerID != ownerID {
		return errForeignOwner
	}
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Item != nil {
		return c.checkItem(*event.Item, ownerID)
	}
	return nil
}

func (c *ChangeConsumer) checkItem(item domain.Item, ownerID string) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.OwnerID != ownerID {
		return errForeignOwner
	}
	return nil
}

func (c *ChangeConsumer) current(gen uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || gen != c.gen {
		return "", false
	}
	return c.ownerID, true
}
