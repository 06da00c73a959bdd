package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

// fakeSubscription is a controllable port.Subscription.
type fakeSubscription struct {
	ownerID string
	events  chan domain.ChangeEvent
	mu      sync.Mutex
	status  port.SubscriptionStatus
	done    bool
	closes  int
}

func newFakeSubscription(ownerID string) *fakeSubscription {
	return &fakeSubscription{
		ownerID: ownerID,
		events:  make(chan domain.ChangeEvent, 64),
		status:  port.StatusSubscribed,
	}
}

func (s *fakeSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *fakeSubscription) Status() port.SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.end(port.StatusClosed)
	return nil
}

func (s *fakeSubscription) closeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSubscription) end(status port.SubscriptionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.status = status
	close(s.events)
}

func (s *fakeSubscription) send(event domain.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.events <- event
	return true
}

func (s *fakeSubscription) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// fakeStream hands out fakeSubscriptions and can be told to fail.
type fakeStream struct {
	mu       sync.Mutex
	subs     []*fakeSubscription
	failNext []error
}

func (f *fakeStream) Subscribe(ctx context.Context, ownerID string) (port.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return nil, err
	}
	sub := newFakeSubscription(ownerID)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeStream) Publish(ctx context.Context, event domain.ChangeEvent) error {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, sub := range subs {
		if sub.ownerID == event.OwnerID {
			sub.send(event)
		}
	}
	return nil
}

func (f *fakeStream) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, errs...)
}

func (f *fakeStream) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeStore is an in-memory port.RemoteStore that optionally publishes
// change events like the real publishing store does.
type fakeStore struct {
	mu             sync.Mutex
	items          map[string]domain.Item
	seq            int
	calls          int
	selectAllCalls int
	lastPatch      domain.ItemPatch
	lastDeleteMany []string
	err            error
	failIDs        map[string]bool
	publisher      port.EventPublisher
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:   make(map[string]domain.Item),
		failIDs: make(map[string]bool),
	}
}

func (f *fakeStore) seed(items ...domain.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.items[item.ID] = item
	}
}

func (f *fakeStore) Insert(ctx context.Context, ownerID string, fields domain.ItemFields) (domain.Item, error) {
	f.mu.Lock()
	f.calls++
	if f.err != nil {
		f.mu.Unlock()
		return domain.Item{}, f.err
	}
	f.seq++
	now := time.Now()
	item := domain.Item{
		ID:         fmt.Sprintf("item-%d", f.seq),
		OwnerID:    ownerID,
		Name:       fields.Name,
		Category:   fields.Category,
		Unit:       fields.Unit,
		Supplier:   fields.Supplier,
		Stock:      fields.Stock,
		Minimum:    fields.Minimum,
		UnitCost:   fields.UnitCost,
		ExpiryDate: fields.ExpiryDate,
		Purchase:   fields.Purchase,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.items[item.ID] = item
	f.mu.Unlock()

	f.publish(ctx, domain.ChangeEvent{Type: domain.ChangeCreated, OwnerID: ownerID, Item: &item})
	return item, nil
}

func (f *fakeStore) Update(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.Item, error) {
	f.mu.Lock()
	f.calls++
	f.lastPatch = patch
	if f.err != nil || f.failIDs[id] {
		f.mu.Unlock()
		return domain.Item{}, fmt.Errorf("remote rejected %s", id)
	}
	item, ok := f.items[id]
	if !ok || item.OwnerID != ownerID {
		f.mu.Unlock()
		return domain.Item{}, domain.ErrNotFound
	}
	item = patch.Apply(item)
	item.UpdatedAt = time.Now()
	f.items[id] = item
	f.mu.Unlock()

	f.publish(ctx, domain.ChangeEvent{Type: domain.ChangeUpdated, OwnerID: ownerID, Item: &item})
	return item, nil
}

func (f *fakeStore) Delete(ctx context.Context, id, ownerID string) error {
	f.mu.Lock()
	f.calls++
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	item, ok := f.items[id]
	if !ok || item.OwnerID != ownerID {
		f.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(f.items, id)
	f.mu.Unlock()

	f.publish(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, OwnerID: ownerID, ItemID: id})
	return nil
}

func (f *fakeStore) DeleteMany(ctx context.Context, ids []string, ownerID string) error {
	f.mu.Lock()
	f.calls++
	f.lastDeleteMany = slices.Clone(ids)
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	var deleted []string
	for _, id := range ids {
		if item, ok := f.items[id]; ok && item.OwnerID == ownerID {
			delete(f.items, id)
			deleted = append(deleted, id)
		}
	}
	f.mu.Unlock()

	for _, id := range deleted {
		f.publish(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, OwnerID: ownerID, ItemID: id})
	}
	return nil
}

func (f *fakeStore) SelectAll(ctx context.Context, ownerID string) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectAllCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Item, 0, len(f.items))
	for _, item := range f.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b domain.Item) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (f *fakeStore) reloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectAllCalls
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) publish(ctx context.Context, event domain.ChangeEvent) {
	if f.publisher != nil {
		_ = f.publisher.Publish(ctx, event)
	}
}

// fakeNotifier records delivered alerts.
type fakeNotifier struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	attempts int
	err      error
}

func (n *fakeNotifier) AddNotification(ctx context.Context, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) kinds() []domain.AlertKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.AlertKind, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a.Kind)
	}
	return out
}

// fakeTimers captures scheduled retries so tests fire them explicitly.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) RetryTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, 0, len(f.timers))
	for _, t := range f.timers {
		out = append(out, t.delay)
	}
	return out
}

func (f *fakeTimers) latest() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

// fireLatest runs the most recent timer's callback on the calling goroutine,
// as time.AfterFunc would once the delay elapsed, even if it was stopped.
func (f *fakeTimers) fireLatest() {
	if t := f.latest(); t != nil {
		t.fn()
	}
}

// fixedClock is a mutable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testItem(id, name string, stock, minimum float64) domain.Item {
	return domain.Item{
		ID:       id,
		OwnerID:  "owner-1",
		Name:     name,
		Category: "general",
		Unit:     "pcs",
		Stock:    stock,
		Minimum:  minimum,
	}
}
