package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/analysis"
	"github.com/rl1809/stock-sync/internal/core/dedup"
	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

type SessionConfig struct {
	OwnerID         string
	MaxRetries      int
	BaseDelay       time.Duration
	DedupWindow     time.Duration
	DedupCapacity   int
	BulkConcurrency int
	Alerts          AlertConfig
}

type SessionDeps struct {
	Store    port.RemoteStore
	Stream   port.EventStream
	Notifier port.NotificationSurface
	Logger   zerolog.Logger

	// Optional overrides, used by tests.
	Now       func() time.Time
	AfterFunc func(time.Duration, func()) RetryTimer
}

// Session wires the sync and alerting core for a single owner and exposes the
// read side to the outer layers.
type Session struct {
	ownerID  string
	replica  *ReplicaStore
	conn     *ConnectionManager
	consumer *ChangeConsumer
	crud     *CrudService
	alerts   *AlertService
	now      func() time.Time
	logger   zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	d, err := dedup.New(cfg.DedupWindow, cfg.DedupCapacity, dedup.WithClock(now))
	if err != nil {
		return nil, err
	}

	var connOpts []ConnectionOption
	if deps.AfterFunc != nil {
		connOpts = append(connOpts, WithAfterFunc(deps.AfterFunc))
	}
	logger := deps.Logger.With().Str("owner_id", cfg.OwnerID).Logger()

	s := &Session{
		ownerID: cfg.OwnerID,
		replica: NewReplicaStore(),
		conn:    NewConnectionManager(cfg.MaxRetries, cfg.BaseDelay, logger.With().Str("component", "connection").Logger(), connOpts...),
		crud:    NewCrudService(deps.Store, cfg.OwnerID, cfg.BulkConcurrency, logger.With().Str("component", "crud").Logger()),
		alerts:  NewAlertService(cfg.OwnerID, d, deps.Notifier, cfg.Alerts, logger.With().Str("component", "alerts").Logger(), WithAlertClock(now)),
		now:     now,
		logger:  logger,
	}
	s.consumer = NewChangeConsumer(
		deps.Stream,
		deps.Store,
		s.replica,
		s.conn,
		alertListener{s.alerts},
		logger.With().Str("component", "consumer").Logger(),
	)
	return s, nil
}

// Start begins consuming the owner's change feed. A failed first subscribe is
// returned but retries continue in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	return s.consumer.Start(runCtx, s.ownerID)
}

// Reconnect is the manual refresh used once retries are exhausted.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	runCtx := s.ctx
	s.mu.Unlock()
	if runCtx == nil {
		return ErrConsumerStopped
	}

	s.conn.Reset()
	return s.consumer.Start(runCtx, s.ownerID)
}

func (s *Session) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.consumer.Stop()
	s.conn.Dispose()
}

func (s *Session) OwnerID() string {
	return s.ownerID
}

func (s *Session) Items() []domain.Item {
	return s.replica.Snapshot()
}

func (s *Session) GetLowStockItems() []domain.Item {
	return analysis.LowStock(s.replica.Snapshot())
}

func (s *Session) GetOutOfStockItems() []domain.Item {
	return analysis.OutOfStock(s.replica.Snapshot())
}

func (s *Session) GetExpiringItems(days int) []domain.Item {
	return analysis.Expiring(s.replica.Snapshot(), days, s.now())
}

func (s *Session) GetExpiredItems() []domain.Item {
	return analysis.Expired(s.replica.Snapshot(), s.now())
}

func (s *Session) GetInventoryStats() domain.InventoryStats {
	return analysis.AggregateStats(s.replica.Snapshot(), s.now())
}

func (s *Session) IsConnected() bool {
	return s.conn.IsConnected()
}

func (s *Session) ConnectionStatus() domain.ConnectionStatus {
	return s.conn.Status()
}

func (s *Session) OnConnectionChange(fn func(domain.ConnectionStatus)) {
	s.conn.OnChange(fn)
}

func (s *Session) EvaluateAlerts(ctx context.Context) []domain.Alert {
	return s.alerts.Evaluate(ctx, s.replica.Snapshot())
}

func (s *Session) CreateItem(ctx context.Context, fields domain.ItemFields) (domain.Item, error) {
	return s.crud.Create(ctx, fields)
}

func (s *Session) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	return s.crud.Update(ctx, id, patch)
}

func (s *Session) DeleteItem(ctx context.Context, id string) error {
	return s.crud.Delete(ctx, id)
}

func (s *Session) BulkDelete(ctx context.Context, ids []string) error {
	if err := s.crud.BulkDelete(ctx, ids); err != nil {
		return err
	}
	s.alerts.OnBulkOperation(ctx, "delete", len(ids))
	return nil
}

func (s *Session) BulkUpdate(ctx context.Context, patches map[string]domain.ItemPatch) (BulkResult, error) {
	result, err := s.crud.BulkUpdate(ctx, patches)
	s.alerts.OnBulkOperation(ctx, "update", len(result.Succeeded))
	return result, err
}

func (s *Session) FetchAll(ctx context.Context) ([]domain.Item, error) {
	return s.crud.FetchAll(ctx)
}

// alertListener adapts AlertService to ChangeListener.
type alertListener struct {
	alerts *AlertService
}

func (l alertListener) OnItemAdded(ctx context.Context, item domain.Item) {
	l.alerts.OnItemAdded(ctx, item)
}

func (l alertListener) OnItemUpdated(ctx context.Context, item domain.Item) {
	l.alerts.OnItemUpdated(ctx, item)
}

func (l alertListener) OnItemDeleted(ctx context.Context, item domain.Item) {
	l.alerts.OnItemDeleted(ctx, item)
}

func (l alertListener) OnReload(ctx context.Context, items []domain.Item) {
	l.alerts.Evaluate(ctx, items)
}
