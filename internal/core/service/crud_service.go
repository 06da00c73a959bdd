package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
	"github.com/rl1809/stock-sync/internal/port"
)

const DefaultBulkConcurrency = 8

// CrudService issues owner-scoped mutations to the remote store. It never
// writes to the replica: a successful call is visible locally only once the
// matching change event arrives.
type CrudService struct {
	store       port.RemoteStore
	ownerID     string
	concurrency int
	logger      zerolog.Logger
}

// BulkResult reports the per-item outcome of a concurrent bulk update.
type BulkResult struct {
	Succeeded []string         `json:"succeeded"`
	Failed    map[string]error `json:"-"`
}

func NewCrudService(store port.RemoteStore, ownerID string, concurrency int, logger zerolog.Logger) *CrudService {
	if concurrency <= 0 {
		concurrency = DefaultBulkConcurrency
	}
	return &CrudService{
		store:       store,
		ownerID:     ownerID,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (s *CrudService) Create(ctx context.Context, fields domain.ItemFields) (domain.Item, error) {
	if err := fields.Validate(); err != nil {
		return domain.Item{}, err
	}

	var item domain.Item
	err := s.call("create", func() error {
		var err error
		item, err = s.store.Insert(ctx, s.ownerID, fields)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("name", fields.Name).Msg("create item failed")
		return domain.Item{}, fmt.Errorf("create item: %w", err)
	}
	return item, nil
}

// Update sends only the fields present in patch.
func (s *CrudService) Update(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	if err := requireID(id); err != nil {
		return domain.Item{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Item{}, err
	}

	var item domain.Item
	err := s.call("update", func() error {
		var err error
		item, err = s.store.Update(ctx, id, s.ownerID, patch)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", id).Msg("update item failed")
		return domain.Item{}, fmt.Errorf("update item %s: %w", id, err)
	}
	return item, nil
}

func (s *CrudService) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}

	err := s.call("delete", func() error {
		return s.store.Delete(ctx, id, s.ownerID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", id).Msg("delete item failed")
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// BulkDelete removes ids in one remote batch; atomicity is whatever the
// remote store provides.
func (s *CrudService) BulkDelete(ctx context.Context, ids []string) error {
	unique, err := uniqueIDs(ids)
	if err != nil {
		return err
	}

	err = s.call("bulk_delete", func() error {
		return s.store.DeleteMany(ctx, unique, s.ownerID)
	})
	if err != nil {
		s.logger.Error().Err(err).Int("count", len(unique)).Msg("bulk delete failed")
		return fmt.Errorf("bulk delete %d items: %w", len(unique), err)
	}
	return nil
}

// BulkUpdate validates every patch up front, then issues the updates as
// independent concurrent requests. The returned error joins every failure.
func (s *CrudService) BulkUpdate(ctx context.Context, patches map[string]domain.ItemPatch) (BulkResult, error) {
	result := BulkResult{Failed: make(map[string]error)}
	if len(patches) == 0 {
		return result, &domain.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for id, patch := range patches {
		if err := requireID(id); err != nil {
			return result, err
		}
		if err := patch.Validate(); err != nil {
			return result, fmt.Errorf("item %s: %w", id, err)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for id, patch := range patches {
		g.Go(func() error {
			_, err := s.Update(gctx, id, patch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
			} else {
				result.Succeeded = append(result.Succeeded, id)
			}
			// failures are collected, not propagated, so siblings keep running
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failed) == 0 {
		return result, nil
	}
	errs := make([]error, 0, len(result.Failed))
	for _, err := range result.Failed {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}

// FetchAll returns the owner's full snapshot ordered by name.
func (s *CrudService) FetchAll(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := s.call("fetch_all", func() error {
		var err error
		items, err = s.store.SelectAll(ctx, s.ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	return items, nil
}

func (s *CrudService) call(op string, fn func() error) error {
	timer := prometheus.NewTimer(metrics.CrudDuration.WithLabelValues(op))
	err := fn()
	timer.ObserveDuration()

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CrudRequests.WithLabelValues(op, result).Inc()
	return err
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	return nil
}

func uniqueIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Field: "ids", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := requireID(id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
