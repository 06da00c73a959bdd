package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/port"
)

// PublishingStore announces every successful mutation of the wrapped store on
// the owner's change feed. A failed publish does not fail the mutation; the
// replica catches up on its next reload.
type PublishingStore struct {
	store     port.RemoteStore
	publisher port.EventPublisher
	logger    zerolog.Logger
}

func NewPublishingStore(store port.RemoteStore, publisher port.EventPublisher, logger zerolog.Logger) *PublishingStore {
	return &PublishingStore{store: store, publisher: publisher, logger: logger}
}

func (p *PublishingStore) Insert(ctx context.Context, ownerID string, fields domain.ItemFields) (domain.Item, error) {
	item, err := p.store.Insert(ctx, ownerID, fields)
	if err != nil {
		return domain.Item{}, err
	}
	p.publish(ctx, domain.ChangeEvent{Type: domain.ChangeCreated, OwnerID: ownerID, Item: &item})
	return item, nil
}

func (p *PublishingStore) Update(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.Item, error) {
	item, err := p.store.Update(ctx, id, ownerID, patch)
	if err != nil {
		return domain.Item{}, err
	}
	p.publish(ctx, domain.ChangeEvent{Type: domain.ChangeUpdated, OwnerID: ownerID, Item: &item})
	return item, nil
}

func (p *PublishingStore) Delete(ctx context.Context, id, ownerID string) error {
	if err := p.store.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	p.publish(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, OwnerID: ownerID, ItemID: id})
	return nil
}

// DeleteMany publishes one delete per requested id; deletes of ids that did
// not exist are no-ops for consumers.
func (p *PublishingStore) DeleteMany(ctx context.Context, ids []string, ownerID string) error {
	if err := p.store.DeleteMany(ctx, ids, ownerID); err != nil {
		return err
	}
	for _, id := range ids {
		p.publish(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, OwnerID: ownerID, ItemID: id})
	}
	return nil
}

func (p *PublishingStore) SelectAll(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return p.store.SelectAll(ctx, ownerID)
}

func (p *PublishingStore) publish(ctx context.Context, event domain.ChangeEvent) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", string(event.Type)).
			Str("item_id", event.SubjectID()).
			Msg("publish change event failed")
	}
}
