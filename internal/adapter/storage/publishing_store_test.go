package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

type stubStore struct {
	err error
}

func (s *stubStore) Insert(ctx context.Context, ownerID string, fields domain.ItemFields) (domain.Item, error) {
	return domain.Item{ID: "new", OwnerID: ownerID, Name: fields.Name, Category: fields.Category}, s.err
}

func (s *stubStore) Update(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.Item, error) {
	return patch.Apply(domain.Item{ID: id, OwnerID: ownerID, Name: "Milk", Category: "dairy"}), s.err
}

func (s *stubStore) Delete(ctx context.Context, id, ownerID string) error {
	return s.err
}

func (s *stubStore) DeleteMany(ctx context.Context, ids []string, ownerID string) error {
	return s.err
}

func (s *stubStore) SelectAll(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return nil, s.err
}

type recordingPublisher struct {
	events []domain.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.ChangeEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestPublishingStore_AnnouncesMutations(t *testing.T) {
	publisher := &recordingPublisher{}
	store := NewPublishingStore(&stubStore{}, publisher, zerolog.Nop())
	ctx := context.Background()

	_, err := store.Insert(ctx, "owner-1", domain.ItemFields{Name: "Milk", Category: "dairy"})
	require.NoError(t, err)
	stock := 2.0
	_, err = store.Update(ctx, "new", "owner-1", domain.ItemPatch{Stock: &stock})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "new", "owner-1"))
	require.NoError(t, store.DeleteMany(ctx, []string{"a", "b"}, "owner-1"))

	require.Len(t, publisher.events, 5)
	assert.Equal(t, domain.ChangeCreated, publisher.events[0].Type)
	assert.Equal(t, "Milk", publisher.events[0].Item.Name)
	assert.Equal(t, domain.ChangeUpdated, publisher.events[1].Type)
	assert.Equal(t, 2.0, publisher.events[1].Item.Stock)
	assert.Equal(t, "new", publisher.events[2].ItemID)
	assert.Equal(t, []string{"a", "b"}, []string{publisher.events[3].ItemID, publisher.events[4].ItemID})
	for _, event := range publisher.events {
		assert.Equal(t, "owner-1", event.OwnerID)
		assert.NoError(t, event.Validate())
	}
}

func TestPublishingStore_FailedMutationPublishesNothing(t *testing.T) {
	publisher := &recordingPublisher{}
	store := NewPublishingStore(&stubStore{err: domain.ErrNotFound}, publisher, zerolog.Nop())

	err := store.Delete(context.Background(), "x", "owner-1")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, publisher.events)
}

func TestPublishingStore_PublishFailureKeepsMutationResult(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("redis down")}
	store := NewPublishingStore(&stubStore{}, publisher, zerolog.Nop())

	item, err := store.Insert(context.Background(), "owner-1", domain.ItemFields{Name: "Milk", Category: "dairy"})

	require.NoError(t, err)
	assert.Equal(t, "new", item.ID)
	assert.Len(t, publisher.events, 1)
}
