package port

import (
	"context"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

type RemoteStore interface {
	// Insert creates a new item for the owner and returns the stored record
	Insert(ctx context.Context, ownerID string, fields domain.ItemFields) (domain.Item, error)

	// Update writes only the fields present in the patch, scoped to the owner
	Update(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.Item, error)

	// Delete removes an item when both id and owner match
	Delete(ctx context.Context, id, ownerID string) error

	// DeleteMany removes a batch of items in a single remote call
	DeleteMany(ctx context.Context, ids []string, ownerID string) error

	// SelectAll returns every item of the owner ordered by name
	SelectAll(ctx context.Context, ownerID string) ([]domain.Item, error)
}
