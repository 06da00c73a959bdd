package service

import (
	"slices"
	"strings"
	"sync"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

// ReplicaStore is the local mirror of one owner's remote inventory. It is kept
// sorted by name; all writers serialize through its mutex.
type ReplicaStore struct {
	mu    sync.RWMutex
	items []domain.Item
}

func NewReplicaStore() *ReplicaStore {
	return &ReplicaStore{}
}

// Upsert inserts the item or replaces the one with the same id. It reports
// whether the item was new.
func (r *ReplicaStore) Upsert(item domain.Item) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := true
	if i := r.indexOf(item.ID); i >= 0 {
		r.items[i] = item
		inserted = false
	} else {
		r.items = append(r.items, item)
	}
	sortByName(r.items)
	return inserted
}

// Remove deletes the item with the given id and returns it, if present.
func (r *ReplicaStore) Remove(id string) (domain.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return domain.Item{}, false
	}
	removed := r.items[i]
	r.items = slices.Delete(r.items, i, i+1)
	return removed, true
}

// Replace swaps the whole replica for a freshly loaded snapshot.
func (r *ReplicaStore) Replace(items []domain.Item) {
	next := slices.Clone(items)
	sortByName(next)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = next
}

func (r *ReplicaStore) Get(id string) (domain.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.items[i], true
	}
	return domain.Item{}, false
}

// Snapshot returns a copy safe to hand to analysis code.
func (r *ReplicaStore) Snapshot() []domain.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Item, len(r.items))
	copy(out, r.items)
	return out
}

func (r *ReplicaStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *ReplicaStore) indexOf(id string) int {
	return slices.IndexFunc(r.items, func(item domain.Item) bool {
		return item.ID == id
	})
}

func sortByName(items []domain.Item) {
	slices.SortStableFunc(items, func(a, b domain.Item) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
