package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(r *ReplicaStore) []string {
	var out []string
	for _, item := range r.Snapshot() {
		out = append(out, item.Name)
	}
	return out
}

func TestReplicaStore_UpsertKeepsNameOrder(t *testing.T) {
	r := NewReplicaStore()

	assert.True(t, r.Upsert(testItem("1", "Sugar", 5, 1)))
	assert.True(t, r.Upsert(testItem("2", "butter", 5, 1)))
	assert.True(t, r.Upsert(testItem("3", "Flour", 5, 1)))
	assert.Equal(t, []string{"butter", "Flour", "Sugar"}, names(r))

	assert.False(t, r.Upsert(testItem("1", "Almonds", 2, 1)))
	assert.Equal(t, []string{"Almonds", "butter", "Flour"}, names(r))
	assert.Equal(t, 3, r.Len())
}

func TestReplicaStore_Remove(t *testing.T) {
	r := NewReplicaStore()
	r.Upsert(testItem("1", "Sugar", 5, 1))

	removed, ok := r.Remove("1")
	require.True(t, ok)
	assert.Equal(t, "Sugar", removed.Name)

	_, ok = r.Remove("1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestReplicaStore_ReplaceAndSnapshotAreCopies(t *testing.T) {
	r := NewReplicaStore()
	items := []struct{ id, name string }{{"b", "Yeast"}, {"a", "Eggs"}}
	for _, it := range items {
		r.Upsert(testItem(it.id, it.name, 1, 0))
	}
	fresh := r.Snapshot()
	fresh[0].Name = "Mutated"
	assert.Equal(t, []string{"Eggs", "Yeast"}, names(r))

	r.Replace(fresh)
	assert.Equal(t, []string{"Mutated", "Yeast"}, names(r))
	fresh[1].Name = "Changed again"
	assert.Equal(t, []string{"Mutated", "Yeast"}, names(r))

	got, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Yeast", got.Name)
}
