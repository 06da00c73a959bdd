package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/metrics"
)

func newCrudHarness() (*CrudService, *fakeStore, *ReplicaStore) {
	store := newFakeStore()
	return NewCrudService(store, owner, 4, zerolog.Nop()), store, NewReplicaStore()
}

func validFields(name string) domain.ItemFields {
	return domain.ItemFields{
		Name:     name,
		Category: "dairy",
		Unit:     "l",
		Stock:    12,
		Minimum:  4,
		UnitCost: decimal.RequireFromString("1.25"),
	}
}

func TestCreate_SendsOwnerScopedInsert(t *testing.T) {
	svc, store, replica := newCrudHarness()

	item, err := svc.Create(context.Background(), validFields("Milk"))

	require.NoError(t, err)
	assert.Equal(t, owner, item.OwnerID)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 1, store.callCount())
	assert.Zero(t, replica.Len(), "replica changes only through events")
}

func TestCreate_ValidationRejectsBeforeRemoteCall(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*domain.ItemFields)
	}{
		{name: "empty name", field: "name", edit: func(f *domain.ItemFields) { f.Name = "  " }},
		{name: "negative stock", field: "stock", edit: func(f *domain.ItemFields) { f.Stock = -1 }},
		{name: "negative minimum", field: "minimum", edit: func(f *domain.ItemFields) { f.Minimum = -0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newCrudHarness()
			fields := validFields("Milk")
			tt.edit(&fields)

			_, err := svc.Create(context.Background(), fields)

			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, store.callCount())
		})
	}
}

func TestCreate_RemoteFailureIsWrapped(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.err = errors.New("connection refused")

	_, err := svc.Create(context.Background(), validFields("Milk"))

	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
	assert.Contains(t, err.Error(), "create item")
}

func TestUpdate_SendsOnlyPatchedFields(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2))
	stock := 9.0

	item, err := svc.Update(context.Background(), "a", domain.ItemPatch{Stock: &stock})

	require.NoError(t, err)
	assert.Equal(t, 9.0, item.Stock)
	assert.Equal(t, "Milk", item.Name)
	assert.Nil(t, store.lastPatch.Name)
	assert.Nil(t, store.lastPatch.Minimum)
	require.NotNil(t, store.lastPatch.Stock)
	assert.Equal(t, 9.0, *store.lastPatch.Stock)
}

func TestUpdate_Rejections(t *testing.T) {
	negative := -3.0
	empty := ""

	tests := []struct {
		name    string
		id      string
		patch   domain.ItemPatch
		wantErr error
	}{
		{name: "missing id", id: "", patch: domain.ItemPatch{}, wantErr: domain.ErrValidation},
		{name: "negative stock", id: "a", patch: domain.ItemPatch{Stock: &negative}, wantErr: domain.ErrValidation},
		{name: "blank name", id: "a", patch: domain.ItemPatch{Name: &empty}, wantErr: domain.ErrValidation},
		{name: "unknown id", id: "zzz", patch: domain.ItemPatch{Stock: new(float64)}, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newCrudHarness()
			store.seed(testItem("a", "Milk", 4, 2))

			_, err := svc.Update(context.Background(), tt.id, tt.patch)

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func latencySamples(t *testing.T, op string) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.CrudDuration.WithLabelValues(op).(prometheus.Histogram).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestRemoteCalls_RecordLatencyAndOutcome(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2))
	samples := latencySamples(t, "delete")
	ok := testutil.ToFloat64(metrics.CrudRequests.WithLabelValues("delete", "ok"))
	failed := testutil.ToFloat64(metrics.CrudRequests.WithLabelValues("delete", "error"))

	require.NoError(t, svc.Delete(context.Background(), "a"))
	require.Error(t, svc.Delete(context.Background(), "a"))

	assert.Equal(t, samples+2, latencySamples(t, "delete"))
	assert.Equal(t, ok+1, testutil.ToFloat64(metrics.CrudRequests.WithLabelValues("delete", "ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.CrudRequests.WithLabelValues("delete", "error")))
}

func TestDelete(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2))

	require.NoError(t, svc.Delete(context.Background(), "a"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "a"), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), " "), domain.ErrValidation)
}

func TestBulkDelete_DedupesIDs(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2), testItem("b", "Eggs", 4, 2))

	require.NoError(t, svc.BulkDelete(context.Background(), []string{"a", "b", "a"}))

	assert.Equal(t, []string{"a", "b"}, store.lastDeleteMany)
	items, err := svc.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBulkDelete_EmptyIsValidationError(t *testing.T) {
	svc, store, _ := newCrudHarness()

	assert.ErrorIs(t, svc.BulkDelete(context.Background(), nil), domain.ErrValidation)
	assert.Zero(t, store.callCount())
}

func TestBulkUpdate_CollectsPerItemFailures(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2), testItem("b", "Eggs", 4, 2), testItem("c", "Salt", 4, 2))
	store.failIDs["b"] = true
	stock := 1.0

	result, err := svc.BulkUpdate(context.Background(), map[string]domain.ItemPatch{
		"a": {Stock: &stock},
		"b": {Stock: &stock},
		"c": {Stock: &stock},
	})

	require.Error(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed["b"].Error(), "remote rejected b")
	assert.Equal(t, 3, store.callCount())
}

func TestBulkUpdate_InvalidPatchSendsNothing(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2))
	good, bad := 1.0, -1.0

	_, err := svc.BulkUpdate(context.Background(), map[string]domain.ItemPatch{
		"a": {Stock: &good},
		"b": {Stock: &bad},
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, store.callCount())
}

func TestFetchAll_OrdersByName(t *testing.T) {
	svc, store, _ := newCrudHarness()
	store.seed(testItem("a", "Milk", 4, 2), testItem("b", "Eggs", 4, 2))
	other := testItem("x", "Bread", 1, 1)
	other.OwnerID = "owner-2"
	store.seed(other)

	items, err := svc.FetchAll(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Eggs", items[0].Name)
	assert.Equal(t, "Milk", items[1].Name)
}
