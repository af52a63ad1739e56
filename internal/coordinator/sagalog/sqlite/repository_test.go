package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo, err := New(db)
	require.NoError(t, err)
	return repo
}

func TestSaveAndGetLatest(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rec := sagalog.NewRecord("o-1", sagalog.KindCreateOrder, "o-1", "hold", []sagalog.ItemState{
		{ProductID: "p-1", Quantity: 3, State: sagalog.ItemHeld},
	})
	rec.Status = sagalog.StatusStarted
	rec.UpdatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Save(ctx, rec))

	rec.Status = sagalog.StatusStepDone
	rec.PastPivot = true
	rec.Items[0].State = sagalog.ItemCommitted
	rec.Errors = []string{"x"}
	rec.Payload = `{"oldStatus":"PENDING"}`
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.GetLatest(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusStepDone, got.Status)
	assert.True(t, got.PastPivot)
	assert.Equal(t, sagalog.KindCreateOrder, got.Kind)
	assert.Equal(t, "hold", got.Mode)
	assert.Equal(t, []sagalog.ItemState{{ProductID: "p-1", Quantity: 3, State: sagalog.ItemCommitted}}, got.Items)
	assert.Equal(t, []string{"x"}, got.Errors)
	assert.JSONEq(t, `{"oldStatus":"PENDING"}`, got.Payload)
}

func TestGetLatestNotFound(t *testing.T) {
	_, err := newRepo(t).GetLatest(context.Background(), "missing")
	assert.ErrorIs(t, err, sagalog.ErrNotFound)
}

func TestListInFlight(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	old := time.Now().Add(-time.Hour)

	save := func(id string, status sagalog.Status, at time.Time) {
		rec := sagalog.NewRecord(id, sagalog.KindCreateOrder, id, "hold", nil)
		rec.Status = status
		rec.UpdatedAt = at
		require.NoError(t, repo.Save(ctx, rec))
	}

	save("stuck", sagalog.StatusStarted, old)
	save("stuck", sagalog.StatusFailed, old.Add(time.Second))
	save("done", sagalog.StatusStarted, old)
	save("done", sagalog.StatusCompleted, old.Add(time.Second))
	save("fresh", sagalog.StatusStepDone, time.Now())

	got, err := repo.ListInFlight(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stuck", got[0].SagaID)
	assert.Equal(t, sagalog.StatusFailed, got[0].Status)
}
