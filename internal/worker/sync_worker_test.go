package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/amqp"
	"spendlog/internal/core"
	"spendlog/internal/storage"
)

func setupWorker(t *testing.T, batchSize int) (*SyncWorker, *storage.SQLiteRepository, int64) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	user, err := repo.CreateUser(context.Background(), "ada", "Ada", "Lovelace", "ada@example.com", "hash")
	require.NoError(t, err)

	return NewSyncWorker(repo, batchSize), repo, user.ID
}

func createExpense(t *testing.T, repo *storage.SQLiteRepository, owner int64, date string) core.Expense {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	e, err := repo.CreateExpense(context.Background(), owner, 100, d, "Food", "test", nil)
	require.NoError(t, err)
	return e
}

func TestHandleEventMarksSynced(t *testing.T) {
	w, repo, owner := setupWorker(t, 10)
	e := createExpense(t, repo, owner, "2025-01-05")

	msg := amqp.NewExpenseEventMessage(e.ID, owner, amqp.ActionCreated)
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	pending, err := repo.ListPendingSyncIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleEventDeletedActionIsNoop(t *testing.T) {
	w, _, owner := setupWorker(t, 10)

	msg := amqp.NewExpenseEventMessage(12345, owner, amqp.ActionDeleted)
	assert.NoError(t, w.HandleEvent(context.Background(), msg))
}

func TestHandleEventMissingRowIsAcked(t *testing.T) {
	w, _, owner := setupWorker(t, 10)

	// The row was deleted between publish and consume; the event must be
	// acked rather than requeued forever.
	msg := amqp.NewExpenseEventMessage(99999, owner, amqp.ActionUpdated)
	assert.NoError(t, w.HandleEvent(context.Background(), msg))
}

func TestStartupScanDrainsPending(t *testing.T) {
	w, repo, owner := setupWorker(t, 2) // batch smaller than the backlog
	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04", "2025-01-05"} {
		createExpense(t, repo, owner, date)
	}

	require.NoError(t, w.StartupScan(context.Background()))

	pending, err := repo.ListPendingSyncIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStartupScanEmptyBacklog(t *testing.T) {
	w, _, _ := setupWorker(t, 10)
	assert.NoError(t, w.StartupScan(context.Background()))
}

func TestHandleEventRecordsTimestamp(t *testing.T) {
	w, repo, owner := setupWorker(t, 10)
	e := createExpense(t, repo, owner, "2025-01-05")

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	msg := amqp.NewExpenseEventMessage(e.ID, owner, amqp.ActionCreated)
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	pending, err := repo.ListPendingSyncIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
