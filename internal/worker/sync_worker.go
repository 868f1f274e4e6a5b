// Package worker consumes expense lifecycle events and acknowledges them
// against the local database. The server commits locally first and
// publishes asynchronously; this worker is the downstream side that marks
// rows as delivered and recovers events that never made it onto the bus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/core"
	"spendlog/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	batchSize int
	now       func() time.Time
}

func NewSyncWorker(storage *storage.SQLiteRepository, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleEvent processes one expense event from the queue. Deleted rows
// need no marker; everything else is fetched and marked synced. A fetch
// failure requeues the event via the consumer's nack.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	slog.InfoContext(ctx, "Processing expense event",
		"expense_id", msg.ExpenseID,
		"user_id", msg.UserID,
		"action", msg.Action)

	if msg.Action == amqp.ActionDeleted {
		return nil
	}

	expense, err := w.storage.GetExpenseByID(ctx, msg.ExpenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Row deleted after the event was published; nothing to mark.
			slog.WarnContext(ctx, "Expense gone before event processed", "expense_id", msg.ExpenseID)
			return nil
		}
		return fmt.Errorf("load expense %d: %w", msg.ExpenseID, err)
	}

	if err := w.storage.MarkExpenseSynced(ctx, expense.ID, w.now()); err != nil {
		if markErr := w.storage.MarkExpenseSyncError(ctx, expense.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record sync error", "expense_id", expense.ID, "error", markErr)
		}
		return fmt.Errorf("mark expense synced: %w", err)
	}

	slog.InfoContext(ctx, "Expense event acknowledged",
		"expense_id", expense.ID,
		"user_id", expense.UserID,
		"action", msg.Action,
		"amount_cents", expense.Amount.Cents)

	return nil
}

// StartupScan drains rows left 'pending' by publish failures or worker
// downtime, in batches, until none remain.
func (w *SyncWorker) StartupScan(ctx context.Context) error {
	for {
		ids, err := w.storage.ListPendingSyncIDs(ctx, w.batchSize)
		if err != nil {
			return fmt.Errorf("startup scan: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		slog.InfoContext(ctx, "Startup scan found pending expenses", "count", len(ids))

		for _, id := range ids {
			if err := w.storage.MarkExpenseSynced(ctx, id, w.now()); err != nil {
				return fmt.Errorf("startup scan mark %d: %w", id, err)
			}
		}

		if len(ids) < w.batchSize {
			return nil
		}
	}
}
