// Package services orchestrates domain operations across storage and the
// event pipeline. Handlers never touch the repository directly.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/core"
	"spendlog/internal/storage"
)

// EventPublisher publishes expense lifecycle events after local commits.
// A nil publisher disables the pipeline; operations still succeed.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}

// ExpenseService applies the expense lifecycle rules on top of the
// owner-scoped repository.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	now       func() time.Time
}

func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
		now:       time.Now,
	}
}

// ExpenseInput carries the mutable fields of an expense, pre-decoding but
// pre-validation. Create and Update share it.
type ExpenseInput struct {
	AmountCents int64
	Date        core.Date
	Category    string
	Description string
}

func (in ExpenseInput) toExpense() core.Expense {
	return core.Expense{
		Amount:      core.Money{Cents: in.AmountCents},
		Date:        in.Date,
		Category:    in.Category,
		Description: strings.TrimSpace(in.Description),
	}
}

// List returns the owner's expenses ordered by date descending, id
// descending. The list is recomputed from storage on every call.
func (s *ExpenseService) List(ctx context.Context, ownerID int64) ([]core.Expense, error) {
	expenses, err := s.storage.ListExpenses(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// Create validates the input and stores a new expense. An expense dated
// on or before today is created already paid (the entry records settled
// spending); a future-dated one starts unpaid, awaiting confirmation.
func (s *ExpenseService) Create(ctx context.Context, ownerID int64, in ExpenseInput) (core.Expense, error) {
	candidate := in.toExpense()
	if err := candidate.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := s.now()
	var paidAt *time.Time
	if !candidate.Date.After(core.DateOf(now).Time) {
		t := now.UTC()
		paidAt = &t
	}

	expense, err := s.storage.CreateExpense(ctx, ownerID, candidate.Amount.Cents, candidate.Date, candidate.Category, candidate.Description, paidAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.publish(ctx, expense.ID, ownerID, amqp.ActionCreated)
	return expense, nil
}

// Update rewrites amount, date, category, and description. The paid flag
// is untouched: editing an expense never changes its paid state.
func (s *ExpenseService) Update(ctx context.Context, ownerID, id int64, in ExpenseInput) error {
	candidate := in.toExpense()
	if err := candidate.Validate(); err != nil {
		return err
	}

	if err := s.storage.UpdateExpense(ctx, ownerID, id, candidate.Amount.Cents, candidate.Date, candidate.Category, candidate.Description); err != nil {
		return err
	}

	s.publish(ctx, id, ownerID, amqp.ActionUpdated)
	return nil
}

// SetPaid transitions the two-state paid flag. Marking paid always stamps
// a fresh paid_at, including re-marking an already-paid expense; marking
// unpaid clears it. Both directions are idempotent on the terminal state.
func (s *ExpenseService) SetPaid(ctx context.Context, ownerID, id int64, paid bool) error {
	var paidAt *time.Time
	action := amqp.ActionPaidCleared
	if paid {
		t := s.now().UTC()
		paidAt = &t
		action = amqp.ActionPaidSet
	}

	if err := s.storage.SetExpensePaid(ctx, ownerID, id, paidAt); err != nil {
		return err
	}

	s.publish(ctx, id, ownerID, action)
	return nil
}

// Delete removes the expense permanently.
func (s *ExpenseService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.storage.DeleteExpense(ctx, ownerID, id); err != nil {
		return err
	}

	s.publish(ctx, id, ownerID, amqp.ActionDeleted)
	return nil
}

// Summary loads the owner's ledger, applies the filter, and derives the
// bucketed view with the pure engine in core. A zero today defaults to the
// server's current date; a zero filter passes everything through.
func (s *ExpenseService) Summary(ctx context.Context, ownerID int64, today core.Date, filter core.Filter) (core.Summary, error) {
	if today.IsZero() {
		today = core.DateOf(s.now())
	}
	expenses, err := s.storage.ListExpenses(ctx, ownerID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("load expenses for summary: %w", err)
	}
	return core.Summarize(core.ApplyFilters(expenses, filter), today), nil
}

func (s *ExpenseService) publish(ctx context.Context, expenseID, ownerID int64, action string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseEventMessage(expenseID, ownerID, action)
	if err := s.publisher.PublishExpenseEvent(ctx, msg); err != nil {
		// The local write already committed; the worker's startup scan
		// picks up rows whose events never made it out.
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"expense_id", expenseID,
			"user_id", ownerID,
			"action", action,
			"error", err)
	}
}

// Close releases the underlying storage.
func (s *ExpenseService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}
