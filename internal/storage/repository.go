// Package storage implements the SQLite-backed repositories for users,
// sessions, and expenses. All expense queries are owner-scoped: a row id
// belonging to another user is indistinguishable from a missing row.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spendlog/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps in-memory databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ---- users ----

// CreateUser stores a new user. The email must already be lower-cased by
// the caller; UNIQUE violations come back as core.ConflictError.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, firstName, lastName, email, passwordHash string) (core.User, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, first_name, last_name, email, password_hash)
		VALUES (?, ?, ?, ?, ?)`,
		username, firstName, lastName, email, passwordHash)
	if err != nil {
		return core.User{}, translateUserConflict(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("last insert id: %w", err)
	}

	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User created", "user_id", id, "username", username)
	return user, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, password_hash, created_at
		FROM users WHERE id = ?`, id))
}

// GetUserByEmail looks up a user by lower-cased email.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, password_hash, created_at
		FROM users WHERE email = ?`, strings.ToLower(email)))
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email, password_hash, created_at
		FROM users WHERE username = ?`, username))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func translateUserConflict(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "users.username") {
		return &core.ConflictError{Field: "username", Message: "Username already taken"}
	}
	if strings.Contains(msg, "users.email") {
		return &core.ConflictError{Field: "email", Message: "Email already in use"}
	}
	return fmt.Errorf("insert user: %w", err)
}

// ---- sessions ----

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession resolves a token to its user id. Expired and unknown tokens
// both return core.ErrUnauthenticated.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string, now time.Time) (int64, error) {
	var userID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id FROM sessions WHERE token = ? AND expires_at > ?`,
		token, now.UTC()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrUnauthenticated
	}
	if err != nil {
		return 0, fmt.Errorf("scan session: %w", err)
	}
	return userID, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions past their expiry and
// returns how many were swept.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ---- expenses ----

const expenseColumns = `id, user_id, amount_cents, date, category, description, paid_at, created_at`

// CreateExpense inserts a new expense for the owner and returns the
// stored row. paidAt is nil for expenses created unpaid.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, ownerID int64, amountCents int64, date core.Date, category, description string, paidAt *time.Time) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, amount_cents, date, category, description, paid_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ownerID, amountCents, date.String(), category, description, nullableTime(paidAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("last insert id: %w", err)
	}

	expense, err := r.GetExpense(ctx, ownerID, id)
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense created",
		"expense_id", id,
		"user_id", ownerID,
		"amount_cents", amountCents,
		"date", date.String(),
		"category", category)

	return expense, nil
}

// ListExpenses returns all of the owner's expenses, newest date first,
// ties broken by id descending. ISO dates sort lexically.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ?
		ORDER BY date DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE id = ? AND user_id = ?`, id, ownerID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	return e, err
}

// GetExpenseByID fetches a row without owner scoping. Reserved for the
// sync worker, which processes events across all owners.
func (r *SQLiteRepository) GetExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	return e, err
}

// UpdateExpense rewrites the mutable fields of a row. paid_at is
// deliberately untouched; only SetExpensePaid transitions it.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, ownerID, id int64, amountCents int64, date core.Date, category, description string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET amount_cents = ?, date = ?, category = ?, description = ?, sync_status = 'pending'
		WHERE id = ? AND user_id = ?`,
		amountCents, date.String(), category, description, id, ownerID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRowChanged(res)
}

// SetExpensePaid sets or clears paid_at. A nil paidAt marks the expense
// unpaid; a non-nil value marks it paid as of that instant.
func (r *SQLiteRepository) SetExpensePaid(ctx context.Context, ownerID, id int64, paidAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET paid_at = ?, sync_status = 'pending'
		WHERE id = ? AND user_id = ?`,
		nullableTime(paidAt), id, ownerID)
	if err != nil {
		return fmt.Errorf("set expense paid: %w", err)
	}
	return requireRowChanged(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRowChanged(res)
}

// ---- sync markers ----

// MarkExpenseSynced records that downstream consumers acknowledged the row.
func (r *SQLiteRepository) MarkExpenseSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET sync_status = 'synced', synced_at = ? WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	return nil
}

// ListPendingSyncIDs returns ids of rows whose lifecycle events have not
// been acknowledged downstream, oldest first. Used by the worker's
// startup scan to recover events lost between commit and publish.
func (r *SQLiteRepository) ListPendingSyncIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM expenses WHERE sync_status = 'pending'
		ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending sync id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sync ids: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) MarkExpenseSyncError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "expense_id", id)
	return nil
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e       core.Expense
		dateStr string
		paidAt  sql.NullTime
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &dateStr, &e.Category, &e.Description, &paidAt, &e.CreatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", dateStr, err)
	}
	e.Date = date
	if paidAt.Valid {
		t := paidAt.Time
		e.PaidAt = &t
	}
	return e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func requireRowChanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
