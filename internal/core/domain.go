package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Categories is the closed set of expense categories accepted by the service.
var Categories = []string{"Food", "Gas", "Bills", "Shopping", "Entertainment", "Other"}

// CategoryAll is the sentinel category filter meaning "no category filtering".
const CategoryAll = "All"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// FieldError is a validation failure tied to a single input field.
// It unwraps to ErrInvalidInput so callers can branch on the kind.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// ConflictError is a uniqueness violation on a single field (signup).
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type (
	// Date is a calendar date with no time component, normalized to UTC midnight.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64     `json:"id"`
		Username     string    `json:"username"`
		FirstName    string    `json:"first_name"`
		LastName     string    `json:"last_name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"created_at"`
	}

	// Profile is the safe subset of User returned by the API.
	Profile struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}

	Expense struct {
		ID          int64      `json:"id"`
		UserID      int64      `json:"user_id"`
		Amount      Money      `json:"amount_cents"`
		Date        Date       `json:"date"`
		Category    string     `json:"category"`
		Description string     `json:"description"`
		PaidAt      *time.Time `json:"paid_at"`
		CreatedAt   time.Time  `json:"created_at"`
	}
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, &FieldError{Field: "date", Message: "date must be YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

// DateOf truncates an instant to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Month returns the calendar month.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return &FieldError{Field: "amount_cents", Message: "amount_cents must be a non-negative integer"}
	}
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%d", m.Cents)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	cents, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return &FieldError{Field: "amount_cents", Message: "amount_cents must be a non-negative integer"}
	}
	m.Cents = cents
	return nil
}

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Paid reports the expense's two-state lifecycle flag.
func (e Expense) Paid() bool {
	return e.PaidAt != nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return &FieldError{Field: "date", Message: "date must be YYYY-MM-DD"}
	}
	if !ValidCategory(e.Category) {
		return &FieldError{Field: "category", Message: "category must be one of " + strings.Join(Categories, ", ")}
	}
	if strings.TrimSpace(e.Description) == "" {
		return &FieldError{Field: "description", Message: "description is required"}
	}
	if len(e.Description) > 500 {
		return &FieldError{Field: "description", Message: "description too long (max 500 characters)"}
	}
	return nil
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email}
}
