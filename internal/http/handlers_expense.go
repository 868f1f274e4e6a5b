package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"spendlog/internal/core"
	"spendlog/internal/services"
	"spendlog/internal/session"
)

type expenseRequest struct {
	AmountCents json.Number `json:"amount_cents"`
	Date        string      `json:"date"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

type setPaidRequest struct {
	Paid *bool `json:"paid"`
}

// toInput validates the wire shape and converts it to a service input.
// Amounts travel as integer cents; anything fractional is rejected here
// rather than silently truncated.
func (r *expenseRequest) toInput() (services.ExpenseInput, string) {
	cents, err := r.AmountCents.Int64()
	if err != nil || cents < 0 {
		return services.ExpenseInput{}, "amount_cents must be a non-negative integer"
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return services.ExpenseInput{}, "date must be YYYY-MM-DD"
	}
	return services.ExpenseInput{
		AmountCents: cents,
		Date:        date,
		Category:    r.Category,
		Description: r.Description,
	}, ""
}

// expenseID pulls the path parameter. Non-numeric ids behave like ids that
// do not exist, mirroring a lookup miss.
func expenseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())

	expenses, err := s.expenses.List(r.Context(), userID)
	if err != nil {
		writeDomainError(r.Context(), w, err, "Failed to load expenses")
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	input, msg := req.toInput()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	expense, err := s.expenses.Create(r.Context(), userID, input)
	if err != nil {
		writeDomainError(r.Context(), w, err, "Failed to create expense")
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())

	id, ok := expenseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	input, msg := req.toInput()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.expenses.Update(r.Context(), userID, id, input); err != nil {
		writeDomainError(r.Context(), w, err, "Failed to update expense")
		return
	}
	writeOK(w)
}

func (s *Server) handleSetExpensePaid(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())

	id, ok := expenseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	var req setPaidRequest
	if err := decodeJSON(r, &req); err != nil || req.Paid == nil {
		writeError(w, http.StatusBadRequest, "paid must be a boolean")
		return
	}

	if err := s.expenses.SetPaid(r.Context(), userID, id, *req.Paid); err != nil {
		writeDomainError(r.Context(), w, err, "Failed to update expense")
		return
	}
	writeOK(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())

	id, ok := expenseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	if err := s.expenses.Delete(r.Context(), userID, id); err != nil {
		writeDomainError(r.Context(), w, err, "Failed to delete expense")
		return
	}
	writeOK(w)
}

func (s *Server) handleExpenseSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())
	q := r.URL.Query()

	var today core.Date
	if raw := q.Get("today"); raw != "" {
		parsed, err := core.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "today must be in YYYY-MM-DD format")
			return
		}
		today = parsed
	}

	filter := core.Filter{Category: q.Get("category")}
	if raw := q.Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
			return
		}
		filter.Month = m
	}
	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "year must be a positive number")
			return
		}
		filter.Year = y
	}

	summary, err := s.expenses.Summary(r.Context(), userID, today, filter)
	if err != nil {
		writeDomainError(r.Context(), w, err, "Failed to load summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
