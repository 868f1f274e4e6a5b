package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"spendlog/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeFieldError(w http.ResponseWriter, status int, field, message string) {
	writeJSON(w, status, map[string]string{"field": field, "error": message})
}

// writeDomainError translates core error kinds to API responses. Raw
// storage detail never reaches the client; unexpected failures are logged
// and surfaced as the generic message.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error, generic string) {
	var fieldErr *core.FieldError
	var conflictErr *core.ConflictError

	switch {
	case errors.As(err, &fieldErr):
		writeFieldError(w, http.StatusBadRequest, fieldErr.Field, fieldErr.Message)
	case errors.As(err, &conflictErr):
		writeFieldError(w, http.StatusConflict, conflictErr.Field, conflictErr.Message)
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Expense not found")
	case errors.Is(err, core.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Not logged in")
	default:
		slog.ErrorContext(ctx, "Internal error", "error", err)
		writeError(w, http.StatusInternalServerError, generic)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.UseNumber()
	return dec.Decode(v)
}
