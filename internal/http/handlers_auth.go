package http

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"spendlog/internal/auth"
	"spendlog/internal/core"
	"spendlog/internal/session"
)

type signupRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// validate checks fields in a fixed order so the client always sees the
// first failing field, not an arbitrary one.
func (r *signupRequest) validate() *core.FieldError {
	if strings.TrimSpace(r.Username) == "" {
		return &core.FieldError{Field: "username", Message: "Username is required"}
	}
	if strings.TrimSpace(r.FirstName) == "" {
		return &core.FieldError{Field: "firstName", Message: "First name is required"}
	}
	if strings.TrimSpace(r.LastName) == "" {
		return &core.FieldError{Field: "lastName", Message: "Last name is required"}
	}
	if strings.TrimSpace(r.Email) == "" {
		return &core.FieldError{Field: "email", Message: "Email is required"}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return &core.FieldError{Field: "email", Message: "Email is not valid"}
	}
	if r.Password == "" {
		return &core.FieldError{Field: "password", Message: "Password is required"}
	}
	return nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if fieldErr := req.validate(); fieldErr != nil {
		writeFieldError(w, http.StatusBadRequest, fieldErr.Field, fieldErr.Message)
		return
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		writeDomainError(r.Context(), w, err, "Failed to create account")
		return
	}

	_, err = s.users.CreateUser(r.Context(),
		strings.TrimSpace(req.Username),
		strings.TrimSpace(req.FirstName),
		strings.TrimSpace(req.LastName),
		strings.ToLower(strings.TrimSpace(req.Email)),
		hash)
	if err != nil {
		writeDomainError(r.Context(), w, err, "Failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	// A missing user and a wrong password produce the same response so
	// login cannot be used to probe which emails are registered.
	user, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeDomainError(r.Context(), w, err, "Failed to log in")
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := s.sessions.Issue(r.Context(), w, user.ID); err != nil {
		writeDomainError(r.Context(), w, err, "Failed to log in")
		return
	}
	writeOK(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context(), w, r); err != nil {
		writeDomainError(r.Context(), w, err, "Failed to log out")
		return
	}
	writeOK(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	// The session may outlive the user row; re-check instead of trusting it.
	user, err := s.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Not logged in")
			return
		}
		writeDomainError(r.Context(), w, err, "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]core.Profile{"user": user.Profile()})
}
