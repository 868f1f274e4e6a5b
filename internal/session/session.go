// Package session implements cookie-carried, store-backed sessions and the
// HTTP gate that scopes expense operations to the authenticated user.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"spendlog/internal/auth"
	"spendlog/internal/core"
)

// CookieName is the session cookie carried by the client.
const CookieName = "spendlog_session"

type contextKey string

const userIDKey contextKey = "user_id"

// Store is the key-value session persistence the manager depends on.
// *storage.SQLiteRepository satisfies it; tests substitute in-memory fakes.
type Store interface {
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	GetSession(ctx context.Context, token string, now time.Time) (int64, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Manager issues, resolves, and destroys sessions. It holds no session
// state itself; everything lives in the injected Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(store Store, ttl time.Duration, secureCookies bool) *Manager {
	return &Manager{
		store:  store,
		ttl:    ttl,
		secure: secureCookies,
		now:    time.Now,
	}
}

// Issue establishes a new session for userID and sets the cookie.
func (m *Manager) Issue(ctx context.Context, w http.ResponseWriter, userID int64) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}

	expiresAt := m.now().Add(m.ttl)
	if err := m.store.CreateSession(ctx, token, userID, expiresAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	http.SetCookie(w, m.cookie(token, int(m.ttl.Seconds())))
	return nil
}

// Clear destroys the caller's session, if any, and expires the cookie.
// Clearing an anonymous caller is a no-op success.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := m.store.DeleteSession(ctx, cookie.Value); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	http.SetCookie(w, m.cookie("", -1))
	return nil
}

// Resolve maps the request's session cookie to a user id, or
// core.ErrUnauthenticated when no valid session exists.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (int64, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return 0, core.ErrUnauthenticated
	}
	userID, err := m.store.GetSession(ctx, cookie.Value, m.now())
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			return 0, core.ErrUnauthenticated
		}
		return 0, fmt.Errorf("resolve session: %w", err)
	}
	return userID, nil
}

// Require gates a handler behind a valid session. The resolved user id is
// placed in the request context; storage is never touched for anonymous
// callers beyond the single session lookup.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.Resolve(r.Context(), r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Not logged in"}`))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id placed by Require.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// Sweep deletes expired sessions. Run periodically from the server main.
func (m *Manager) Sweep(ctx context.Context) error {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired sessions swept", "count", n)
	}
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
