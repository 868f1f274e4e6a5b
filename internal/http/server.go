package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"spendlog/internal/middleware/ratelimit"
	"spendlog/internal/middleware/security"
	"spendlog/internal/middleware/trace"
	"spendlog/internal/services"
	"spendlog/internal/session"
	"spendlog/internal/storage"
)

// Server wires the API handlers, session auth and middleware chain on top
// of a standard http.Server.
type Server struct {
	http.Server

	users    *storage.SQLiteRepository
	expenses *services.ExpenseService
	sessions *session.Manager

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	bcryptCost   int
	shutdownOnce sync.Once
}

type Options struct {
	BcryptCost         int
	RateLimitPerMinute int
}

func NewServer(addr string, users *storage.SQLiteRepository, expenses *services.ExpenseService, sessions *session.Manager, opts Options) *Server {
	s := &Server{
		users:      users,
		expenses:   expenses,
		sessions:   sessions,
		bcryptCost: opts.BcryptCost,
		tracer:     trace.NewMiddleware(clientIP),
	}

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}
	s.limiter = ratelimit.NewLimiter(limitCfg)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	authed := func(h http.HandlerFunc) http.Handler {
		return s.sessions.Require(h)
	}
	mux.Handle("GET /api/me", authed(s.handleMe))
	mux.Handle("GET /api/expenses", authed(s.handleListExpenses))
	mux.Handle("GET /api/expenses/summary", authed(s.handleExpenseSummary))
	mux.Handle("POST /api/expenses", authed(s.handleCreateExpense))
	mux.Handle("PUT /api/expenses/{id}", authed(s.handleUpdateExpense))
	mux.Handle("POST /api/expenses/{id}/set-paid", authed(s.handleSetExpensePaid))
	mux.Handle("DELETE /api/expenses/{id}", authed(s.handleDeleteExpense))

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = security.Headers(handler)
	handler = s.tracer.Handler(handler)
	return handler
}

// withRateLimit throttles mutating requests per client IP. Reads stay
// unthrottled so list polling never starves a session.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !s.limiter.Allow(clientIP(r)) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", clientIP(r),
				"method", r.Method,
				"path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness by touching the database, so a wedged
// SQLite file flips the probe instead of lying behind a static OK.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown drains in-flight requests and stops the limiter's cleanup
// goroutine. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// clientIP prefers the first X-Forwarded-For hop so limits apply to the
// caller rather than the reverse proxy in front of the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
