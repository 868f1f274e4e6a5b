package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendlog/internal/services"
	"spendlog/internal/session"
	"spendlog/internal/storage"
)

type ServerTestSuite struct {
	suite.Suite
	ts     *httptest.Server
	client *http.Client
}

func (suite *ServerTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(suite.T(), err)

	expenses := services.NewExpenseService(repo, nil)
	sessions := session.NewManager(repo, time.Hour, false)

	srv := NewServer(":0", repo, expenses, sessions, Options{
		BcryptCost:         4, // minimum cost keeps the suite fast
		RateLimitPerMinute: 1000,
	})
	suite.ts = httptest.NewServer(srv.Handler)
	suite.T().Cleanup(func() {
		suite.ts.Close()
		repo.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	suite.client = &http.Client{Jar: jar}
}

func (suite *ServerTestSuite) do(method, path string, body any) *http.Response {
	suite.T().Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, suite.ts.URL+path, &buf)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	return resp
}

func (suite *ServerTestSuite) decode(resp *http.Response, v any) {
	suite.T().Helper()
	defer resp.Body.Close()
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(v))
}

func (suite *ServerTestSuite) signup(username, email string) {
	suite.T().Helper()
	resp := suite.do(http.MethodPost, "/api/signup", map[string]string{
		"username":  username,
		"firstName": "Test",
		"lastName":  "User",
		"email":     email,
		"password":  "hunter22",
	})
	resp.Body.Close()
	require.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
}

func (suite *ServerTestSuite) login(email string) {
	suite.T().Helper()
	resp := suite.do(http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": "hunter22",
	})
	resp.Body.Close()
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func (suite *ServerTestSuite) createExpense(cents int64, date, category, description string) map[string]any {
	suite.T().Helper()
	resp := suite.do(http.MethodPost, "/api/expenses", map[string]any{
		"amount_cents": cents,
		"date":         date,
		"category":     category,
		"description":  description,
	})
	require.Equal(suite.T(), http.StatusCreated, resp.StatusCode)

	var created map[string]any
	suite.decode(resp, &created)
	return created
}

// ---- health ----

func (suite *ServerTestSuite) TestHealthEndpoints() {
	resp := suite.do(http.MethodGet, "/api/health", nil)
	var body map[string]string
	suite.decode(resp, &body)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "ok", body["status"])

	resp = suite.do(http.MethodGet, "/readyz", nil)
	suite.decode(resp, &body)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "ready", body["status"])
}

// ---- signup ----

func (suite *ServerTestSuite) TestSignupValidationFieldOrder() {
	cases := []struct {
		name      string
		body      map[string]string
		wantField string
	}{
		{"missing username", map[string]string{"email": "a@b.com", "password": "pw"}, "username"},
		{"missing first name", map[string]string{"username": "u", "email": "a@b.com", "password": "pw"}, "firstName"},
		{"missing last name", map[string]string{"username": "u", "firstName": "F", "email": "a@b.com", "password": "pw"}, "lastName"},
		{"missing email", map[string]string{"username": "u", "firstName": "F", "lastName": "L", "password": "pw"}, "email"},
		{"invalid email", map[string]string{"username": "u", "firstName": "F", "lastName": "L", "email": "nope", "password": "pw"}, "email"},
		{"missing password", map[string]string{"username": "u", "firstName": "F", "lastName": "L", "email": "a@b.com"}, "password"},
	}
	for _, tc := range cases {
		suite.Run(tc.name, func() {
			resp := suite.do(http.MethodPost, "/api/signup", tc.body)
			require.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			suite.decode(resp, &body)
			assert.Equal(suite.T(), tc.wantField, body["field"])
			assert.NotEmpty(suite.T(), body["error"])
		})
	}
}

func (suite *ServerTestSuite) TestSignupConflicts() {
	suite.signup("ada", "ada@example.com")

	resp := suite.do(http.MethodPost, "/api/signup", map[string]string{
		"username": "ada", "firstName": "F", "lastName": "L",
		"email": "other@example.com", "password": "pw",
	})
	var body map[string]string
	suite.decode(resp, &body)
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	assert.Equal(suite.T(), "username", body["field"])

	resp = suite.do(http.MethodPost, "/api/signup", map[string]string{
		"username": "grace", "firstName": "F", "lastName": "L",
		"email": "ADA@example.com", "password": "pw",
	})
	suite.decode(resp, &body)
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	assert.Equal(suite.T(), "email", body["field"])
}

func (suite *ServerTestSuite) TestSignupDoesNotLogIn() {
	suite.signup("ada", "ada@example.com")

	resp := suite.do(http.MethodGet, "/api/me", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

// ---- login / logout / me ----

func (suite *ServerTestSuite) TestLoginFlow() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	resp := suite.do(http.MethodGet, "/api/me", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var body struct {
		User struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	suite.decode(resp, &body)
	assert.Equal(suite.T(), "ada", body.User.Username)
	assert.Equal(suite.T(), "ada@example.com", body.User.Email)

	resp = suite.do(http.MethodPost, "/api/logout", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/me", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (suite *ServerTestSuite) TestLoginUniformFailure() {
	suite.signup("ada", "ada@example.com")

	unknown := suite.do(http.MethodPost, "/api/login", map[string]string{
		"email": "nobody@example.com", "password": "hunter22",
	})
	var unknownBody map[string]string
	suite.decode(unknown, &unknownBody)
	require.Equal(suite.T(), http.StatusUnauthorized, unknown.StatusCode)

	wrongPw := suite.do(http.MethodPost, "/api/login", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	var wrongBody map[string]string
	suite.decode(wrongPw, &wrongBody)
	require.Equal(suite.T(), http.StatusUnauthorized, wrongPw.StatusCode)

	// Identical body for unknown email and wrong password.
	assert.Equal(suite.T(), unknownBody, wrongBody)
	assert.Equal(suite.T(), "Invalid credentials", wrongBody["error"])
}

func (suite *ServerTestSuite) TestLoginMissingFields() {
	resp := suite.do(http.MethodPost, "/api/login", map[string]string{"email": "a@b.com"})
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

// ---- expenses ----

func (suite *ServerTestSuite) TestExpensesRequireAuth() {
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/expenses"},
		{http.MethodPost, "/api/expenses"},
		{http.MethodPut, "/api/expenses/1"},
		{http.MethodPost, "/api/expenses/1/set-paid"},
		{http.MethodDelete, "/api/expenses/1"},
		{http.MethodGet, "/api/expenses/summary"},
	} {
		resp := suite.do(probe.method, probe.path, nil)
		var body map[string]string
		suite.decode(resp, &body)
		assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode, "%s %s", probe.method, probe.path)
		assert.Equal(suite.T(), "Not logged in", body["error"])
	}
}

func (suite *ServerTestSuite) TestExpenseCRUD() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	created := suite.createExpense(1299, "2025-01-05", "Food", "Lunch")
	assert.Equal(suite.T(), float64(1299), created["amount_cents"])
	assert.Equal(suite.T(), "2025-01-05", created["date"])
	assert.NotNil(suite.T(), created["paid_at"]) // past-dated, created paid
	id := int64(created["id"].(float64))

	resp := suite.do(http.MethodGet, "/api/expenses", nil)
	var list []map[string]any
	suite.decode(resp, &list)
	require.Len(suite.T(), list, 1)

	resp = suite.do(http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), map[string]any{
		"amount_cents": 1500, "date": "2025-01-06", "category": "Bills", "description": "Rent",
	})
	var ok map[string]bool
	suite.decode(resp, &ok)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.True(suite.T(), ok["ok"])

	resp = suite.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/expenses", nil)
	suite.decode(resp, &list)
	assert.Empty(suite.T(), list)
}

func (suite *ServerTestSuite) TestCreateExpenseValidation() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"fractional amount", map[string]any{"amount_cents": 12.5, "date": "2025-01-05", "category": "Food", "description": "x"}},
		{"negative amount", map[string]any{"amount_cents": -1, "date": "2025-01-05", "category": "Food", "description": "x"}},
		{"string amount", map[string]any{"amount_cents": "1299", "date": "2025-01-05", "category": "Food", "description": "x"}},
		{"bad date", map[string]any{"amount_cents": 100, "date": "01-05-2025", "category": "Food", "description": "x"}},
		{"unknown category", map[string]any{"amount_cents": 100, "date": "2025-01-05", "category": "Snacks", "description": "x"}},
		{"blank description", map[string]any{"amount_cents": 100, "date": "2025-01-05", "category": "Food", "description": "  "}},
	}
	for _, tc := range cases {
		suite.Run(tc.name, func() {
			resp := suite.do(http.MethodPost, "/api/expenses", tc.body)
			resp.Body.Close()
			assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func (suite *ServerTestSuite) TestPaidPolicyTodayVsTomorrow() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	today := time.Now().UTC().Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	dueToday := suite.createExpense(100, today, "Bills", "due now")
	assert.NotNil(suite.T(), dueToday["paid_at"])

	future := suite.createExpense(200, tomorrow, "Bills", "scheduled")
	assert.Nil(suite.T(), future["paid_at"])
}

func (suite *ServerTestSuite) TestSetPaidToggle() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	created := suite.createExpense(100, tomorrow, "Bills", "scheduled")
	require.Nil(suite.T(), created["paid_at"])
	id := int64(created["id"].(float64))

	resp := suite.do(http.MethodPost, fmt.Sprintf("/api/expenses/%d/set-paid", id), map[string]any{"paid": true})
	resp.Body.Close()
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var list []map[string]any
	suite.decode(suite.do(http.MethodGet, "/api/expenses", nil), &list)
	require.Len(suite.T(), list, 1)
	assert.NotNil(suite.T(), list[0]["paid_at"])

	resp = suite.do(http.MethodPost, fmt.Sprintf("/api/expenses/%d/set-paid", id), map[string]any{"paid": false})
	resp.Body.Close()
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	suite.decode(suite.do(http.MethodGet, "/api/expenses", nil), &list)
	require.Len(suite.T(), list, 1)
	assert.Nil(suite.T(), list[0]["paid_at"])
}

func (suite *ServerTestSuite) TestSetPaidRejectsNonBoolean() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")
	created := suite.createExpense(100, "2025-01-05", "Food", "Lunch")
	id := int64(created["id"].(float64))

	for _, body := range []map[string]any{
		{"paid": "yes"},
		{"paid": 1},
		{},
	} {
		resp := suite.do(http.MethodPost, fmt.Sprintf("/api/expenses/%d/set-paid", id), body)
		resp.Body.Close()
		assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	}
}

func (suite *ServerTestSuite) TestOwnershipIsolation() {
	suite.signup("alice", "alice@example.com")
	suite.login("alice@example.com")
	created := suite.createExpense(100, "2025-01-05", "Food", "Lunch")
	id := int64(created["id"].(float64))

	// Fresh cookie jar: bob's own session.
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	suite.client = &http.Client{Jar: jar}
	suite.signup("bob", "bob@example.com")
	suite.login("bob@example.com")

	var list []map[string]any
	suite.decode(suite.do(http.MethodGet, "/api/expenses", nil), &list)
	assert.Empty(suite.T(), list)

	for _, probe := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), map[string]any{"amount_cents": 1, "date": "2025-01-05", "category": "Food", "description": "x"}},
		{http.MethodPost, fmt.Sprintf("/api/expenses/%d/set-paid", id), map[string]any{"paid": true}},
		{http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), nil},
	} {
		resp := suite.do(probe.method, probe.path, probe.body)
		resp.Body.Close()
		assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode, "%s %s", probe.method, probe.path)
	}
}

func (suite *ServerTestSuite) TestUnknownExpenseID() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	resp := suite.do(http.MethodDelete, "/api/expenses/9999", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp = suite.do(http.MethodDelete, "/api/expenses/not-a-number", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
}

func (suite *ServerTestSuite) TestListOrdering() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	first := suite.createExpense(100, "2025-01-05", "Food", "first")
	second := suite.createExpense(200, "2025-01-05", "Food", "second")
	newest := suite.createExpense(300, "2025-02-01", "Food", "newest")

	var list []map[string]any
	suite.decode(suite.do(http.MethodGet, "/api/expenses", nil), &list)
	require.Len(suite.T(), list, 3)
	assert.Equal(suite.T(), newest["id"], list[0]["id"])
	assert.Equal(suite.T(), second["id"], list[1]["id"])
	assert.Equal(suite.T(), first["id"], list[2]["id"])
}

func (suite *ServerTestSuite) TestSummary() {
	suite.signup("ada", "ada@example.com")
	suite.login("ada@example.com")

	suite.createExpense(100, "2025-01-05", "Food", "settled") // past, paid

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	suite.createExpense(400, tomorrow, "Bills", "scheduled") // unpaid, upcoming

	resp := suite.do(http.MethodGet, "/api/expenses/summary", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var summary struct {
		PaidCents     int64 `json:"paid_cents"`
		PastDueCents  int64 `json:"past_due_cents"`
		UpcomingCents int64 `json:"upcoming_cents"`
	}
	suite.decode(resp, &summary)
	assert.Equal(suite.T(), int64(100), summary.PaidCents)
	assert.Equal(suite.T(), int64(0), summary.PastDueCents)
	assert.Equal(suite.T(), int64(400), summary.UpcomingCents)

	// Pinning today pushes the scheduled entry into past-due.
	nextYear := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")
	resp = suite.do(http.MethodGet, "/api/expenses/summary?today="+nextYear, nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	suite.decode(resp, &summary)
	assert.Equal(suite.T(), int64(400), summary.PastDueCents)
	assert.Equal(suite.T(), int64(0), summary.UpcomingCents)

	// Category filter narrows the buckets.
	resp = suite.do(http.MethodGet, "/api/expenses/summary?category=Bills", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	suite.decode(resp, &summary)
	assert.Equal(suite.T(), int64(0), summary.PaidCents)
	assert.Equal(suite.T(), int64(400), summary.UpcomingCents)

	resp = suite.do(http.MethodGet, "/api/expenses/summary?today=bogus", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/expenses/summary?month=13", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

func (suite *ServerTestSuite) TestSecurityHeaders() {
	resp := suite.do(http.MethodGet, "/api/health", nil)
	resp.Body.Close()
	assert.Equal(suite.T(), "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(suite.T(), "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(suite.T(), resp.Header.Get("X-Request-Id"))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
