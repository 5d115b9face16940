package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	app "github.com/budgetwise/budgetd/internal/app"
	authsvc "github.com/budgetwise/budgetd/internal/app/services/auth"
	"github.com/budgetwise/budgetd/internal/logging"
	"github.com/budgetwise/budgetd/internal/middleware"
)

var testSecret = []byte("handler-test-secret")

func newTestHandler(t *testing.T, opts Options) http.Handler {
	t.Helper()

	application, err := app.New(app.Stores{}, authsvc.Config{
		Secret:     testSecret,
		TokenTTL:   time.Minute,
		BcryptCost: bcrypt.MinCost,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("building application: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return NewHandler(application, opts)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func extractToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, Options{})

	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSignupLoginFlow(t *testing.T) {
	h := newTestHandler(t, Options{})

	creds := map[string]string{"username": "alice", "password": "s3cret-pass"}

	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	first := extractToken(t, rec)

	rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	second := extractToken(t, rec)
	if first == second {
		t.Error("expected login to issue a distinct token")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/protected/budget", second, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("protected with valid token: expected 200, got %d", rec.Code)
	}

	// Flip the last character of the signature.
	tampered := second[:len(second)-1]
	if second[len(second)-1] == 'A' {
		tampered += "B"
	} else {
		tampered += "A"
	}
	rec = doJSON(t, h, http.MethodGet, "/api/protected/budget", tampered, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token: expected 401, got %d", rec.Code)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	h := newTestHandler(t, Options{})

	creds := map[string]string{"username": "bob", "password": "pass-word"}
	if rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", creds); rec.Code != http.StatusOK {
		t.Fatalf("first signup: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", creds); rec.Code != http.StatusConflict {
		t.Fatalf("second signup: expected 409, got %d", rec.Code)
	}
}

func TestSignupRejectsBadBody(t *testing.T) {
	h := newTestHandler(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProtectedRequiresToken(t *testing.T) {
	h := newTestHandler(t, Options{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/protected/renew"},
		{http.MethodGet, "/api/protected/dashboard"},
		{http.MethodGet, "/api/protected/budget"},
		{http.MethodPost, "/api/protected/budget/add"},
		{http.MethodPut, "/api/protected/budget/update"},
		{http.MethodDelete, "/api/protected/budget/delete"},
		{http.MethodGet, "/api/protected/expenses"},
		{http.MethodPut, "/api/protected/expenses/update"},
	}
	for _, p := range paths {
		rec := doJSON(t, h, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without token, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	h := newTestHandler(t, Options{})

	// Correctly signed but already expired.
	claims := jwt.MapClaims{
		"username": "alice",
		"iss":      "budgetd",
		"iat":      time.Now().Add(-2 * time.Minute).Unix(),
		"exp":      time.Now().Add(-time.Minute).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/protected/budget", expired, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rec.Code)
	}
}

func TestRenew(t *testing.T) {
	h := newTestHandler(t, Options{})

	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "carol", "password": "pass-word",
	})
	token := extractToken(t, rec)

	rec = doJSON(t, h, http.MethodPost, "/api/protected/renew", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("renew: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	renewed := extractToken(t, rec)
	if renewed == token {
		t.Error("expected renewal to issue a distinct token")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/protected/budget", renewed, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("renewed token: expected 200, got %d", rec.Code)
	}
}

func signupAndToken(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username, "password": "pass-word",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup %s: expected 200, got %d", username, rec.Code)
	}
	return extractToken(t, rec)
}

func TestBudgetCRUD(t *testing.T) {
	h := newTestHandler(t, Options{})
	token := signupAndToken(t, h, "dave")

	rec := doJSON(t, h, http.MethodPost, "/api/protected/budget/add", token, map[string]interface{}{
		"name": "groceries", "amount": 450.50,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/protected/budget/add", token, map[string]interface{}{
		"name": "groceries", "amount": 100,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate add: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/protected/budget", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Budget []struct {
			Name   string  `json:"name"`
			Amount float64 `json:"amount"`
		} `json:"budget"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listed.Budget) != 1 || listed.Budget[0].Name != "groceries" || listed.Budget[0].Amount != 450.50 {
		t.Fatalf("unexpected listing: %+v", listed.Budget)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/protected/budget/update", token, map[string]interface{}{
		"oldName": "groceries", "newName": "food", "amount": 500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPut, "/api/protected/budget/update", token, map[string]interface{}{
		"oldName": "missing", "newName": "whatever", "amount": 10,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/protected/budget/delete", token, map[string]string{
		"name": "food",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/protected/budget/delete", token, map[string]string{
		"name": "food",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: expected 404, got %d", rec.Code)
	}
}

func TestBudgetValidation(t *testing.T) {
	h := newTestHandler(t, Options{})
	token := signupAndToken(t, h, "erin")

	cases := []map[string]interface{}{
		{"name": "", "amount": 100},
		{"name": "rent", "amount": 0},
		{"name": "rent", "amount": -5},
		{"name": "rent", "amount": 100000000000.0},
	}
	for _, payload := range cases {
		rec := doJSON(t, h, http.MethodPost, "/api/protected/budget/add", token, payload)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %v: expected 400, got %d", payload, rec.Code)
		}
	}
}

func TestExpenses(t *testing.T) {
	h := newTestHandler(t, Options{})
	token := signupAndToken(t, h, "frank")

	if rec := doJSON(t, h, http.MethodPost, "/api/protected/budget/add", token, map[string]interface{}{
		"name": "travel", "amount": 1200,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("add budget: expected 201, got %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPut, "/api/protected/expenses/update", token, map[string]interface{}{
		"name": "travel", "month": 3, "amount": 240.75,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set expense: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPut, "/api/protected/expenses/update", token, map[string]interface{}{
		"name": "nonexistent", "month": 3, "amount": 50,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expense for missing budget: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/protected/expenses/update", token, map[string]interface{}{
		"name": "travel", "month": 13, "amount": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("month 13: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/protected/expenses", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list expenses: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Expenses []struct {
			BudgetName string  `json:"budget_name"`
			Month      int     `json:"expense_month"`
			Amount     float64 `json:"expense_amount"`
		} `json:"expenses"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding expenses: %v", err)
	}
	if len(listed.Expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(listed.Expenses))
	}
	e := listed.Expenses[0]
	if e.BudgetName != "travel" || e.Month != 3 || e.Amount != 240.75 {
		t.Fatalf("unexpected expense entry: %+v", e)
	}
}

func TestDashboard(t *testing.T) {
	h := newTestHandler(t, Options{})
	token := signupAndToken(t, h, "grace")

	for name, amount := range map[string]float64{"rent": 1500, "food": 500} {
		if rec := doJSON(t, h, http.MethodPost, "/api/protected/budget/add", token, map[string]interface{}{
			"name": name, "amount": amount,
		}); rec.Code != http.StatusCreated {
			t.Fatalf("add %s: expected 201, got %d", name, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/protected/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	var summary struct {
		BudgetCount int     `json:"budget_count"`
		TotalAmount float64 `json:"total_amount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.BudgetCount != 2 || summary.TotalAmount != 2000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestUserIsolation(t *testing.T) {
	h := newTestHandler(t, Options{})
	tokenA := signupAndToken(t, h, "heidi")
	tokenB := signupAndToken(t, h, "ivan")

	if rec := doJSON(t, h, http.MethodPost, "/api/protected/budget/add", tokenA, map[string]interface{}{
		"name": "secret-fund", "amount": 100,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/protected/budget", tokenB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list as other user: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Budget []json.RawMessage `json:"budget"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listed.Budget) != 0 {
		t.Fatalf("expected empty listing for other user, got %d entries", len(listed.Budget))
	}

	if rec := doJSON(t, h, http.MethodDelete, "/api/protected/budget/delete", tokenB, map[string]string{
		"name": "secret-fund",
	}); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete: expected 404, got %d", rec.Code)
	}
}

func TestAuthRateLimiting(t *testing.T) {
	h := newTestHandler(t, Options{
		AuthLimiter: middleware.NewRateLimiter(1, 2, logging.NewNop()),
	})

	var limited bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "nobody", "password": "nothing",
		})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected rate limiter to trip within five attempts")
	}
}

func TestCORSPreflightOnAuthRoute(t *testing.T) {
	h := newTestHandler(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("expected allow-origin header on preflight")
	}
}
