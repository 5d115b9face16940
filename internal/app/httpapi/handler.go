// Package httpapi exposes the application services as a REST API.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/budgetwise/budgetd/internal/app"
	"github.com/budgetwise/budgetd/internal/app/metrics"
	"github.com/budgetwise/budgetd/internal/errors"
	"github.com/budgetwise/budgetd/internal/logging"
	"github.com/budgetwise/budgetd/internal/middleware"
)

// Options tune the handler's middleware stack. The zero value yields a
// handler with no CORS allowlist and no rate limiting, which is what the
// tests want.
type Options struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	AuthLimiter    *middleware.RateLimiter
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logging.Logger
}

// NewHandler returns the full router: health and metrics endpoints, the
// /api/auth signup and login routes, and the /api/protected subtree behind
// the token gate.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware())

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	if opts.AuthLimiter != nil {
		auth.Use(opts.AuthLimiter.Handler)
	}
	auth.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)

	gate := middleware.NewAuthMiddleware(application.Auth, log.WithField("component", "gate"))
	protected := r.PathPrefix("/api/protected").Subrouter()
	protected.Use(gate.Handler)
	protected.HandleFunc("/renew", h.renew).Methods(http.MethodPost)
	protected.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	protected.HandleFunc("/budget", h.listBudgets).Methods(http.MethodGet)
	protected.HandleFunc("/budget/add", h.addBudget).Methods(http.MethodPost)
	protected.HandleFunc("/budget/update", h.updateBudget).Methods(http.MethodPut)
	protected.HandleFunc("/budget/delete", h.deleteBudget).Methods(http.MethodDelete)
	protected.HandleFunc("/expenses", h.listExpenses).Methods(http.MethodGet)
	protected.HandleFunc("/expenses/update", h.setExpense).Methods(http.MethodPut)

	// CORS and tracing sit outside the router so preflights and 404s are
	// still handled and logged.
	var chain http.Handler = r
	chain = middleware.NewTracingMiddleware(log).Handler(chain)
	chain = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(chain)
	return chain
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with username and password"))
		return
	}

	token, err := h.app.Auth.Signup(r.Context(), payload.Username, payload.Password)
	if err != nil {
		metrics.RecordAuthOutcome("signup", "failure")
		writeError(w, err)
		return
	}

	metrics.RecordAuthOutcome("signup", "success")
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with username and password"))
		return
	}

	token, err := h.app.Auth.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		metrics.RecordAuthOutcome("login", "failure")
		writeError(w, err)
		return
	}

	metrics.RecordAuthOutcome("login", "success")
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// renew re-issues a token for the already-verified caller. The gate has
// checked the bearer token; Renew verifies it again so an expired token can
// never be traded for a fresh one.
func (h *handler) renew(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, errors.Unauthorized("missing or malformed Authorization header"))
		return
	}

	renewed, err := h.app.Auth.Renew(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: renewed})
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Budgets.Summarize(r.Context(), middleware.Username(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type budgetItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

func (h *handler) listBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.app.Budgets.List(r.Context(), middleware.Username(r))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]budgetItem, 0, len(budgets))
	for _, b := range budgets {
		items = append(items, budgetItem{Name: b.Name, Amount: b.Amount})
	}
	writeJSON(w, http.StatusOK, map[string][]budgetItem{"budget": items})
}

func (h *handler) addBudget(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with name and amount"))
		return
	}

	created, err := h.app.Budgets.Add(r.Context(), middleware.Username(r), payload.Name, payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, budgetItem{Name: created.Name, Amount: created.Amount})
}

func (h *handler) updateBudget(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldName string  `json:"oldName"`
		NewName string  `json:"newName"`
		Amount  float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with oldName, newName and amount"))
		return
	}

	updated, err := h.app.Budgets.Update(r.Context(), middleware.Username(r), payload.OldName, payload.NewName, payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetItem{Name: updated.Name, Amount: updated.Amount})
}

func (h *handler) deleteBudget(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with name"))
		return
	}

	if err := h.app.Budgets.Delete(r.Context(), middleware.Username(r), payload.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type expenseItem struct {
	BudgetName string  `json:"budget_name"`
	Month      int     `json:"expense_month"`
	Amount     float64 `json:"expense_amount"`
}

func (h *handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Expenses.List(r.Context(), middleware.Username(r))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]expenseItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, expenseItem{BudgetName: e.BudgetName, Month: e.Month, Amount: e.Amount})
	}
	writeJSON(w, http.StatusOK, map[string][]expenseItem{"expenses": items})
}

func (h *handler) setExpense(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name   string  `json:"name"`
		Month  int     `json:"month"`
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput("request body must be JSON with name, month and amount"))
		return
	}

	updated, err := h.app.Expenses.Set(r.Context(), middleware.Username(r), payload.Name, payload.Month, payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"month":  updated.Month,
		"amount": updated.Amount,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps service errors to their HTTP status; anything else is an
// opaque 500.
func writeError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal server error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(svcErr.Code),
		"message": svcErr.Message,
	})
}
