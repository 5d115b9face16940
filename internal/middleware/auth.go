// Package middleware provides the HTTP middleware stack: the auth gate,
// CORS, tracing, rate limiting and metrics.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/budgetwise/budgetd/internal/app/metrics"
	"github.com/budgetwise/budgetd/internal/errors"
	"github.com/budgetwise/budgetd/internal/logging"
)

// TokenVerifier resolves a bearer token to a username. Implemented by the
// auth service.
type TokenVerifier interface {
	VerifyToken(token string) (username string, err error)
}

// AuthMiddleware is the gate every protected route sits behind. It extracts
// the bearer token, verifies it and injects the resolved username into the
// request context. Requests without a valid token are rejected before any
// handler logic runs.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logging.Logger
}

// NewAuthMiddleware creates the gating middleware.
func NewAuthMiddleware(verifier TokenVerifier, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDefault("middleware")
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.RecordAuthOutcome("gate", "missing")
			m.respondUnauthorized(w, r, errors.Unauthorized("missing or malformed Authorization header"))
			return
		}

		username, err := m.verifier.VerifyToken(token)
		if err != nil {
			metrics.RecordAuthOutcome("gate", "invalid")
			m.logger.LogSecurityEvent(r.Context(), "token_rejected", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			m.respondUnauthorized(w, r, err)
			return
		}

		metrics.RecordAuthOutcome("gate", "ok")
		ctx := logging.WithUsername(r.Context(), username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Username extracts the authenticated username from the request context.
// Empty outside the gate.
func Username(r *http.Request) string {
	return logging.GetUsername(r.Context())
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Unauthorized("authentication required")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(svcErr.Code),
		"message": svcErr.Message,
	})
}

// bearerToken pulls the token out of "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
