package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/budgetwise/budgetd/internal/errors"
)

// Claims is the token payload: the acting username plus the registered
// issued-at and expiry claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

const issuer = "budgetd"

// IssueToken produces a signed token asserting username until now+TTL.
// Signing is pinned to HS256; verification rejects anything else.
func (s *Service) IssueToken(username string) (string, error) {
	now := s.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: issuer,
			// The ID makes every token unique even when two are issued
			// for one user within the same second.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Internal("failed to sign token", err)
	}
	return signed, nil
}

// VerifyToken checks signature authenticity and expiry and returns the
// embedded username. Malformed encoding, signature mismatch, expiry and a
// wrong or absent algorithm all map to the same InvalidToken outcome; callers
// never see a raised fault.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Pinning the method closes algorithm-confusion forgeries such
		// as alg=none or an RSA public key replayed as an HMAC secret.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", errors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", errors.InvalidToken(stderrors.New("missing or malformed claims"))
	}
	return claims.Username, nil
}

// TokenTTL returns the configured token lifetime.
func (s *Service) TokenTTL() time.Duration { return s.tokenTTL }
