// Package auth owns credential verification and the access-token lifecycle:
// password hashing, signup, login, token issuance, verification and renewal.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/budgetwise/budgetd/internal/app/domain/user"
	"github.com/budgetwise/budgetd/internal/app/storage"
	"github.com/budgetwise/budgetd/internal/errors"
	"github.com/budgetwise/budgetd/internal/logging"
)

const (
	maxUsernameLen = 20
	// bcrypt ignores everything past 72 bytes; longer passwords are
	// rejected instead of silently truncated.
	maxPasswordLen = 72
)

// Config carries the auth service's construction-time dependencies. The
// secret is passed in explicitly; the service never reads the environment.
type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// Service implements signup, login, renewal and token verification on top of
// a UserStore. All state is immutable after construction, so a single
// instance is safe for concurrent use.
type Service struct {
	users    storage.UserStore
	secret   []byte
	tokenTTL time.Duration
	cost     int
	log      *logging.Logger
	now      func() time.Time

	// dummyHash is compared against on login for unknown usernames so the
	// absent and wrong-password paths cost the same.
	dummyHash []byte
}

// New constructs the auth service. It fails when the secret is empty or the
// bcrypt cost is below the policy floor.
func New(users storage.UserStore, cfg Config, log *logging.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("auth: secret key is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 60 * time.Second
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if log == nil {
		log = logging.NewDefault("auth")
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("budgetd-timing-reference"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: generate reference hash: %w", err)
	}

	return &Service{
		users:     users,
		secret:    cfg.Secret,
		tokenTTL:  cfg.TokenTTL,
		cost:      cfg.BcryptCost,
		log:       log,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Signup creates a credential record and returns a fresh token. Outcomes:
// the token, Conflict when the username is taken, or InvalidInput.
// Existence checking is delegated to the store's uniqueness constraint, so
// two concurrent signups for one name produce exactly one success.
func (s *Service) Signup(ctx context.Context, username, password string) (string, error) {
	username, password, err := normalizeCredentials(username, password)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", errors.Internal("failed to hash password", err)
	}

	if _, err := s.users.CreateUser(ctx, user.User{Username: username, PasswordHash: hash}); err != nil {
		if stderrors.Is(err, storage.ErrAlreadyExists) {
			return "", errors.Conflict("user already exists")
		}
		return "", errors.Internal("failed to create user", err)
	}

	s.log.WithContext(ctx).WithField("username", username).Info("user signed up")
	return s.IssueToken(username)
}

// Login verifies credentials and returns a fresh token. A wrong password and
// an unknown username yield byte-identical InvalidCredentials outcomes, and
// the unknown-username path burns a comparable bcrypt verification so
// response timing does not leak which usernames exist.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username, password, err := normalizeCredentials(username, password)
	if err != nil {
		return "", err
	}

	record, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return "", errors.InvalidCredentials()
		}
		return "", errors.Internal("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword(record.PasswordHash, []byte(password)); err != nil {
		s.log.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"username": username})
		return "", errors.InvalidCredentials()
	}

	return s.IssueToken(username)
}

// Renew exchanges a still-valid token for a fresh one bound to the same
// username. No password is re-checked; possession of a live token is the
// whole proof. An expired token cannot be renewed.
func (s *Service) Renew(ctx context.Context, tokenString string) (string, error) {
	username, err := s.VerifyToken(tokenString)
	if err != nil {
		return "", err
	}
	return s.IssueToken(username)
}

// normalizeCredentials trims both fields and applies the username policy:
// non-empty, alphanumeric, at most 20 characters.
func normalizeCredentials(username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	if username == "" || password == "" {
		return "", "", errors.InvalidInput("username and password are required")
	}
	if len(username) > maxUsernameLen {
		return "", "", errors.InvalidInput("username must be at most 20 characters")
	}
	for _, r := range username {
		if !isAlphanumeric(r) {
			return "", "", errors.InvalidInput("username must be alphanumeric")
		}
	}
	if len(password) > maxPasswordLen {
		return "", "", errors.InvalidInput("password is too long")
	}
	return username, password, nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
