// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds everything the server needs at startup. The secret is loaded
// once here and passed by reference into the auth service; nothing reads it
// from the environment afterwards.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	// JWTSecret signs and verifies access tokens. Required.
	JWTSecret []byte
	// TokenTTL bounds token validity. Deliberately short so expiry is the
	// only revocation path.
	TokenTTL time.Duration
	// BcryptCost is the password hashing work factor.
	BcryptCost int

	LogLevel       string
	AllowedOrigins []string

	// AuthRatePerSecond and AuthRateBurst bound request rates on the
	// /api/auth endpoints, keyed by client address.
	AuthRatePerSecond int
	AuthRateBurst     int
}

// Load reads configuration from the environment. A missing or empty
// JWT_SECRET is an error: the process must refuse to start rather than serve
// unverifiable tokens.
func Load() (*Config, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		ListenAddr:        envOrDefault("LISTEN_ADDR", "127.0.0.1:3000"),
		DatabaseURL:       dbURL,
		JWTSecret:         []byte(secret),
		TokenTTL:          60 * time.Second,
		BcryptCost:        bcrypt.DefaultCost,
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		AuthRatePerSecond: 5,
		AuthRateBurst:     10,
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("TOKEN_TTL must be a positive duration: %q", v)
		}
		cfg.TokenTTL = ttl
	}

	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d: %q", bcrypt.MinCost, bcrypt.MaxCost, v)
		}
		cfg.BcryptCost = cost
	}

	if v := os.Getenv("AUTH_RATE_PER_SECOND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("AUTH_RATE_PER_SECOND must be a positive integer: %q", v)
		}
		cfg.AuthRatePerSecond = n
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		for _, origin := range strings.Split(v, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
