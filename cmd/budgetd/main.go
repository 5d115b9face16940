// Package main runs the budgetd server: a personal-budget REST backend with
// token-based authentication in front of a PostgreSQL store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	app "github.com/budgetwise/budgetd/internal/app"
	"github.com/budgetwise/budgetd/internal/app/httpapi"
	authsvc "github.com/budgetwise/budgetd/internal/app/services/auth"
	"github.com/budgetwise/budgetd/internal/app/storage/postgres"
	"github.com/budgetwise/budgetd/internal/config"
	"github.com/budgetwise/budgetd/internal/logging"
	"github.com/budgetwise/budgetd/internal/middleware"
	"github.com/budgetwise/budgetd/migrations"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logging.NewDefault("budgetd")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	log = logging.New("budgetd", cfg.LogLevel, os.Stderr)

	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Error("opening database")
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.WithError(err).Error("database unreachable")
		os.Exit(1)
	}
	cancel()

	if err := migrations.Apply(db.DB); err != nil {
		log.WithError(err).Error("applying migrations")
		os.Exit(1)
	}
	log.Info("migrations applied")

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Users:    store,
		Budgets:  store,
		Expenses: store,
	}, authsvc.Config{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, log)
	if err != nil {
		log.WithError(err).Error("initialising application")
		os.Exit(1)
	}

	authLimiter := middleware.NewRateLimiter(cfg.AuthRatePerSecond, cfg.AuthRateBurst, log.WithField("component", "ratelimit"))

	// Drop idle rate-limit buckets every few minutes so the per-client map
	// does not grow without bound.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 5m", func() {
		authLimiter.Cleanup(15 * time.Minute)
	}); err != nil {
		log.WithError(err).Error("scheduling limiter cleanup")
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler := httpapi.NewHandler(application, httpapi.Options{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthLimiter:    authLimiter,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
		os.Exit(1)
	}
	log.Info("stopped")
}
