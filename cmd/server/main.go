// Lida backend server: credential endpoints and the assistant gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lidahealth/lida/internal/auth"
	"github.com/lidahealth/lida/internal/config"
	"github.com/lidahealth/lida/internal/middleware"
	"github.com/lidahealth/lida/internal/server"
	"github.com/lidahealth/lida/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	policy := auth.Policy{
		IdentifierDigits: cfg.Gate.IdentifierDigits,
		SecretMinLength:  cfg.Gate.SecretMinLength,
	}
	authHandler := server.NewHandler(repo, policy, []byte(cfg.JWTSecret), cfg.BcryptCost)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	authHandler.RegisterRoutes(r)

	// Conversation endpoints pass through to the upstream assistant service.
	if cfg.UpstreamURL != "" {
		gw, err := server.NewGateway(cfg.UpstreamURL, []byte(cfg.JWTSecret))
		if err != nil {
			slog.Error("Failed to initialize gateway", "upstream", cfg.UpstreamURL, "error", err)
			os.Exit(1)
		}
		r.Handle("/conversation-threads", gw)
		r.Handle("/conversation-threads/*", gw)
		slog.Info("Gateway enabled", "upstream", cfg.UpstreamURL)
	} else {
		slog.Warn("UPSTREAM_URL not set, conversation endpoints disabled")
	}

	// Create server.
	// Note: SSE pass-through requires long response times (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
