// Curhatin companion server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/curhatin/companion/internal/api"
	"github.com/curhatin/companion/internal/bridge"
	"github.com/curhatin/companion/internal/chat"
	"github.com/curhatin/companion/internal/config"
	"github.com/curhatin/companion/internal/domain"
	"github.com/curhatin/companion/internal/maintenance"
	"github.com/curhatin/companion/internal/parlant"
	"github.com/curhatin/companion/internal/ratelimit"
	"github.com/curhatin/companion/internal/store"
	"github.com/curhatin/companion/internal/turnstile"
	"github.com/curhatin/companion/internal/wishlist"
	"github.com/curhatin/companion/web"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
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

	platform := parlant.NewClient(cfg.Parlant.ServerURL, cfg.Parlant.RequestTimeout)
	if !platform.Configured() {
		slog.Warn("PARLANT_SERVER_URL not set, session requests will fail")
	}
	agentIDs := cfg.AgentIDs()
	for _, lang := range domain.Languages {
		if _, ok := agentIDs[lang]; !ok {
			slog.Warn("No agent configured for language, its sessions will fail", "language", lang)
		}
	}

	verifier := turnstile.NewVerifier(cfg.Turnstile.SecretKey, cfg.Turnstile.VerifyURL)
	if !verifier.Configured() {
		slog.Warn("TURNSTILE_SECRET_KEY not set, verification will fail")
	}

	sessionLimiter := ratelimit.New(cfg.RateLimit.SessionRequests, cfg.RateLimit.Window)
	eventLimiter := ratelimit.New(cfg.RateLimit.EventRequests, cfg.RateLimit.Window)

	// Initialize services.
	gateway := bridge.NewService(bridge.Deps{
		Platform:       platform,
		Verifier:       verifier,
		Recorder:       repo,
		SessionLimiter: sessionLimiter,
		EventLimiter:   eventLimiter,
	}, bridge.Config{
		AgentIDs:         agentIDs,
		MaxWait:          cfg.Chat.PollMaxWait,
		MessageMaxLength: cfg.Chat.MessageMaxLength,
	})

	signups := wishlist.NewService(repo, gateway, wishlist.NewWebhookForwarder(cfg.Wishlist.WebhookURL, nil))

	// Initialize handlers.
	streams := api.NewStreamRegistry()
	baseHandler := api.NewHandler(gateway, signups, repo, cfg.MaxRequestBodySize)
	router := api.NewRouter(api.RouterConfig{
		Base: baseHandler,
		Stream: api.NewStreamHandler(gateway, streams, chat.DefaultTurnConfig(),
			cfg.CORSAllowedOrigins, cfg.IsDevelopment()),
		Config: api.NewConfigHandler(api.PublicConfig{
			TurnstileSiteKey: cfg.Turnstile.SiteKey,
			MessageMaxLength: cfg.Chat.MessageMaxLength,
			PollMaxWaitSecs:  int(cfg.Chat.PollMaxWait / time.Second),
		}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		IsDev:          cfg.IsDevelopment(),
		Static:         web.SPAHandler(),
	})

	// Create server.
	// Long polls block for up to POLL_MAX_WAIT and streams stay open, so there
	// is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start maintenance worker.
	worker, err := maintenance.New(maintenance.Config{
		Schedule:         cfg.Maintenance.Schedule,
		SessionRecordTTL: cfg.Maintenance.SessionRecordTTL,
	}, maintenance.Deps{
		Limiters: []maintenance.Sweeper{sessionLimiter, eventLimiter},
		Sessions: repo,
		Wishlist: signups,
	})
	if err != nil {
		slog.Error("Failed to initialize maintenance worker", "error", err)
		os.Exit(1)
	}
	worker.Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	streams.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
