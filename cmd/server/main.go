// Prompt Iterator - interactive prompt enhancement server
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

	"github.com/ekovalev/prompt-iterator/internal/api"
	"github.com/ekovalev/prompt-iterator/internal/config"
	"github.com/ekovalev/prompt-iterator/internal/engine"
	"github.com/ekovalev/prompt-iterator/internal/middleware"
	"github.com/ekovalev/prompt-iterator/internal/notify"
	"github.com/ekovalev/prompt-iterator/internal/store"
	"github.com/ekovalev/prompt-iterator/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	sqlite, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqlite.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := sqlite.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	bus := notify.NewBus()
	defer bus.Close()
	repo := store.NewNotifying(sqlite, bus)

	eng := engine.New(engine.WithDemoCharDelay(cfg.DemoCharDelay))
	runner := engine.NewRunner()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, eng, runner, bus, cfg)
	healthHandler := api.NewHealthHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler)
	sessionHandler := api.NewSessionHandler(baseHandler)
	toolHandler := api.NewToolHandler(baseHandler)
	settingsHandler := api.NewSettingsHandler(baseHandler)
	favoriteHandler := api.NewFavoriteHandler(baseHandler)
	eventsHandler := api.NewEventsHandler(baseHandler, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)
	toolHandler.RegisterRoutes(r)
	settingsHandler.RegisterRoutes(r)
	favoriteHandler.RegisterRoutes(r)
	eventsHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
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
