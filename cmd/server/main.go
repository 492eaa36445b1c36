// Arcade - real-time matchmaking and game session server
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

	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/config"
	"github.com/gamesite/arcade/internal/events"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/store"
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
		Level: cfg.LogLevel,
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

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATS(cfg.NATSURL)
		if err != nil {
			slog.Warn("Failed to connect to NATS, game events will not be published", "error", err)
		} else {
			publisher = np
			slog.Info("Publishing game events", "url", cfg.NATSURL)
		}
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			slog.Error("Failed to close event publisher", "error", closeErr)
		}
	}()

	// Initialize channels.
	opts := channel.Options{
		Repo:           repo,
		Publisher:      publisher,
		Logger:         logger,
		PersistTimeout: cfg.Games.PersistTimeout,
	}
	reg := channel.NewRegistry(
		channel.New(game.NewTicTacToe(), opts),
		channel.New(game.NewDotsAndBoxes(cfg.Games.DotsRows, cfg.Games.DotsCols), opts),
	)
	slog.Info("Game channels ready", "channels", len(reg.All()))

	// WriteTimeout stays 0 so upgraded connections are not cut off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, repo, reg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	channel.StartSweeper(ctx, reg, cfg.Games.SweepInterval, cfg.Games.SessionRetention)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight completion writes and event publishes land.
	reg.Wait()

	slog.Info("Server stopped successfully")
}
