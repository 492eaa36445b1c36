package main

import (
	"net/http"

	"github.com/gamesite/arcade/internal/api"
	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/config"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/middleware"
	"github.com/gamesite/arcade/internal/realtime"
	"github.com/gamesite/arcade/internal/store"
	"github.com/gamesite/arcade/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// newRouter mounts every route. Health and the lobby's static files are
// served without identity so probes and asset loads never mint accounts.
func newRouter(cfg *config.Config, repo store.Repository, reg *channel.Registry) http.Handler {
	baseHandler := api.NewHandler(repo, reg)
	healthHandler := api.NewHealthHandler(baseHandler)
	gamesHandler := api.NewGamesHandler(baseHandler)
	wsHandler := realtime.NewWebSocketHandler(reg, cfg.AllowedOrigins(), cfg.Games.OutboundQueue)

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Player routes resolve the caller first.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, identity.Options{
			AllowAnonymous: cfg.AllowAnonymous,
			SecureCookie:   !cfg.IsDevelopment(),
		}))
		gamesHandler.RegisterRoutes(r)

		// WebSocket endpoints, one per channel.
		wsHandler.RegisterRoutes(r)
	})

	// Serve the embedded lobby page.
	r.Handle("/*", web.LobbyHandler())

	return r
}
