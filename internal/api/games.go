package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GamesHandler serves game metadata, history and lobby reads.
type GamesHandler struct {
	*Handler
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(base *Handler) *GamesHandler {
	return &GamesHandler{Handler: base}
}

// RegisterRoutes registers game routes.
func (h *GamesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/game-types", h.ListGameTypes)
		r.Get("/game-types/{channel}", h.GetGameType)
		r.Get("/challenges", h.ListChallenges)
		r.Get("/games", h.ListGames)
		r.Get("/games/type/{gameTypeId}", h.ListGames)
		r.Get("/games/dots-and-boxes/colors", h.ListColors)
		r.Get("/games/live/{channel}/{gameId}", h.GetLiveGame)
		r.Post("/games/score", h.RecordScore)
	})
}

// GetMe returns the current user's information.
func (h *GamesHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"user_id":  userID,
		"username": identity.UsernameFromContext(r.Context()),
	})
}

// ListGameTypes returns the game catalog.
func (h *GamesHandler) ListGameTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.repo.ListGameTypes(r.Context())
	if err != nil {
		slog.Error("Failed to list game types", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list game types")
		return
	}
	JSON(w, http.StatusOK, types)
}

// GetGameType returns one game type by channel name.
func (h *GamesHandler) GetGameType(w http.ResponseWriter, r *http.Request) {
	gt, err := h.repo.GetGameType(r.Context(), chi.URLParam(r, "channel"))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "game type not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get game type", "error", err)
		Error(w, http.StatusInternalServerError, "failed to get game type")
		return
	}
	JSON(w, http.StatusOK, gt)
}

type challengeView struct {
	Channel        string    `json:"channel"`
	ChallengerID   string    `json:"challengerId"`
	ChallengerName string    `json:"challengerName"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListChallenges returns private challenges waiting on the caller.
func (h *GamesHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	pending := h.reg.PendingChallengesFor(userID)
	out := make([]challengeView, 0, len(pending))
	for _, p := range pending {
		name := p.Challenger
		if user, err := h.repo.GetUser(r.Context(), p.Challenger); err == nil {
			name = user.DisplayName()
		}
		out = append(out, challengeView{
			Channel:        p.Channel,
			ChallengerID:   p.Challenger,
			ChallengerName: name,
			CreatedAt:      p.CreatedAt,
		})
	}
	JSON(w, http.StatusOK, out)
}

// ListGames returns the caller's completed games, optionally for one type.
func (h *GamesHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	games, err := h.repo.ListCompletedGames(r.Context(), userID, chi.URLParam(r, "gameTypeId"))
	if err != nil {
		slog.Error("Failed to list games", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	JSON(w, http.StatusOK, games)
}

// ListColors returns the Dots-and-Boxes palette.
func (h *GamesHandler) ListColors(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, game.Palette)
}

// GetLiveGame returns the in-memory snapshot of a session.
func (h *GamesHandler) GetLiveGame(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.reg.Get(chi.URLParam(r, "channel"))
	if !ok {
		Error(w, http.StatusNotFound, "unknown game channel")
		return
	}
	data, ok := ch.Session(chi.URLParam(r, "gameId"))
	if !ok {
		Error(w, http.StatusNotFound, "game not found")
		return
	}
	JSON(w, http.StatusOK, json.RawMessage(data))
}

type scoreRequest struct {
	GameType string `json:"gameType"`
	Score    *int64 `json:"score"`
}

// RecordScore stores a finished single-player game.
func (h *GamesHandler) RecordScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameType == "" || req.Score == nil {
		Error(w, http.StatusBadRequest, "gameType and score are required")
		return
	}

	gt, err := h.repo.GetGameType(r.Context(), req.GameType)
	if errors.Is(err, store.ErrNotFound) {
		gt, err = h.repo.GetGameTypeByID(r.Context(), req.GameType)
	}
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "game type not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get game type", "error", err)
		Error(w, http.StatusInternalServerError, "failed to record score")
		return
	}
	if gt.IsMultiplayer() {
		Error(w, http.StatusBadRequest, "scores are only recorded for single-player games")
		return
	}

	record := &domain.Game{
		ID:         uuid.NewString(),
		GameTypeID: gt.ID,
		UserIDs:    []string{userID},
		Usernames:  []string{identity.UsernameFromContext(r.Context())},
		Complete:   true,
		Score:      req.Score,
	}
	if err := h.repo.CreateGame(r.Context(), record); err != nil {
		slog.Error("Failed to record score", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to record score")
		return
	}
	slog.Info("Score recorded", "user_id", userID, "game_type", gt.ID, "score", *req.Score)
	JSON(w, http.StatusCreated, record)
}
