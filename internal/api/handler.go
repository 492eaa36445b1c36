// Package api provides HTTP handlers for the arcade API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	reg  *channel.Registry
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, reg *channel.Registry) *Handler {
	return &Handler{
		repo: repo,
		reg:  reg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// requireUser returns the caller's user id, writing 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}
