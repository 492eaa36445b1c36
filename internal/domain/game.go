package domain

import (
	"time"
)

// Game is the durable mirror of a played game.
type Game struct {
	ID         string    `json:"id"`
	GameTypeID string    `json:"game_type_id"`
	UserIDs    []string  `json:"user_ids"`
	Usernames  []string  `json:"usernames"`
	Complete   bool      `json:"complete"`
	WinnerID   string    `json:"winner_id,omitempty"`
	Score      *int64    `json:"score,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID played in the game.
func (g *Game) HasParticipant(userID string) bool {
	for _, id := range g.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
