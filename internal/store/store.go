// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/gamesite/arcade/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the durable read/write contract used by the game
// channels and the HTTP layer.
type Repository interface {
	// GetUser retrieves a user by id. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetGameType looks a game type up by its channel name.
	GetGameType(ctx context.Context, channel string) (*domain.GameType, error)

	// GetGameTypeByID looks a game type up by id.
	GetGameTypeByID(ctx context.Context, id string) (*domain.GameType, error)

	// ListGameTypes returns every known game type.
	ListGameTypes(ctx context.Context) ([]*domain.GameType, error)

	// CreateGame inserts a new game record.
	CreateGame(ctx context.Context, game *domain.Game) error

	// CompleteGame marks a game complete. winnerID is empty on a tie.
	CompleteGame(ctx context.Context, gameID, winnerID string) error

	// ListCompletedGames returns completed games the user took part in,
	// optionally restricted to one game type.
	ListCompletedGames(ctx context.Context, userID, gameTypeID string) ([]*domain.Game, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
