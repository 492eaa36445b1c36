package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository and seeds the game
// type catalog.
func NewSQLite(dbPath string) (Repository, error) {
	return newSQLite(dbPath)
}

func newSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := store.seedGameTypes(context.Background()); err != nil {
		return nil, fmt.Errorf("seed game types: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS game_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		channel TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		num_players INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		game_type_id TEXT NOT NULL REFERENCES game_types(id),
		user_ids_json TEXT NOT NULL,
		usernames_json TEXT NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		winner_id TEXT,
		score INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_games_complete ON games(complete, game_type_id);

	CREATE TABLE IF NOT EXISTS game_participants (
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		seat INTEGER NOT NULL,
		PRIMARY KEY (game_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON game_participants(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) seedGameTypes(ctx context.Context) error {
	query := `
	INSERT INTO game_types (id, name, channel, description, num_players)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`
	for _, gt := range domain.DefaultGameTypes {
		if _, err := s.db.ExecContext(ctx, query, gt.ID, gt.Name, gt.Channel, gt.Description, gt.NumPlayers); err != nil {
			return fmt.Errorf("insert game type %s: %w", gt.ID, err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, username, created_at, updated_at FROM users WHERE user_id = ?`

	var user domain.User
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&user.UserID, &user.Username, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		updated_at = excluded.updated_at`

	now := time.Now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if _, err := s.db.ExecContext(ctx, query, user.UserID, user.Username, createdAt.Unix(), now.Unix()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

const gameTypeColumns = `id, name, channel, description, num_players`

func scanGameType(row interface{ Scan(...any) error }) (*domain.GameType, error) {
	var gt domain.GameType
	if err := row.Scan(&gt.ID, &gt.Name, &gt.Channel, &gt.Description, &gt.NumPlayers); err != nil {
		return nil, err
	}
	return &gt, nil
}

// GetGameType looks a game type up by its channel name.
func (s *SQLiteStore) GetGameType(ctx context.Context, channel string) (*domain.GameType, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameTypeColumns+` FROM game_types WHERE channel = ?`, channel)
	gt, err := scanGameType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan game type: %w", err)
	}
	return gt, nil
}

// GetGameTypeByID looks a game type up by id.
func (s *SQLiteStore) GetGameTypeByID(ctx context.Context, id string) (*domain.GameType, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameTypeColumns+` FROM game_types WHERE id = ?`, id)
	gt, err := scanGameType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan game type: %w", err)
	}
	return gt, nil
}

// ListGameTypes returns every known game type ordered by name.
func (s *SQLiteStore) ListGameTypes(ctx context.Context) ([]*domain.GameType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gameTypeColumns+` FROM game_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query game types: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close game type rows", "error", closeErr)
		}
	}()

	var types []*domain.GameType
	for rows.Next() {
		gt, err := scanGameType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game type row: %w", err)
		}
		types = append(types, gt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game types: %w", err)
	}
	return types, nil
}

// CreateGame inserts a new game record together with its participant rows.
func (s *SQLiteStore) CreateGame(ctx context.Context, game *domain.Game) error {
	userIDs, err := json.Marshal(game.UserIDs)
	if err != nil {
		return fmt.Errorf("encode user ids: %w", err)
	}
	usernames, err := json.Marshal(game.Usernames)
	if err != nil {
		return fmt.Errorf("encode usernames: %w", err)
	}

	now := time.Now()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = now
	}
	game.UpdatedAt = now

	var winner interface{}
	if game.WinnerID != "" {
		winner = game.WinnerID
	}
	var score interface{}
	if game.Score != nil {
		score = *game.Score
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back create game", "game_id", game.ID, "error", rbErr)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, game_type_id, user_ids_json, usernames_json, complete, winner_id, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.GameTypeID, string(userIDs), string(usernames),
		game.Complete, winner, score, game.CreatedAt.Unix(), game.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	for seat, userID := range game.UserIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_participants (game_id, user_id, seat) VALUES (?, ?, ?)`,
			game.ID, userID, seat,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	return nil
}

// CompleteGame marks a game complete. It retries with exponential backoff
// on SQLITE_BUSY so a burst of finishing games does not drop results.
func (s *SQLiteStore) CompleteGame(ctx context.Context, gameID, winnerID string) error {
	return shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "complete_game", func(ctx context.Context) error {
		return s.completeGameOnce(ctx, gameID, winnerID)
	})
}

func (s *SQLiteStore) completeGameOnce(ctx context.Context, gameID, winnerID string) error {
	var winner interface{}
	if winnerID != "" {
		winner = winnerID
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE games SET complete = 1, winner_id = ?, updated_at = ? WHERE id = ?`,
		winner, time.Now().Unix(), gameID,
	)
	if err != nil {
		return fmt.Errorf("complete game: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("complete game %s: %w", gameID, ErrNotFound)
	}
	return nil
}

// ListCompletedGames returns completed games the user took part in, newest
// first. An empty gameTypeID returns games of every type.
func (s *SQLiteStore) ListCompletedGames(ctx context.Context, userID, gameTypeID string) ([]*domain.Game, error) {
	query := `
		SELECT g.id, g.game_type_id, g.user_ids_json, g.usernames_json,
		       g.complete, g.winner_id, g.score, g.created_at, g.updated_at
		FROM games g
		JOIN game_participants p ON p.game_id = g.id
		WHERE g.complete = 1 AND p.user_id = ?`
	args := []interface{}{userID}
	if gameTypeID != "" {
		query += ` AND g.game_type_id = ?`
		args = append(args, gameTypeID)
	}
	query += ` ORDER BY g.updated_at DESC, g.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completed games: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close completed game rows", "error", closeErr)
		}
	}()

	games := make([]*domain.Game, 0)
	for rows.Next() {
		var game domain.Game
		var userIDs, usernames string
		var winner sql.NullString
		var score sql.NullInt64
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&game.ID, &game.GameTypeID, &userIDs, &usernames,
			&game.Complete, &winner, &score, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		if err := json.Unmarshal([]byte(userIDs), &game.UserIDs); err != nil {
			return nil, fmt.Errorf("decode user ids of %s: %w", game.ID, err)
		}
		if err := json.Unmarshal([]byte(usernames), &game.Usernames); err != nil {
			return nil, fmt.Errorf("decode usernames of %s: %w", game.ID, err)
		}
		game.WinnerID = winner.String
		if score.Valid {
			v := score.Int64
			game.Score = &v
		}
		game.CreatedAt = time.Unix(createdAt, 0)
		game.UpdatedAt = time.Unix(updatedAt, 0)
		games = append(games, &game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed games: %w", err)
	}
	return games, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
