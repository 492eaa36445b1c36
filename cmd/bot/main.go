// Arcade bot - joins a game channel and plays random legal moves
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

const writeWait = 10 * time.Second

type bot struct {
	server   *url.URL
	gameType string
	userID   string
	games    int
	header   http.Header
	jar      http.CookieJar
	rng      *rand.Rand
	conn     *websocket.Conn
	// finished holds games already counted, since a finished game can be
	// broadcast again after a late joinRoom or chooseColor.
	finished map[string]bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	server := flag.String("server", envOr("ARCADE_URL", "http://localhost:8080"), "arcade server base URL")
	gameType := flag.String("game", envOr("ARCADE_GAME", "tic-tac-toe"), "game channel to play")
	userID := flag.String("user", os.Getenv("ARCADE_USER"), "user id to play as; empty uses an anonymous account")
	games := flag.Int("games", 1, "number of games to play, 0 plays forever")
	flag.Parse()

	u, err := url.Parse(*server)
	if err != nil {
		slog.Error("Invalid server URL", "url", *server, "error", err)
		os.Exit(1)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		slog.Error("Failed to create cookie jar", "error", err)
		os.Exit(1)
	}

	b := &bot{
		server:   u,
		gameType: *gameType,
		games:    *games,
		header:   http.Header{},
		jar:      jar,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		finished: make(map[string]bool),
	}
	if *userID != "" {
		b.header.Set(identity.UserHeaderName, *userID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Bot stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// whoami establishes the bot's identity. With no user id the server mints
// an anonymous account and the cookie lands in the jar.
func (b *bot) whoami(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.server.JoinPath("/api/me").String(), nil)
	if err != nil {
		return err
	}
	req.Header = b.header.Clone()

	client := &http.Client{Jar: b.jar, Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get identity: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get identity: status %s", resp.Status)
	}
	var me struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	b.userID = me.UserID
	slog.Info("Playing as", "user_id", me.UserID, "username", me.Username)
	return nil
}

func (b *bot) dial(ctx context.Context) error {
	wsURL := *b.server
	wsURL.Scheme = "ws"
	if strings.EqualFold(b.server.Scheme, "https") {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws/" + b.gameType

	dialer := websocket.Dialer{
		Jar:              b.jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), b.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", wsURL.String(), err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", wsURL.String(), err)
	}
	b.conn = conn
	return nil
}

func (b *bot) send(msg realtime.Message) error {
	msg.UserID = b.userID
	if err := b.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return b.conn.WriteJSON(msg)
}

func (b *bot) run(ctx context.Context) error {
	if err := b.whoami(ctx); err != nil {
		return err
	}
	if err := b.dial(ctx); err != nil {
		return err
	}
	defer func() { _ = b.conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(writeWait))
		_ = b.conn.Close()
	}()

	if err := b.send(realtime.Message{Type: realtime.MsgJoinRandomGame}); err != nil {
		return err
	}
	slog.Info("Waiting for an opponent", "game", b.gameType)

	played := 0
	for {
		var frame channel.Frame
		if err := b.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case channel.FrameError:
			slog.Warn("Server error", "message", frame.Message)

		case channel.FrameJoinedGame:
			var s snapshot
			if err := json.Unmarshal(frame.Game, &s); err != nil {
				return fmt.Errorf("decode joined game: %w", err)
			}
			slog.Info("Joined game", "game_id", s.ID, "players", s.UserIDs)
			if err := b.send(realtime.Message{Type: realtime.MsgJoinRoom, GameID: s.ID}); err != nil {
				return err
			}

		case channel.FrameGameUpdate:
			var s snapshot
			if err := json.Unmarshal(frame.Game, &s); err != nil {
				return fmt.Errorf("decode game update: %w", err)
			}
			if s.Complete {
				if !b.finish(s.ID) {
					continue
				}
				played++
				slog.Info("Game over", "game_id", s.ID, "winner", s.Winner, "won", s.Winner == b.userID)
				if b.games > 0 && played >= b.games {
					return nil
				}
				if err := b.send(realtime.Message{Type: realtime.MsgJoinRandomGame}); err != nil {
					return err
				}
				continue
			}
			if !s.started() || s.Turn != b.userID {
				continue
			}
			if err := b.play(s); err != nil {
				return err
			}
		}
	}
}

// finish marks gameID as over and reports whether it was not already.
func (b *bot) finish(gameID string) bool {
	if b.finished[gameID] {
		return false
	}
	b.finished[gameID] = true
	return true
}

func (b *bot) play(s snapshot) error {
	moves, err := legalMoves(b.gameType, s.Board)
	if err != nil {
		return err
	}
	if len(moves) == 0 {
		return nil
	}
	mv := moves[b.rng.Intn(len(moves))]
	slog.Debug("Moving", "game_id", s.ID, "row", mv.Row, "col", mv.Col, "horizontal", mv.Horizontal)
	return b.send(realtime.Message{
		Type:       realtime.MsgMove,
		GameID:     s.ID,
		Row:        mv.Row,
		Col:        mv.Col,
		Horizontal: mv.Horizontal,
	})
}
