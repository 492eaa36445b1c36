// Package realtime serves the game channels over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Inbound message types.
const (
	MsgJoinRandomGame    = "joinRandomGame"
	MsgCreatePrivateGame = "createPrivateGame"
	MsgJoinPrivateGame   = "joinPrivateGame"
	MsgJoinRoom          = "joinRoom"
	MsgMove              = "move"
	MsgChooseColor       = "chooseColor"
	MsgPing              = "ping"
)

var errUserMismatch = errors.New("user id does not match the connection")

// Message is the envelope of every client to server frame. Fields not used
// by a type are ignored.
type Message struct {
	Type       string `json:"type"`
	UserID     string `json:"userId,omitempty"`
	OpponentID string `json:"opponentId,omitempty"`
	UserToJoin string `json:"userToJoin,omitempty"`
	GameID     string `json:"gameId,omitempty"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	Horizontal bool   `json:"horizontal"`
	Color      string `json:"color,omitempty"`
}

// WebSocketHandler upgrades /ws/{channel} requests and feeds their frames
// to the matching channel.
type WebSocketHandler struct {
	reg            *channel.Registry
	allowedOrigins []string
	queueSize      int
}

// NewWebSocketHandler creates a handler serving the channels in reg.
func NewWebSocketHandler(reg *channel.Registry, allowedOrigins []string, queueSize int) *WebSocketHandler {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &WebSocketHandler{
		reg:            reg,
		allowedOrigins: allowedOrigins,
		queueSize:      queueSize,
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{channel}", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	ch, ok := h.reg.Get(name)
	if !ok {
		http.Error(w, `{"error":"unknown game channel"}`, http.StatusNotFound)
		return
	}

	origin := r.Header.Get("Origin")
	if !middleware.OriginAllowed(h.allowedOrigins, origin) {
		slog.Warn("WebSocket origin rejected", "origin", origin, "channel", name)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	connID := fmt.Sprintf("%s:%s", identity.SessionIDFromContext(r.Context()), uuid.NewString())
	slog.Info("WebSocket connection request", "channel", name, "user_id", userID, "conn_id", connID, "ip", identity.IPFromRequest(r))

	// Origin was checked above against the configured frontend.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "channel", name)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(connID, ws, h.queueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, cancel)
	}()

	h.readLoop(ctx, ch, c, userID)

	ch.Disconnect(c)
	c.close()
	cancel()
	wg.Wait()
	slog.Info("WebSocket connection ended", "channel", name, "conn_id", connID)
}

// readLoop handles frames in arrival order until the client goes away.
func (h *WebSocketHandler) readLoop(ctx context.Context, ch *channel.Channel, c *conn, boundUser string) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "conn_id", c.id)
			} else {
				slog.Warn("WebSocket read error", "error", err, "conn_id", c.id)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(channel.EncodeFrame(channel.Frame{Type: channel.FrameError, Message: "malformed message"}))
			continue
		}

		h.dispatch(ctx, ch, c, boundUser, msg)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, ch *channel.Channel, c *conn, boundUser string, msg Message) {
	userID := msg.UserID
	if boundUser != "" {
		switch userID {
		case "":
			userID = boundUser
		case boundUser:
		default:
			c.Send(channel.EncodeFrame(channel.Frame{Type: channel.FrameError, Message: errUserMismatch.Error()}))
			return
		}
	}

	var err error
	switch msg.Type {
	case MsgJoinRandomGame:
		err = ch.RequestRandomMatch(ctx, c, userID)
	case MsgCreatePrivateGame:
		err = ch.CreatePrivateChallenge(ctx, c, userID, msg.OpponentID)
	case MsgJoinPrivateGame:
		err = ch.AcceptPrivateChallenge(ctx, c, userID, msg.UserToJoin)
	case MsgJoinRoom:
		ch.JoinRoom(c, msg.GameID)
	case MsgMove:
		ch.Move(msg.GameID, userID, game.Move{Row: msg.Row, Col: msg.Col, Horizontal: msg.Horizontal})
	case MsgChooseColor:
		ch.ChooseColor(msg.GameID, userID, msg.Color)
	case MsgPing:
		c.Send(channel.EncodeFrame(channel.Frame{Type: channel.FramePong}))
	default:
		c.Send(channel.EncodeFrame(channel.Frame{Type: channel.FrameError, Message: "unknown message type"}))
	}
	if err != nil {
		slog.Debug("Channel request failed", "type", msg.Type, "conn_id", c.id, "error", err)
	}
}
