package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/store"
	"github.com/go-chi/chi/v5"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	games map[string]*domain.Game
}

func newMemRepo(ids ...string) *memRepo {
	r := &memRepo{users: map[string]*domain.User{}, games: map[string]*domain.Game{}}
	for _, id := range ids {
		r.users[id] = &domain.User{UserID: id, Username: id}
	}
	return r
}

func (r *memRepo) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) GetGameType(_ context.Context, ch string) (*domain.GameType, error) {
	return &domain.GameType{ID: ch, Channel: ch, NumPlayers: 2}, nil
}

func (r *memRepo) CreateGame(_ context.Context, g *domain.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.ID] = g
	return nil
}

func (r *memRepo) CompleteGame(_ context.Context, id, winner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.games[id]; ok {
		g.Complete = true
		g.WinnerID = winner
	}
	return nil
}

type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

func newTestServer(t *testing.T, wrap func(http.Handler) http.Handler) (*httptest.Server, *channel.Registry) {
	t.Helper()
	repo := newMemRepo("alice", "bob")
	reg := channel.NewRegistry(
		channel.New(game.NewTicTacToe(), channel.Options{Repo: repo, Rand: zeroRand{}}),
		channel.New(game.NewDotsAndBoxes(1, 1), channel.Options{Repo: repo, Rand: zeroRand{}}),
	)

	r := chi.NewRouter()
	if wrap != nil {
		r.Use(wrap)
	}
	NewWebSocketHandler(reg, []string{"*"}, 16).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		reg.Wait()
	})
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, name string, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + name
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func recv(t *testing.T, ws *websocket.Conn) channel.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f channel.Frame
	if err := wsjson.Read(ctx, ws, &f); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return f
}

func recvSession(t *testing.T, ws *websocket.Conn, wantType string) game.Session {
	t.Helper()
	f := recv(t, ws)
	if f.Type != wantType {
		t.Fatalf("Expected %s frame, got %s (%s)", wantType, f.Type, f.Message)
	}
	var s game.Session
	if err := json.Unmarshal(f.Game, &s); err != nil {
		t.Fatalf("Decode session failed: %v", err)
	}
	return s
}

func TestUnknownChannel(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/ws/chess")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ws := dial(t, srv, "tic-tac-toe", nil)

	send(t, ws, Message{Type: MsgPing})
	if f := recv(t, ws); f.Type != channel.FramePong {
		t.Errorf("Expected pong, got %s", f.Type)
	}

	send(t, ws, Message{Type: "dance"})
	if f := recv(t, ws); f.Type != channel.FrameError {
		t.Errorf("Expected error for unknown type, got %s", f.Type)
	}
}

func TestRandomMatchAndPlay(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	a := dial(t, srv, "tic-tac-toe", nil)
	b := dial(t, srv, "tic-tac-toe", nil)

	send(t, a, Message{Type: MsgJoinRandomGame, UserID: "alice"})
	// Ping round trip guarantees alice is queued before bob arrives.
	send(t, a, Message{Type: MsgPing})
	if f := recv(t, a); f.Type != channel.FramePong {
		t.Fatalf("Expected pong, got %s", f.Type)
	}

	send(t, b, Message{Type: MsgJoinRandomGame, UserID: "bob"})

	sa := recvSession(t, a, channel.FrameJoinedGame)
	sb := recvSession(t, b, channel.FrameJoinedGame)
	if sa.ID != sb.ID {
		t.Fatalf("Players joined different games: %s vs %s", sa.ID, sb.ID)
	}
	if len(sa.UserIDs) != 2 || sa.UserIDs[0] != "alice" || sa.UserIDs[1] != "bob" {
		t.Fatalf("Unexpected participants %v", sa.UserIDs)
	}

	send(t, a, Message{Type: MsgJoinRoom, GameID: sa.ID})
	started := recvSession(t, a, channel.FrameGameUpdate)
	recvSession(t, b, channel.FrameGameUpdate)
	if started.Turn != "alice" {
		t.Fatalf("Expected alice to start, got %q", started.Turn)
	}

	moves := []struct {
		ws       *websocket.Conn
		user     string
		row, col int
	}{
		{a, "alice", 0, 0}, {b, "bob", 1, 0},
		{a, "alice", 0, 1}, {b, "bob", 1, 1},
		{a, "alice", 0, 2},
	}
	var last game.Session
	for _, m := range moves {
		send(t, m.ws, Message{Type: MsgMove, GameID: sa.ID, UserID: m.user, Row: m.row, Col: m.col})
		last = recvSession(t, a, channel.FrameGameUpdate)
		recvSession(t, b, channel.FrameGameUpdate)
	}
	if !last.Complete || last.Winner != "alice" {
		t.Errorf("Expected alice to win, got complete=%v winner=%q", last.Complete, last.Winner)
	}
}

func TestPrivateChallengeError(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	a := dial(t, srv, "dots-and-boxes", nil)
	b := dial(t, srv, "dots-and-boxes", nil)

	send(t, a, Message{Type: MsgCreatePrivateGame, UserID: "alice", OpponentID: "bob"})
	send(t, a, Message{Type: MsgPing})
	recv(t, a)

	send(t, b, Message{Type: MsgJoinPrivateGame, UserID: "bob", UserToJoin: "carol"})
	if f := recv(t, b); f.Type != channel.FrameError {
		t.Fatalf("Expected error, got %s", f.Type)
	}

	send(t, b, Message{Type: MsgJoinPrivateGame, UserID: "bob", UserToJoin: "alice"})
	sa := recvSession(t, a, channel.FrameJoinedGame)
	sb := recvSession(t, b, channel.FrameJoinedGame)
	if sa.ID != sb.ID {
		t.Errorf("Players joined different games")
	}
}

func TestDisconnectDequeues(t *testing.T) {
	srv, reg := newTestServer(t, nil)
	a := dial(t, srv, "tic-tac-toe", nil)

	send(t, a, Message{Type: MsgJoinRandomGame, UserID: "alice"})
	send(t, a, Message{Type: MsgPing})
	recv(t, a)

	ch, _ := reg.Get("tic-tac-toe")
	if ch.Stats().Waiting != 1 {
		t.Fatalf("Expected alice waiting")
	}

	_ = a.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(5 * time.Second)
	for ch.Stats().Waiting != 0 {
		if time.Now().After(deadline) {
			t.Fatal("alice still waiting after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBoundIdentityRejectsSpoofing(t *testing.T) {
	bind := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := r.Header.Get(identity.UserHeaderName)
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user, user)))
		})
	}
	srv, reg := newTestServer(t, bind)

	header := http.Header{}
	header.Set(identity.UserHeaderName, "alice")
	a := dial(t, srv, "tic-tac-toe", header)

	send(t, a, Message{Type: MsgJoinRandomGame, UserID: "bob"})
	if f := recv(t, a); f.Type != channel.FrameError {
		t.Fatalf("Expected error for spoofed user, got %s", f.Type)
	}

	// An empty userId is filled from the connection.
	send(t, a, Message{Type: MsgJoinRandomGame})
	send(t, a, Message{Type: MsgPing})
	recv(t, a)

	ch, _ := reg.Get("tic-tac-toe")
	if ch.Stats().Waiting != 1 {
		t.Errorf("Expected bound user to be waiting")
	}
}
