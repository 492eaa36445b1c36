package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gamesite/arcade/internal/channel"
	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/identity"
	"github.com/gamesite/arcade/internal/store"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	games   []*domain.Game
	pingErr error
}

func newFakeRepo(ids ...string) *fakeRepo {
	f := &fakeRepo{users: make(map[string]*domain.User)}
	for _, id := range ids {
		f.users[id] = &domain.User{UserID: id, Username: strings.ToUpper(id)}
	}
	return f
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *user
	f.users[user.UserID] = &u
	return nil
}

func (f *fakeRepo) GetGameType(_ context.Context, ch string) (*domain.GameType, error) {
	for _, gt := range domain.DefaultGameTypes {
		if gt.Channel == ch {
			gt := gt
			return &gt, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRepo) GetGameTypeByID(_ context.Context, id string) (*domain.GameType, error) {
	for _, gt := range domain.DefaultGameTypes {
		if gt.ID == id {
			gt := gt
			return &gt, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRepo) ListGameTypes(_ context.Context) ([]*domain.GameType, error) {
	out := make([]*domain.GameType, 0, len(domain.DefaultGameTypes))
	for _, gt := range domain.DefaultGameTypes {
		gt := gt
		out = append(out, &gt)
	}
	return out, nil
}

func (f *fakeRepo) CreateGame(_ context.Context, g *domain.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, g)
	return nil
}

func (f *fakeRepo) CompleteGame(_ context.Context, gameID, winnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.games {
		if g.ID == gameID {
			g.Complete = true
			g.WinnerID = winnerID
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeRepo) ListCompletedGames(_ context.Context, userID, gameTypeID string) ([]*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Game, 0)
	for _, g := range f.games {
		if g.Complete && g.HasParticipant(userID) && (gameTypeID == "" || g.GameTypeID == gameTypeID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

type nopSub struct{}

func (nopSub) ID() string        { return "nop" }
func (nopSub) Send([]byte) bool { return true }

type testEnv struct {
	repo   *fakeRepo
	reg    *channel.Registry
	router chi.Router
}

func newTestEnv(ids ...string) *testEnv {
	repo := newFakeRepo(ids...)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := channel.NewRegistry(
		channel.New(game.NewTicTacToe(), channel.Options{Repo: repo, Logger: quiet}),
		channel.New(game.NewDotsAndBoxes(0, 0), channel.Options{Repo: repo, Logger: quiet}),
	)
	base := NewHandler(repo, reg)

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, identity.Options{}))
	NewHealthHandler(base).RegisterHealth(r)
	NewGamesHandler(base).RegisterRoutes(r)
	return &testEnv{repo: repo, reg: reg, router: r}
}

func (e *testEnv) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(identity.UserHeaderName, userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Status   string          `json:"status"`
		Channels []channel.Stats `json:"channels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Status != "healthy" || len(body.Channels) != 2 {
		t.Errorf("Unexpected health body %+v", body)
	}

	env.repo.pingErr = errors.New("gone")
	if rec := env.do(http.MethodGet, "/health", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the database is down, got %d", rec.Code)
	}
}

func TestGameTypes(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/game-types", "", "")
	var types []domain.GameType
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(types) != 3 {
		t.Errorf("Expected 3 game types, got %d", len(types))
	}

	rec = env.do(http.MethodGet, "/api/game-types/dots-and-boxes", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"num_players":2`) {
		t.Errorf("Unexpected response %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/api/game-types/chess", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv("alice")

	if rec := env.do(http.MethodGet, "/api/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}

	rec := env.do(http.MethodGet, "/api/me", "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"username":"ALICE"`) {
		t.Errorf("Unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestChallenges(t *testing.T) {
	env := newTestEnv("alice", "bob")
	ch, _ := env.reg.Get("tic-tac-toe")
	if err := ch.CreatePrivateChallenge(context.Background(), nopSub{}, "alice", "bob"); err != nil {
		t.Fatalf("CreatePrivateChallenge failed: %v", err)
	}

	rec := env.do(http.MethodGet, "/api/challenges", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got []challengeView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "tic-tac-toe" || got[0].ChallengerID != "alice" || got[0].ChallengerName != "ALICE" {
		t.Errorf("Unexpected challenges %+v", got)
	}

	rec = env.do(http.MethodGet, "/api/challenges", "alice", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected no challenges for alice, got %s", rec.Body.String())
	}
}

func TestListGames(t *testing.T) {
	env := newTestEnv("alice", "bob")
	env.repo.games = []*domain.Game{
		{ID: "g1", GameTypeID: "tic-tac-toe", UserIDs: []string{"alice", "bob"}, Complete: true, WinnerID: "bob"},
		{ID: "g2", GameTypeID: "dots-and-boxes", UserIDs: []string{"alice", "bob"}, Complete: true},
		{ID: "g3", GameTypeID: "tic-tac-toe", UserIDs: []string{"alice", "bob"}},
	}

	if rec := env.do(http.MethodGet, "/api/games", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}

	var games []domain.Game
	rec := env.do(http.MethodGet, "/api/games", "alice", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &games); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(games) != 2 {
		t.Errorf("Expected 2 completed games, got %d", len(games))
	}

	rec = env.do(http.MethodGet, "/api/games/type/tic-tac-toe", "bob", "")
	games = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &games); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(games) != 1 || games[0].ID != "g1" {
		t.Errorf("Expected only g1, got %+v", games)
	}
}

func TestColors(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/api/games/dots-and-boxes/colors", "", "")
	var colors []string
	if err := json.Unmarshal(rec.Body.Bytes(), &colors); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(colors) != len(game.Palette) || colors[0] != "red" {
		t.Errorf("Unexpected palette %v", colors)
	}
}

func TestLiveGame(t *testing.T) {
	env := newTestEnv("alice", "bob")
	ch, _ := env.reg.Get("tic-tac-toe")
	ctx := context.Background()
	if err := ch.RequestRandomMatch(ctx, nopSub{}, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := ch.RequestRandomMatch(ctx, nopSub{}, "bob"); err != nil {
		t.Fatal(err)
	}
	ch.Wait()

	gameID := env.repo.games[0].ID
	rec := env.do(http.MethodGet, "/api/games/live/tic-tac-toe/"+gameID, "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"`+gameID+`"`) {
		t.Errorf("Unexpected response %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/api/games/live/tic-tac-toe/missing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown game, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/games/live/chess/"+gameID, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown channel, got %d", rec.Code)
	}
}

func TestRecordScore(t *testing.T) {
	env := newTestEnv("alice")

	rec := env.do(http.MethodPost, "/api/games/score", "alice", `{"gameType":"tetris","score":1200}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if len(env.repo.games) != 1 {
		t.Fatalf("Expected one stored game, got %d", len(env.repo.games))
	}
	g := env.repo.games[0]
	if !g.Complete || g.Score == nil || *g.Score != 1200 || g.Usernames[0] != "ALICE" {
		t.Errorf("Unexpected record %+v", g)
	}

	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{"no identity", "", `{"gameType":"tetris","score":1}`, http.StatusUnauthorized},
		{"missing score", "alice", `{"gameType":"tetris"}`, http.StatusBadRequest},
		{"bad json", "alice", `{`, http.StatusBadRequest},
		{"unknown type", "alice", `{"gameType":"pong","score":1}`, http.StatusNotFound},
		{"multiplayer", "alice", `{"gameType":"tic-tac-toe","score":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(http.MethodPost, "/api/games/score", tt.user, tt.body); rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
