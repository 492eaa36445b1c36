// Package channel implements one matchmaking and play namespace per game
// type. A Channel owns its queue, challenges, sessions and rooms. State is
// only touched under the channel's lock; store lookups and record writes
// run outside it, with the users being paired reserved meanwhile.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/events"
	"github.com/gamesite/arcade/internal/game"
	"github.com/gamesite/arcade/internal/hub"
	"github.com/gamesite/arcade/internal/matchmaking"
	"github.com/gamesite/arcade/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrUnknownUser is returned when a participant id has no account.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNoChallenge is returned when accepting a challenge that is not
	// pending for the accepter.
	ErrNoChallenge = errors.New("no pending challenge")
	// ErrInvalidRequest is returned for malformed pairing requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// Repository is the part of the store a channel needs.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetGameType(ctx context.Context, channel string) (*domain.GameType, error)
	CreateGame(ctx context.Context, game *domain.Game) error
	CompleteGame(ctx context.Context, gameID, winnerID string) error
}

// Options carries the collaborators of a channel. Repo is required.
type Options struct {
	Repo      Repository
	Publisher events.Publisher
	Rand      game.Rand
	Logger    *slog.Logger
	// PersistTimeout bounds each store or broker call. Defaults to 5s.
	PersistTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

// Stats is a point-in-time view of a channel's occupancy.
type Stats struct {
	Channel    string `json:"channel"`
	Waiting    int    `json:"waiting"`
	Challenges int    `json:"challenges"`
	Sessions   int    `json:"sessions"`
}

// Channel is the matchmaking and play context of one game type.
type Channel struct {
	mu         sync.Mutex
	engine     game.Engine
	sessions   *game.Store
	queue      *matchmaking.RandomQueue
	challenges *matchmaking.Challenges
	rooms      *hub.Hub
	rng        game.Rand
	// reserved marks users whose pairing is being written to the store.
	reserved map[string]bool

	typeMu     sync.Mutex
	gameTypeID string

	repo           Repository
	pub            events.Publisher
	log            *slog.Logger
	persistTimeout time.Duration
	now            func() time.Time
	newID          func() string

	// background tracks completion writes and event publishes.
	background sync.WaitGroup
}

// New creates a channel serving engine.
func New(engine game.Engine, opts Options) *Channel {
	c := &Channel{
		engine:         engine,
		sessions:       game.NewStore(),
		queue:          matchmaking.NewRandomQueue(),
		challenges:     matchmaking.NewChallenges(),
		rooms:          hub.New(engine.Name()),
		reserved:       make(map[string]bool),
		rng:            opts.Rand,
		repo:           opts.Repo,
		pub:            opts.Publisher,
		log:            opts.Logger,
		persistTimeout: opts.PersistTimeout,
		now:            opts.Now,
		newID:          opts.NewID,
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.pub == nil {
		c.pub = events.Nop{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("channel", engine.Name())
	if c.persistTimeout <= 0 {
		c.persistTimeout = 5 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Name returns the channel name, which is also the engine name.
func (c *Channel) Name() string {
	return c.engine.Name()
}

// RequestRandomMatch pairs userID with the longest-waiting other user, or
// enqueues userID when nobody else is waiting. Users without an account are
// rejected before they can reach the queue.
func (c *Channel) RequestRandomMatch(ctx context.Context, sub hub.Subscriber, userID string) error {
	if userID == "" {
		return c.fail(sub, fmt.Errorf("%w: missing user id", ErrInvalidRequest))
	}
	lookupCtx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()
	user, err := c.resolveUser(lookupCtx, userID)
	if err != nil {
		return c.fail(sub, err)
	}

	c.mu.Lock()
	if c.reserved[userID] {
		// Already being paired; the personal room gets the joinedGame frame.
		c.rooms.Join(userID, sub)
		c.mu.Unlock()
		return nil
	}
	opponentID, ok := c.queue.Oldest(userID)
	if !ok {
		c.enqueue(sub, userID)
		c.mu.Unlock()
		return nil
	}
	c.queue.Remove(opponentID)
	c.queue.Remove(userID)
	c.reserve(opponentID, userID)
	c.mu.Unlock()

	var s *game.Session
	opponent, err := c.resolveUser(lookupCtx, opponentID)
	if err == nil {
		s, err = c.newSession(ctx, []*domain.User{opponent, user})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(opponentID, userID)

	if errors.Is(err, ErrUnknownUser) {
		c.log.Warn("Dropped waiting user without an account", "user_id", opponentID)
		c.enqueue(sub, userID)
		return nil
	}
	if err == nil {
		err = c.activate(s)
	}
	if err != nil {
		if c.rooms.Size(opponentID) > 0 && c.queue.Restore(opponentID) {
			c.log.Debug("User back at the head of the queue", "user_id", opponentID)
		}
		return c.fail(sub, err)
	}
	c.queue.Remove(opponentID)
	c.queue.Remove(userID)

	c.rooms.Join(s.ID, sub)
	c.rooms.Merge(s.ID, opponentID)
	c.rooms.Merge(s.ID, userID)
	c.log.Info("Random match created", "game_id", s.ID, "user_ids", s.UserIDs)
	c.broadcast(s, FrameJoinedGame)
	return nil
}

// CreatePrivateChallenge records a challenge from challengerID to
// targetID, replacing any earlier challenge by the same challenger. Both
// users must have an account.
func (c *Channel) CreatePrivateChallenge(ctx context.Context, sub hub.Subscriber, challengerID, targetID string) error {
	if challengerID == "" || targetID == "" {
		return c.fail(sub, fmt.Errorf("%w: missing user id", ErrInvalidRequest))
	}
	if challengerID == targetID {
		return c.fail(sub, fmt.Errorf("%w: cannot challenge yourself", ErrInvalidRequest))
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()
	if _, err := c.resolveUsers(lookupCtx, challengerID, targetID); err != nil {
		return c.fail(sub, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, replaced := c.challenges.Put(challengerID, targetID, c.now()); replaced {
		c.log.Info("Private challenge replaced",
			"user_id", challengerID,
			"previous_target", prev.Target,
			"target", targetID)
	}
	c.rooms.Join(challengerID, sub)
	return nil
}

// AcceptPrivateChallenge starts the game challengerID offered to
// accepterID. It fails with ErrNoChallenge when no such challenge is
// pending. The challenge is taken off the map while the game record is
// written and put back if that fails.
func (c *Channel) AcceptPrivateChallenge(ctx context.Context, sub hub.Subscriber, accepterID, challengerID string) error {
	c.mu.Lock()
	ch, ok := c.challenges.Get(challengerID)
	if !ok || ch.Target != accepterID || accepterID == "" {
		c.mu.Unlock()
		return c.fail(sub, fmt.Errorf("accept challenge from %q: %w", challengerID, ErrNoChallenge))
	}
	c.challenges.Remove(challengerID)
	c.mu.Unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()
	var s *game.Session
	users, err := c.resolveUsers(lookupCtx, challengerID, accepterID)
	if err == nil {
		s, err = c.newSession(ctx, users)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = c.activate(s)
	}
	if err != nil {
		_, pending := c.challenges.Get(challengerID)
		if !pending && c.rooms.Size(challengerID) > 0 {
			c.challenges.Put(ch.Challenger, ch.Target, ch.CreatedAt)
		}
		return c.fail(sub, err)
	}
	c.queue.Remove(challengerID)
	c.queue.Remove(accepterID)

	c.rooms.Join(s.ID, sub)
	c.rooms.Merge(s.ID, challengerID)
	c.log.Info("Private match created", "game_id", s.ID, "user_ids", s.UserIDs)
	c.broadcast(s, FrameJoinedGame)
	return nil
}

// JoinRoom subscribes sub to the session room, initializes the board on
// first join and broadcasts the current state. Unknown ids are ignored.
func (c *Channel) JoinRoom(sub hub.Subscriber, gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions.Get(gameID)
	if !ok {
		return
	}
	c.rooms.Join(gameID, sub)
	if !s.Started() {
		c.engine.Init(s, c.rng)
		c.log.Debug("Board initialized", "game_id", gameID, "turn", s.Turn)
	}
	c.broadcast(s, FrameGameUpdate)
}

// Move applies a move. Illegal moves and unknown sessions are ignored
// without a reply.
func (c *Channel) Move(gameID, userID string, mv game.Move) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions.Get(gameID)
	if !ok {
		return
	}
	out := c.engine.ApplyMove(s, userID, mv)
	if !out.Applied {
		return
	}
	if out.Ended {
		now := c.now()
		s.CompletedAt = &now
		c.log.Info("Game complete", "game_id", gameID, "winner", out.Winner)
		c.recordCompletion(s)
	}
	c.broadcast(s, FrameGameUpdate)
}

// ChooseColor changes a participant's display color on engines that
// support it.
func (c *Channel) ChooseColor(gameID, userID, color string) {
	picker, ok := c.engine.(game.ColorPicker)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions.Get(gameID)
	if !ok {
		return
	}
	if picker.ChooseColor(s, userID, color) {
		c.broadcast(s, FrameGameUpdate)
	}
}

// Disconnect removes sub from all rooms. Each room it was in is treated as
// a user id: once nobody else listens on that personal room the user stops
// waiting in the queue and their challenge is withdrawn. Live sessions are
// left untouched.
func (c *Channel) Disconnect(sub hub.Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, room := range c.rooms.LeaveAll(sub) {
		if c.rooms.Size(room) > 0 {
			continue
		}
		dequeued := c.queue.Remove(room)
		withdrawn := c.challenges.Remove(room)
		if dequeued || withdrawn {
			c.log.Debug("Waiting user left", "user_id", room, "dequeued", dequeued, "withdrawn", withdrawn)
		}
	}
}

// PendingChallengesFor lists challenges waiting on userID.
func (c *Channel) PendingChallengesFor(userID string) []matchmaking.Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenges.TargetedAt(userID)
}

// Session returns the JSON snapshot of a session.
func (c *Channel) Session(gameID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions.Get(gameID)
	if !ok {
		return nil, false
	}
	data, err := s.Snapshot()
	if err != nil {
		c.log.Error("Failed to snapshot session", "game_id", gameID, "error", err)
		return nil, false
	}
	return data, true
}

// Sweep drops sessions that completed more than retention ago and returns
// how many were removed.
func (c *Channel) Sweep(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.sessions.RemoveCompletedBefore(c.now().Add(-retention))
	for _, id := range removed {
		c.rooms.DropRoom(id)
	}
	return len(removed)
}

// Stats reports the current occupancy.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Channel:    c.Name(),
		Waiting:    c.queue.Len(),
		Challenges: c.challenges.Len(),
		Sessions:   c.sessions.Len(),
	}
}

// Wait blocks until background persistence and publishing finish.
func (c *Channel) Wait() {
	c.background.Wait()
}

func (c *Channel) enqueue(sub hub.Subscriber, userID string) {
	if c.queue.Add(userID) {
		c.log.Debug("User waiting for random match", "user_id", userID)
	}
	c.rooms.Join(userID, sub)
}

func (c *Channel) reserve(userIDs ...string) {
	for _, id := range userIDs {
		c.reserved[id] = true
	}
}

func (c *Channel) release(userIDs ...string) {
	for _, id := range userIDs {
		delete(c.reserved, id)
	}
}

// newSession writes the durable record for a pairing and returns the
// session to activate. It runs without the channel lock.
func (c *Channel) newSession(ctx context.Context, users []*domain.User) (*game.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.persistTimeout)
	defer cancel()

	gameTypeID, err := c.resolveGameType(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(users))
	names := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
		names[i] = u.DisplayName()
	}

	s := game.NewSession(c.newID(), gameTypeID, ids, names, c.now())
	record := &domain.Game{
		ID:         s.ID,
		GameTypeID: gameTypeID,
		UserIDs:    s.UserIDs,
		Usernames:  s.Usernames,
		CreatedAt:  s.CreatedAt,
	}
	if err := c.repo.CreateGame(ctx, record); err != nil {
		return nil, fmt.Errorf("create game record: %w", err)
	}
	return s, nil
}

// activate stores a recorded session. The caller holds the lock.
func (c *Channel) activate(s *game.Session) error {
	if err := c.sessions.Insert(s); err != nil {
		return err
	}
	c.publish(events.Event{
		Kind:       events.GameCreated,
		Channel:    c.Name(),
		GameID:     s.ID,
		GameTypeID: s.GameTypeID,
		UserIDs:    s.UserIDs,
		At:         s.CreatedAt,
	})
	return nil
}

func (c *Channel) resolveUsers(ctx context.Context, userIDs ...string) ([]*domain.User, error) {
	users := make([]*domain.User, len(userIDs))
	for i, id := range userIDs {
		user, err := c.resolveUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users[i] = user
	}
	return users, nil
}

func (c *Channel) resolveUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := c.repo.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	return user, nil
}

func (c *Channel) resolveGameType(ctx context.Context) (string, error) {
	c.typeMu.Lock()
	defer c.typeMu.Unlock()
	if c.gameTypeID != "" {
		return c.gameTypeID, nil
	}
	gt, err := c.repo.GetGameType(ctx, c.Name())
	if err != nil {
		return "", fmt.Errorf("resolve game type %s: %w", c.Name(), err)
	}
	c.gameTypeID = gt.ID
	return gt.ID, nil
}

// recordCompletion mirrors the outcome to the store and the broker without
// holding up the broadcast.
func (c *Channel) recordCompletion(s *game.Session) {
	gameID, winner := s.ID, s.Winner

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()
		if err := c.repo.CompleteGame(ctx, gameID, winner); err != nil {
			c.log.Warn("Failed to record game completion", "game_id", gameID, "error", err)
		}
	}()

	c.publish(events.Event{
		Kind:       events.GameCompleted,
		Channel:    c.Name(),
		GameID:     gameID,
		GameTypeID: s.GameTypeID,
		UserIDs:    s.UserIDs,
		Winner:     winner,
		At:         *s.CompletedAt,
	})
}

func (c *Channel) publish(e events.Event) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()
		if err := c.pub.Publish(ctx, e); err != nil {
			c.log.Warn("Failed to publish game event", "game_id", e.GameID, "kind", e.Kind, "error", err)
		}
	}()
}

// broadcast serializes s once and fans the frame out to its room. Sends
// never block, so the frame order seen by each subscriber follows the
// order handlers ran in.
func (c *Channel) broadcast(s *game.Session, frameType string) {
	data, err := s.Snapshot()
	if err != nil {
		c.log.Error("Failed to snapshot session", "game_id", s.ID, "error", err)
		return
	}
	c.rooms.Broadcast(s.ID, EncodeFrame(Frame{Type: frameType, Game: data}))
}

// fail sends err to sub alone and returns it.
func (c *Channel) fail(sub hub.Subscriber, err error) error {
	c.log.Info("Request rejected", "subscriber", sub.ID(), "error", err)
	sub.Send(ErrorFrame(err))
	return err
}
