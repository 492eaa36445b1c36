package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateSession is returned when a session id is inserted twice.
var ErrDuplicateSession = errors.New("session already exists")

// Session is one two-player game, live or complete. The whole struct is
// sent to clients on every change.
type Session struct {
	ID          string     `json:"id"`
	GameTypeID  string     `json:"gameTypeId"`
	UserIDs     []string   `json:"userIds"`
	Usernames   []string   `json:"usernames"`
	Complete    bool       `json:"complete"`
	Winner      string     `json:"winner,omitempty"`
	Turn        string     `json:"turn,omitempty"`
	Board       any        `json:"board"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewSession builds an unstarted session. The participant order is kept
// as given.
func NewSession(id, gameTypeID string, userIDs, usernames []string, now time.Time) *Session {
	return &Session{
		ID:         id,
		GameTypeID: gameTypeID,
		UserIDs:    append([]string(nil), userIDs...),
		Usernames:  append([]string(nil), usernames...),
		CreatedAt:  now,
	}
}

// Started reports whether the board has been initialized.
func (s *Session) Started() bool {
	return s.Board != nil
}

// Seat returns the participant index of userID, or -1.
func (s *Session) Seat(userID string) int {
	for i, id := range s.UserIDs {
		if id == userID {
			return i
		}
	}
	return -1
}

// Opponent returns the other participant, or "" when userID is not seated.
func (s *Session) Opponent(userID string) string {
	seat := s.Seat(userID)
	if seat < 0 || len(s.UserIDs) != 2 {
		return ""
	}
	return s.UserIDs[1-seat]
}

// Snapshot serializes the session as it is right now.
func (s *Session) Snapshot() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	return data, nil
}

// Store is the per-channel map of sessions.
type Store struct {
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Insert adds a session. Ids are never reused.
func (st *Store) Insert(s *Session) error {
	if _, exists := st.sessions[s.ID]; exists {
		return fmt.Errorf("insert %s: %w", s.ID, ErrDuplicateSession)
	}
	st.sessions[s.ID] = s
	return nil
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

// Remove deletes a session.
func (st *Store) Remove(id string) {
	delete(st.sessions, id)
}

// Len returns the number of sessions held.
func (st *Store) Len() int {
	return len(st.sessions)
}

// RemoveCompletedBefore drops complete sessions that finished before
// cutoff and returns their ids. Live sessions are never removed.
func (st *Store) RemoveCompletedBefore(cutoff time.Time) []string {
	var removed []string
	for id, s := range st.sessions {
		if s.Complete && s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(st.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}
