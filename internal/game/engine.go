// Package game holds the rule engines for the two-player games and the
// in-memory session state they operate on.
//
// Nothing in this package is safe for concurrent use. Callers serialize
// access per channel.
package game

// Rand is the random source used for coin flips at initialization.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Move addresses one cell (Tic-Tac-Toe) or one line segment
// (Dots-and-Boxes). Horizontal is ignored by Tic-Tac-Toe.
type Move struct {
	Row        int  `json:"row"`
	Col        int  `json:"col"`
	Horizontal bool `json:"horizontal"`
}

// Outcome reports what ApplyMove did. When Applied is false nothing in
// the session changed.
type Outcome struct {
	Applied bool
	// Scored is true when the move completed a unit: a box, or three in a row.
	Scored bool
	Ended  bool
	Winner string
}

// Result is the terminal state of a session. Ended with an empty Winner
// is a tie.
type Result struct {
	Ended  bool
	Winner string
}

// Engine is the rule set for one game type.
type Engine interface {
	// Name is the channel name the engine serves.
	Name() string

	// Init creates the board on first room join. It is a no-op when the
	// session already has a board.
	Init(s *Session, rng Rand)

	// ApplyMove validates and applies a move by userID. Illegal moves
	// return an Outcome with Applied false and leave s untouched.
	ApplyMove(s *Session, userID string, mv Move) Outcome

	// Terminal inspects the board without modifying it.
	Terminal(s *Session) Result
}

// ColorPicker is implemented by engines that let participants choose a
// display color.
type ColorPicker interface {
	ChooseColor(s *Session, userID, color string) bool
}

func flipCoin(rng Rand) bool {
	return rng.Intn(2) == 0
}

func finish(s *Session, r Result) {
	s.Complete = true
	s.Winner = r.Winner
}

// movable reports whether userID may currently act on s at all.
func movable(s *Session, userID string) bool {
	return !s.Complete && s.Board != nil && s.Seat(userID) >= 0
}
