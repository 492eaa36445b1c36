package game

const (
	MarkerX = "X"
	MarkerO = "O"
)

// TicTacToeBoard is the board state of a Tic-Tac-Toe session.
type TicTacToeBoard struct {
	Squares    [3][3]string `json:"squares"`
	XPlayer    string       `json:"xPlayer"`
	TurnMarker string       `json:"turnMarker"`
}

// TicTacToe implements Engine for a 3x3 board with strict alternation.
type TicTacToe struct{}

// NewTicTacToe returns the Tic-Tac-Toe engine.
func NewTicTacToe() *TicTacToe {
	return &TicTacToe{}
}

func (*TicTacToe) Name() string { return "tic-tac-toe" }

func (*TicTacToe) Init(s *Session, rng Rand) {
	if s.Board != nil || len(s.UserIDs) != 2 {
		return
	}
	xPlayer := s.UserIDs[1]
	if flipCoin(rng) {
		xPlayer = s.UserIDs[0]
	}
	s.Board = &TicTacToeBoard{XPlayer: xPlayer, TurnMarker: MarkerX}
	s.Turn = xPlayer
}

func (e *TicTacToe) ApplyMove(s *Session, userID string, mv Move) Outcome {
	if !movable(s, userID) {
		return Outcome{}
	}
	b, ok := s.Board.(*TicTacToeBoard)
	if !ok {
		return Outcome{}
	}
	marker := b.markerOf(userID)
	if marker != b.TurnMarker {
		return Outcome{}
	}
	if mv.Row < 0 || mv.Row > 2 || mv.Col < 0 || mv.Col > 2 || b.Squares[mv.Row][mv.Col] != "" {
		return Outcome{}
	}

	b.Squares[mv.Row][mv.Col] = marker
	res := e.Terminal(s)
	if res.Ended {
		finish(s, res)
		return Outcome{Applied: true, Scored: res.Winner != "", Ended: true, Winner: res.Winner}
	}

	if b.TurnMarker == MarkerX {
		b.TurnMarker = MarkerO
	} else {
		b.TurnMarker = MarkerX
	}
	s.Turn = b.ownerOf(s, b.TurnMarker)
	return Outcome{Applied: true}
}

func (*TicTacToe) Terminal(s *Session) Result {
	b, ok := s.Board.(*TicTacToeBoard)
	if !ok {
		return Result{}
	}
	if m := b.winningMarker(); m != "" {
		return Result{Ended: true, Winner: b.ownerOf(s, m)}
	}
	for _, row := range b.Squares {
		for _, sq := range row {
			if sq == "" {
				return Result{}
			}
		}
	}
	return Result{Ended: true}
}

func (b *TicTacToeBoard) markerOf(userID string) string {
	if userID == b.XPlayer {
		return MarkerX
	}
	return MarkerO
}

func (b *TicTacToeBoard) ownerOf(s *Session, marker string) string {
	if marker == MarkerX {
		return b.XPlayer
	}
	return s.Opponent(b.XPlayer)
}

var ticTacToeLines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{2, 0}, {1, 1}, {0, 2}},
}

func (b *TicTacToeBoard) winningMarker() string {
	for _, line := range ticTacToeLines {
		first := b.Squares[line[0][0]][line[0][1]]
		if first == "" {
			continue
		}
		if b.Squares[line[1][0]][line[1][1]] == first && b.Squares[line[2][0]][line[2][1]] == first {
			return first
		}
	}
	return ""
}
