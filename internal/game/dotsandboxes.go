package game

import (
	"regexp"
	"strings"
)

// Default grid size in boxes.
const (
	DefaultDotsRows = 4
	DefaultDotsCols = 6
)

// Palette lists the named colors a Dots-and-Boxes player may pick.
var Palette = []string{"red", "green", "blue", "yellow", "purple", "orange", "cyan"}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DotsAndBoxesBoard is the board state of a Dots-and-Boxes session.
// HorizontalLines is (rows+1) x cols and VerticalLines is rows x (cols+1).
type DotsAndBoxesBoard struct {
	Rows            int        `json:"rows"`
	Cols            int        `json:"cols"`
	Boxes           [][]string `json:"boxes"`
	HorizontalLines [][]bool   `json:"horizontalLines"`
	VerticalLines   [][]bool   `json:"verticalLines"`
	Colors          [2]string  `json:"colors"`
	FirstPlayer     string     `json:"firstPlayer"`
}

// DotsAndBoxes implements Engine and ColorPicker.
type DotsAndBoxes struct {
	rows, cols int
}

// NewDotsAndBoxes returns an engine for a rows x cols box grid. Non
// positive sizes fall back to the default 4x6 grid.
func NewDotsAndBoxes(rows, cols int) *DotsAndBoxes {
	if rows <= 0 {
		rows = DefaultDotsRows
	}
	if cols <= 0 {
		cols = DefaultDotsCols
	}
	return &DotsAndBoxes{rows: rows, cols: cols}
}

func (*DotsAndBoxes) Name() string { return "dots-and-boxes" }

func (e *DotsAndBoxes) Init(s *Session, rng Rand) {
	if s.Board != nil || len(s.UserIDs) != 2 {
		return
	}
	b := &DotsAndBoxesBoard{
		Rows:            e.rows,
		Cols:            e.cols,
		Boxes:           make([][]string, e.rows),
		HorizontalLines: make([][]bool, e.rows+1),
		VerticalLines:   make([][]bool, e.rows),
	}
	for i := range b.Boxes {
		b.Boxes[i] = make([]string, e.cols)
		b.VerticalLines[i] = make([]bool, e.cols+1)
	}
	for i := range b.HorizontalLines {
		b.HorizontalLines[i] = make([]bool, e.cols)
	}

	b.FirstPlayer = s.UserIDs[1]
	if flipCoin(rng) {
		b.FirstPlayer = s.UserIDs[0]
	}

	first := rng.Intn(len(Palette))
	second := rng.Intn(len(Palette) - 1)
	if second >= first {
		second++
	}
	b.Colors = [2]string{Palette[first], Palette[second]}

	s.Board = b
	s.Turn = b.FirstPlayer
}

func (e *DotsAndBoxes) ApplyMove(s *Session, userID string, mv Move) Outcome {
	if !movable(s, userID) || s.Turn != userID {
		return Outcome{}
	}
	b, ok := s.Board.(*DotsAndBoxesBoard)
	if !ok || !b.open(mv) {
		return Outcome{}
	}

	completed := b.place(mv, userID)
	res := e.Terminal(s)
	if res.Ended {
		finish(s, res)
		return Outcome{Applied: true, Scored: completed > 0, Ended: true, Winner: res.Winner}
	}
	if completed == 0 {
		s.Turn = s.Opponent(userID)
	}
	return Outcome{Applied: true, Scored: completed > 0}
}

func (*DotsAndBoxes) Terminal(s *Session) Result {
	b, ok := s.Board.(*DotsAndBoxesBoard)
	if !ok || len(s.UserIDs) != 2 {
		return Result{}
	}
	counts := make(map[string]int, 2)
	for _, row := range b.Boxes {
		for _, owner := range row {
			if owner == "" {
				return Result{}
			}
			counts[owner]++
		}
	}
	first, second := counts[s.UserIDs[0]], counts[s.UserIDs[1]]
	switch {
	case first > second:
		return Result{Ended: true, Winner: s.UserIDs[0]}
	case second > first:
		return Result{Ended: true, Winner: s.UserIDs[1]}
	default:
		return Result{Ended: true}
	}
}

// ChooseColor sets the display color of userID. Colors are compared
// case-insensitively and may not match the opponent's.
func (*DotsAndBoxes) ChooseColor(s *Session, userID, color string) bool {
	b, ok := s.Board.(*DotsAndBoxesBoard)
	seat := s.Seat(userID)
	if !ok || seat < 0 || !ValidColor(color) {
		return false
	}
	if strings.EqualFold(color, b.Colors[1-seat]) {
		return false
	}
	if !hexColor.MatchString(color) {
		color = strings.ToLower(color)
	}
	b.Colors[seat] = color
	return true
}

// ValidColor reports whether color is a palette name or a #rrggbb value.
func ValidColor(color string) bool {
	if hexColor.MatchString(color) {
		return true
	}
	for _, c := range Palette {
		if strings.EqualFold(c, color) {
			return true
		}
	}
	return false
}

// open reports whether mv addresses an existing, still empty segment.
func (b *DotsAndBoxesBoard) open(mv Move) bool {
	if mv.Row < 0 || mv.Col < 0 {
		return false
	}
	if mv.Horizontal {
		return mv.Row <= b.Rows && mv.Col < b.Cols && !b.HorizontalLines[mv.Row][mv.Col]
	}
	return mv.Row < b.Rows && mv.Col <= b.Cols && !b.VerticalLines[mv.Row][mv.Col]
}

// place draws the segment and claims every box it closes, returning how
// many were closed.
func (b *DotsAndBoxesBoard) place(mv Move, userID string) int {
	r, c := mv.Row, mv.Col
	var candidates [][2]int
	if mv.Horizontal {
		b.HorizontalLines[r][c] = true
		candidates = [][2]int{{r - 1, c}, {r, c}}
	} else {
		b.VerticalLines[r][c] = true
		candidates = [][2]int{{r, c - 1}, {r, c}}
	}

	completed := 0
	for _, box := range candidates {
		br, bc := box[0], box[1]
		if br < 0 || br >= b.Rows || bc < 0 || bc >= b.Cols || b.Boxes[br][bc] != "" {
			continue
		}
		if b.closed(br, bc) {
			b.Boxes[br][bc] = userID
			completed++
		}
	}
	return completed
}

func (b *DotsAndBoxesBoard) closed(r, c int) bool {
	return b.HorizontalLines[r][c] && b.HorizontalLines[r+1][c] &&
		b.VerticalLines[r][c] && b.VerticalLines[r][c+1]
}
