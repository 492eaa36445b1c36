package main

import (
	"encoding/json"
	"fmt"

	"github.com/gamesite/arcade/internal/game"
)

// snapshot is the subset of a session broadcast the bot reads. The board
// is decoded per game type.
type snapshot struct {
	ID       string          `json:"id"`
	UserIDs  []string        `json:"userIds"`
	Turn     string          `json:"turn"`
	Complete bool            `json:"complete"`
	Winner   string          `json:"winner"`
	Board    json.RawMessage `json:"board"`
}

func (s *snapshot) started() bool {
	return len(s.Board) > 0 && string(s.Board) != "null"
}

// legalMoves lists every move the current board accepts.
func legalMoves(gameType string, raw json.RawMessage) ([]game.Move, error) {
	switch gameType {
	case "tic-tac-toe":
		var b game.TicTacToeBoard
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode tic-tac-toe board: %w", err)
		}
		var moves []game.Move
		for r, row := range b.Squares {
			for c, cell := range row {
				if cell == "" {
					moves = append(moves, game.Move{Row: r, Col: c})
				}
			}
		}
		return moves, nil

	case "dots-and-boxes":
		var b game.DotsAndBoxesBoard
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode dots-and-boxes board: %w", err)
		}
		var moves []game.Move
		for r, row := range b.HorizontalLines {
			for c, drawn := range row {
				if !drawn {
					moves = append(moves, game.Move{Row: r, Col: c, Horizontal: true})
				}
			}
		}
		for r, row := range b.VerticalLines {
			for c, drawn := range row {
				if !drawn {
					moves = append(moves, game.Move{Row: r, Col: c})
				}
			}
		}
		return moves, nil

	default:
		return nil, fmt.Errorf("unsupported game type %q", gameType)
	}
}
