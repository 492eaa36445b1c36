package domain

// GameType describes one kind of game offered by the site.
type GameType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Channel     string `json:"channel"`
	Description string `json:"description"`
	NumPlayers  int    `json:"num_players"`
}

// IsMultiplayer reports whether the type is played through a live channel.
func (g *GameType) IsMultiplayer() bool {
	return g.NumPlayers > 1
}

// DefaultGameTypes is the catalog seeded into an empty store.
var DefaultGameTypes = []GameType{
	{
		ID:          "tic-tac-toe",
		Name:        "Tic-Tac-Toe",
		Channel:     "tic-tac-toe",
		Description: "Get three in a row before your opponent does.",
		NumPlayers:  2,
	},
	{
		ID:          "dots-and-boxes",
		Name:        "Dots and Boxes",
		Channel:     "dots-and-boxes",
		Description: "Close more boxes than your opponent. Completing a box earns another turn.",
		NumPlayers:  2,
	},
	{
		ID:          "tetris",
		Name:        "Tetris",
		Channel:     "tetris",
		Description: "Clear lines for as long as you can.",
		NumPlayers:  1,
	},
}
