package blocks

import (
	"github.com/blockduel/backend/internal/protocol"
)

// DefaultGoalScore is the score that ends a match when no override is
// configured.
const DefaultGoalScore = 300

// Roles used for the two match slots.
const (
	RolePlayer1 = "player1"
	RolePlayer2 = "player2"
)

// Match is the authoritative state of one two-player game: a board and a
// player per side, fed from an identical seed. Match is not goroutine-safe;
// the coordinator owns it from a single loop.
type Match struct {
	seed      int64
	goalScore int

	boards  map[string]*Board
	players map[string]*Player

	over   bool
	winner string
}

// NewMatch builds both sides from the same seed so their piece sequences
// are identical.
func NewMatch(seed int64, goalScore int, gravityTime float64) *Match {
	if goalScore <= 0 {
		goalScore = DefaultGoalScore
	}
	return &Match{
		seed:      seed,
		goalScore: goalScore,
		boards: map[string]*Board{
			RolePlayer1: NewBoard(seed, gravityTime),
			RolePlayer2: NewBoard(seed, gravityTime),
		},
		players: map[string]*Player{
			RolePlayer1: NewPlayer(RolePlayer1),
			RolePlayer2: NewPlayer(RolePlayer2),
		},
	}
}

// Seed returns the shared piece-stream seed.
func (m *Match) Seed() int64 {
	return m.seed
}

// GoalScore returns the winning score.
func (m *Match) GoalScore() int {
	return m.goalScore
}

// HandleAction applies one player action to that player's board. Unknown
// actions are ignored.
func (m *Match) HandleAction(role, action string, data map[string]any) {
	board, ok := m.boards[role]
	if !ok || m.over {
		return
	}

	switch action {
	case protocol.ActionMoveLeft:
		board.Move(-1, 0)
	case protocol.ActionMoveRight:
		board.Move(1, 0)
	case protocol.ActionRotate:
		board.TryRotate()
	case protocol.ActionSoftDrop:
		board.SoftDrop()
	case protocol.ActionHardDrop:
		board.HardDrop()
	case protocol.ActionChangeColor:
		if color, ok := data[protocol.KeyColor].(float64); ok {
			board.SetColor(int(color))
		}
	}
}

// Update advances both boards by the wall-clock delta, settles the effects
// of any cleared rows, and checks the win condition. Downed players'
// boards stay frozen until they revive.
func (m *Match) Update(delta float64) {
	if m.over {
		return
	}

	for _, role := range []string{RolePlayer1, RolePlayer2} {
		if !m.players[role].Down() {
			m.boards[role].Advance(delta)
		}
	}

	p1, p2 := m.players[RolePlayer1], m.players[RolePlayer2]
	if cleared := m.boards[RolePlayer1].TakeClears(); len(cleared) > 0 {
		p1.ProcessClears(cleared, p2)
	}
	if cleared := m.boards[RolePlayer2].TakeClears(); len(cleared) > 0 {
		p2.ProcessClears(cleared, p1)
	}
	p1.Update(delta)
	p2.Update(delta)

	switch {
	case p1.Score >= m.goalScore:
		m.over = true
		m.winner = RolePlayer1
	case p2.Score >= m.goalScore:
		m.over = true
		m.winner = RolePlayer2
	}
}

// Over reports whether the match has ended and, if so, who won.
func (m *Match) Over() (bool, string) {
	return m.over, m.winner
}

// StartInfo describes one side's view at the readiness barrier.
type StartInfo struct {
	Health     int
	NowPiece   string
	NextPieces []string
}

// StartInfoFor returns the opening state for the given role.
func (m *Match) StartInfoFor(role string) StartInfo {
	board := m.boards[role]
	info := StartInfo{
		Health:   m.players[role].Health,
		NowPiece: string(board.Active().Type),
	}
	for _, t := range board.Preview() {
		info.NextPieces = append(info.NextPieces, string(t))
	}
	return info
}

// StateFor serializes one side's visible state for a tick broadcast.
func (m *Match) StateFor(role string) map[string]any {
	board := m.boards[role]
	player := m.players[role]
	active := board.Active()

	next := make([]string, 0, PreviewCount)
	for _, t := range board.Preview() {
		next = append(next, string(t))
	}
	cells := make([][2]int, len(active.Cells))
	for i, c := range active.Cells {
		cells[i] = [2]int{c.X, c.Y}
	}

	return map[string]any{
		"board":       board.String(),
		"now_piece":   cells,
		"color":       active.Color,
		"position":    [2]int{active.Pos.X, active.Pos.Y},
		"next_pieces": next,
		"score":       player.Score,
		"health":      player.Health,
		"revive_time": player.ReviveTime,
	}
}
