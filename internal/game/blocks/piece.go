// Package blocks implements the falling-block rules consumed by the match
// coordinator: a seeded piece stream, per-player boards, scoring, and
// cross-player damage. Both players' boards are built from the same seed,
// which is what makes the piece sequence fair.
package blocks

import "math/rand"

// Cell is a board coordinate. X grows rightwards, Y grows downwards.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PieceType names one of the seven tetromino shapes.
type PieceType string

const (
	PieceI PieceType = "I"
	PieceO PieceType = "O"
	PieceT PieceType = "T"
	PieceS PieceType = "S"
	PieceZ PieceType = "Z"
	PieceJ PieceType = "J"
	PieceL PieceType = "L"
)

var pieceTypes = []PieceType{PieceI, PieceO, PieceT, PieceS, PieceZ, PieceJ, PieceL}

// Base cell offsets within a local grid. I and O rotate in a 4x4 box, the
// rest in a 3x3 box.
var pieceCells = map[PieceType][]Cell{
	PieceI: {{0, 1}, {1, 1}, {2, 1}, {3, 1}},
	PieceO: {{1, 1}, {2, 1}, {1, 2}, {2, 2}},
	PieceT: {{1, 0}, {0, 1}, {1, 1}, {2, 1}},
	PieceS: {{1, 0}, {2, 0}, {0, 1}, {1, 1}},
	PieceZ: {{0, 0}, {1, 0}, {1, 1}, {2, 1}},
	PieceJ: {{0, 0}, {0, 1}, {1, 1}, {2, 1}},
	PieceL: {{2, 0}, {0, 1}, {1, 1}, {2, 1}},
}

var pieceColors = map[PieceType]int{
	PieceI: 1,
	PieceO: 2,
	PieceT: 3,
	PieceS: 4,
	PieceZ: 5,
	PieceJ: 6,
	PieceL: 7,
}

func boxSize(t PieceType) int {
	if t == PieceI || t == PieceO {
		return 4
	}
	return 3
}

// Piece is an active falling piece: its rotated local cells plus a board
// position.
type Piece struct {
	Type  PieceType
	Cells []Cell
	Pos   Cell
	Color int
}

func newPiece(t PieceType) *Piece {
	cells := make([]Cell, len(pieceCells[t]))
	copy(cells, pieceCells[t])
	return &Piece{
		Type:  t,
		Cells: cells,
		Pos:   Cell{X: (BoardWidth - boxSize(t)) / 2, Y: 0},
		Color: pieceColors[t],
	}
}

// rotated returns the piece's cells turned a quarter clockwise within its
// local box. The O piece is rotation-invariant.
func (p *Piece) rotated() []Cell {
	if p.Type == PieceO {
		return p.Cells
	}
	n := boxSize(p.Type)
	out := make([]Cell, len(p.Cells))
	for i, c := range p.Cells {
		out[i] = Cell{X: n - 1 - c.Y, Y: c.X}
	}
	return out
}

// absolute returns the board coordinates of cells placed at pos.
func absolute(cells []Cell, pos Cell) []Cell {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		out[i] = Cell{X: pos.X + c.X, Y: pos.Y + c.Y}
	}
	return out
}

// Generator produces an unbounded piece stream from a seed. Equal seeds
// yield equal streams.
type Generator struct {
	rng *rand.Rand
}

// RandomModeUniform labels the only distribution currently implemented:
// each draw is uniform over the seven types.
const RandomModeUniform = "random-uniform"

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Next draws the next piece type.
func (g *Generator) Next() PieceType {
	return pieceTypes[g.rng.Intn(len(pieceTypes))]
}
