package blocks

import "strings"

// Board dimensions and preview depth.
const (
	BoardWidth   = 10
	BoardHeight  = 20
	PreviewCount = 3
)

// Board is one player's playfield. Locked cells hold their piece's color;
// zero is empty. Gravity is advanced by wall-clock deltas so the drop rate
// is independent of the caller's tick cadence.
type Board struct {
	grid    [BoardHeight][BoardWidth]int
	gen     *Generator
	active  *Piece
	preview []PieceType

	// gravityTime is seconds per one-row descent.
	gravityTime float64
	gravityAcc  float64

	// recentClears holds the cell count of each row cleared since the last
	// TakeClears call, in clearing order.
	recentClears []int
}

// NewBoard creates a board fed by a generator seeded with seed.
func NewBoard(seed int64, gravityTime float64) *Board {
	if gravityTime <= 0 {
		gravityTime = 1.0
	}
	b := &Board{
		gen:         NewGenerator(seed),
		gravityTime: gravityTime,
	}
	for i := 0; i < PreviewCount; i++ {
		b.preview = append(b.preview, b.gen.Next())
	}
	b.spawn()
	return b
}

// spawn promotes the head of the preview queue to the active piece. A spawn
// that collides with locked cells wipes the field; the match continues on
// an empty board.
func (b *Board) spawn() {
	b.active = newPiece(b.preview[0])
	b.preview = append(b.preview[1:], b.gen.Next())
	if b.collides(b.active.Cells, b.active.Pos) {
		b.grid = [BoardHeight][BoardWidth]int{}
	}
}

func (b *Board) collides(cells []Cell, pos Cell) bool {
	for _, c := range absolute(cells, pos) {
		if c.X < 0 || c.X >= BoardWidth || c.Y < 0 || c.Y >= BoardHeight {
			return true
		}
		if b.grid[c.Y][c.X] != 0 {
			return true
		}
	}
	return false
}

// CanMove reports whether the active piece fits after shifting by (dx, dy).
func (b *Board) CanMove(dx, dy int) bool {
	return !b.collides(b.active.Cells, Cell{X: b.active.Pos.X + dx, Y: b.active.Pos.Y + dy})
}

// Move shifts the active piece if the target cells are free.
func (b *Board) Move(dx, dy int) bool {
	if !b.CanMove(dx, dy) {
		return false
	}
	b.active.Pos.X += dx
	b.active.Pos.Y += dy
	return true
}

// TryRotate turns the active piece a quarter clockwise if the rotated cells
// fit in place.
func (b *Board) TryRotate() bool {
	cells := b.active.rotated()
	if b.collides(cells, b.active.Pos) {
		return false
	}
	b.active.Cells = cells
	return true
}

// SoftDrop lowers the active piece one row, locking it when it cannot fall.
func (b *Board) SoftDrop() {
	if !b.Move(0, 1) {
		b.lock()
	}
}

// HardDrop sends the active piece straight to the floor and locks it.
func (b *Board) HardDrop() {
	for b.Move(0, 1) {
	}
	b.lock()
}

// SetColor recolors the active piece. Purely cosmetic; the grid records
// whatever color the piece carries when it locks.
func (b *Board) SetColor(color int) {
	if color > 0 {
		b.active.Color = color
	}
}

// Advance applies gravity for delta seconds, locking and respawning as
// pieces land.
func (b *Board) Advance(delta float64) {
	b.gravityAcc += delta
	for b.gravityAcc >= b.gravityTime {
		b.gravityAcc -= b.gravityTime
		b.SoftDrop()
	}
}

func (b *Board) lock() {
	for _, c := range absolute(b.active.Cells, b.active.Pos) {
		b.grid[c.Y][c.X] = b.active.Color
	}
	b.clearFullRows()
	b.spawn()
}

func (b *Board) clearFullRows() {
	for y := 0; y < BoardHeight; y++ {
		full := true
		for x := 0; x < BoardWidth; x++ {
			if b.grid[y][x] == 0 {
				full = false
				break
			}
		}
		if !full {
			continue
		}
		b.recentClears = append(b.recentClears, BoardWidth)
		copy(b.grid[1:y+1], b.grid[0:y])
		b.grid[0] = [BoardWidth]int{}
	}
}

// TakeClears returns the per-row cell counts cleared since the previous
// call and resets the record.
func (b *Board) TakeClears() []int {
	out := b.recentClears
	b.recentClears = nil
	return out
}

// Active returns the falling piece.
func (b *Board) Active() *Piece {
	return b.active
}

// Preview returns the upcoming piece types, nearest first.
func (b *Board) Preview() []PieceType {
	out := make([]PieceType, len(b.preview))
	copy(out, b.preview)
	return out
}

// String renders the locked grid as rows of digits, top row first.
func (b *Board) String() string {
	var sb strings.Builder
	for y := 0; y < BoardHeight; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < BoardWidth; x++ {
			sb.WriteByte(byte('0' + b.grid[y][x]%10))
		}
	}
	return sb.String()
}
