package domain

import "math"

const (
	BoardWidth  = 10
	BoardHeight = 20
	// DangerRows is the number of rows at the top of the grid that end the
	// game for a player once any locked cell reaches them.
	DangerRows = 2
)

const (
	Empty       = 0
	GarbageCell = 8
)

// Grid holds locked cells only; the falling piece is never stored here.
type Grid [BoardHeight][BoardWidth]int

// Spectrum is the per-column stack height of a grid.
type Spectrum [BoardWidth]int

// Rand is the subset of math/rand/v2 used for garbage gaps.
type Rand interface {
	IntN(n int) int
}

func inBounds(c Cell) bool {
	return c.X >= 0 && c.X < BoardWidth && c.Y >= 0 && c.Y < BoardHeight
}

// IsValidPosition reports whether every block of shape placed at pos is inside
// the grid and over an empty cell.
func IsValidPosition(g *Grid, shape []Cell, pos Cell) bool {
	for _, b := range shape {
		c := Cell{X: b.X + pos.X, Y: b.Y + pos.Y}
		if !inBounds(c) || g[c.Y][c.X] != Empty {
			return false
		}
	}
	return true
}

// Fits is IsValidPosition for a whole piece.
func Fits(g *Grid, p Piece) bool {
	return IsValidPosition(g, p.Blocks, p.Pos)
}

// roundHalfUp matches the rounding the clients use for the rotation center.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Rotate turns p a quarter around its center. There are no wall kicks: when the
// rotated piece does not fit, p is returned unchanged with false. O never turns.
func Rotate(g *Grid, p Piece, clockwise bool) (Piece, bool) {
	def, ok := shapes[p.Kind]
	if !ok || !def.rotateable {
		return p, false
	}
	blocks := make([]Cell, len(p.Blocks))
	for i, b := range p.Blocks {
		dx := float64(b.X) - def.cx
		dy := float64(b.Y) - def.cy
		if clockwise {
			blocks[i] = Cell{X: roundHalfUp(def.cx - dy), Y: roundHalfUp(def.cy + dx)}
		} else {
			blocks[i] = Cell{X: roundHalfUp(def.cx + dy), Y: roundHalfUp(def.cy - dx)}
		}
	}
	if !IsValidPosition(g, blocks, p.Pos) {
		return p, false
	}
	rotated := p
	rotated.Blocks = blocks
	if clockwise {
		rotated.Rotation = (p.Rotation + 90) % 360
	} else {
		rotated.Rotation = (p.Rotation + 270) % 360
	}
	return rotated, true
}

// LockAndClear stamps p into g, removes every full row compacting the rest
// downward and returns the number of rows removed.
func LockAndClear(g *Grid, p Piece) int {
	for _, c := range p.Cells() {
		if inBounds(c) {
			g[c.Y][c.X] = int(p.Kind)
		}
	}
	return ClearLines(g)
}

// ClearLines removes full rows and refills the top with empty rows.
func ClearLines(g *Grid) int {
	var out Grid
	dst := BoardHeight - 1
	cleared := 0
	for y := BoardHeight - 1; y >= 0; y-- {
		if rowFull(g[y]) {
			cleared++
			continue
		}
		out[dst] = g[y]
		dst--
	}
	*g = out
	return cleared
}

func rowFull(row [BoardWidth]int) bool {
	for _, v := range row {
		if v == Empty {
			return false
		}
	}
	return true
}

// ComputeSpectrum returns, per column, the height of the stack measured from
// the floor (BoardHeight minus the first occupied row, 0 for an empty column).
func ComputeSpectrum(g *Grid) Spectrum {
	var s Spectrum
	for x := 0; x < BoardWidth; x++ {
		for y := 0; y < BoardHeight; y++ {
			if g[y][x] != Empty {
				s[x] = BoardHeight - y
				break
			}
		}
	}
	return s
}

// AddGarbage drops the top n rows and appends n garbage rows at the bottom,
// each with exactly one empty cell at a random column.
func AddGarbage(g *Grid, n int, rng Rand) {
	if n <= 0 {
		return
	}
	if n > BoardHeight {
		n = BoardHeight
	}
	var out Grid
	copy(out[:BoardHeight-n], g[n:])
	for y := BoardHeight - n; y < BoardHeight; y++ {
		for x := range out[y] {
			out[y][x] = GarbageCell
		}
		out[y][rng.IntN(BoardWidth)] = Empty
	}
	*g = out
}

// ToppedOut reports whether any locked cell reached the danger rows.
func ToppedOut(g *Grid) bool {
	for y := 0; y < DangerRows; y++ {
		for _, v := range g[y] {
			if v != Empty {
				return true
			}
		}
	}
	return false
}

// Occupied counts the non-empty cells of g.
func (g Grid) Occupied() int {
	n := 0
	for y := range g {
		for _, v := range g[y] {
			if v != Empty {
				n++
			}
		}
	}
	return n
}
