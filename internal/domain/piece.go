package domain

import (
	"encoding/json"
	"fmt"
)

// PieceKind identifies one of the seven tetrominoes. The numeric value doubles
// as the cell color stored in a Grid once the piece locks.
type PieceKind int

const (
	PieceI PieceKind = iota + 1
	PieceO
	PieceT
	PieceS
	PieceZ
	PieceJ
	PieceL
)

// PieceKinds lists every kind in color order.
var PieceKinds = [...]PieceKind{PieceI, PieceO, PieceT, PieceS, PieceZ, PieceJ, PieceL}

var pieceNames = map[PieceKind]string{
	PieceI: "I", PieceO: "O", PieceT: "T", PieceS: "S", PieceZ: "Z", PieceJ: "J", PieceL: "L",
}

func (k PieceKind) String() string {
	if n, ok := pieceNames[k]; ok {
		return n
	}
	return fmt.Sprintf("PieceKind(%d)", int(k))
}

func (k PieceKind) Valid() bool { return k >= PieceI && k <= PieceL }

func (k PieceKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(k.String())
}

func (k *PieceKind) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range pieceNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown piece kind %q", s)
}

// Cell is a grid coordinate; X grows to the right, Y grows downward.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type shapeDef struct {
	blocks     []Cell
	cx, cy     float64
	rotateable bool
}

var shapes = map[PieceKind]shapeDef{
	PieceI: {blocks: []Cell{{0, 1}, {1, 1}, {2, 1}, {3, 1}}, cx: 1.5, cy: 1.5, rotateable: true},
	PieceO: {blocks: []Cell{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, cx: 0.5, cy: 0.5},
	PieceT: {blocks: []Cell{{1, 0}, {0, 1}, {1, 1}, {2, 1}}, cx: 1, cy: 1, rotateable: true},
	PieceS: {blocks: []Cell{{1, 0}, {2, 0}, {0, 1}, {1, 1}}, cx: 1, cy: 1, rotateable: true},
	PieceZ: {blocks: []Cell{{0, 0}, {1, 0}, {1, 1}, {2, 1}}, cx: 1, cy: 1, rotateable: true},
	PieceJ: {blocks: []Cell{{0, 0}, {0, 1}, {1, 1}, {2, 1}}, cx: 1, cy: 1, rotateable: true},
	PieceL: {blocks: []Cell{{2, 0}, {0, 1}, {1, 1}, {2, 1}}, cx: 1, cy: 1, rotateable: true},
}

// Shape returns a fresh copy of the spawn orientation of k.
func Shape(k PieceKind) []Cell {
	def, ok := shapes[k]
	if !ok {
		return nil
	}
	out := make([]Cell, len(def.blocks))
	copy(out, def.blocks)
	return out
}

// Piece is the falling piece of one player. Blocks are relative to Pos.
type Piece struct {
	Kind     PieceKind `json:"type"`
	Pos      Cell      `json:"position"`
	Rotation int       `json:"rotation"`
	Blocks   []Cell    `json:"shape"`
}

// SpawnX is the column where new pieces appear.
const SpawnX = BoardWidth/2 - 1

// NewPiece places k at the spawn point.
func NewPiece(k PieceKind) Piece {
	return Piece{Kind: k, Pos: Cell{X: SpawnX, Y: 0}, Blocks: Shape(k)}
}

// Cells returns the absolute grid cells covered by p.
func (p Piece) Cells() []Cell {
	out := make([]Cell, len(p.Blocks))
	for i, b := range p.Blocks {
		out[i] = Cell{X: b.X + p.Pos.X, Y: b.Y + p.Pos.Y}
	}
	return out
}

// Moved returns a copy of p shifted by dx, dy.
func (p Piece) Moved(dx, dy int) Piece {
	p.Pos = Cell{X: p.Pos.X + dx, Y: p.Pos.Y + dy}
	p.Blocks = append([]Cell(nil), p.Blocks...)
	return p
}
