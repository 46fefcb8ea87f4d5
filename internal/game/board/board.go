package board

import (
	"fmt"
	"strings"

	"github.com/caroarena/caro-server-go/internal/game/pieces"
)

// DefaultSize is the edge length of a standard match board.
const DefaultSize = 30

// Player identifies a seat. NoPlayer marks an empty cell.
type Player int

const (
	NoPlayer Player = iota
	Player1
	Player2
)

// Opponent returns the other seat. NoPlayer has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	default:
		return NoPlayer
	}
}

// Valid reports whether p is one of the two seats.
func (p Player) Valid() bool {
	return p == Player1 || p == Player2
}

func (p Player) String() string {
	switch p {
	case Player1:
		return "P1"
	case Player2:
		return "P2"
	default:
		return "NONE"
	}
}

// Pos is a row/column coordinate.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// OffBoard is the sentinel used for positions that fall outside the grid.
var OffBoard = Pos{Row: -1, Col: -1}

// Add returns p shifted by d.
func (p Pos) Add(d Pos) Pos {
	return Pos{Row: p.Row + d.Row, Col: p.Col + d.Col}
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Cell is the full state of one board square.
type Cell struct {
	Owner      Player
	Piece      *pieces.PieceType
	Burn       int
	DeathMarks int
	Lava       bool
}

// IsEmpty reports whether no piece occupies the cell. Lava cells are empty.
func (c Cell) IsEmpty() bool {
	return c.Owner == NoPlayer
}

// Open reports whether a piece could be written here: empty and not lava.
func (c Cell) Open() bool {
	return c.Owner == NoPlayer && !c.Lava
}

// Passive returns the passive of the occupying piece, or PassiveNone.
func (c Cell) Passive() pieces.Passive {
	if c.Piece == nil {
		return pieces.PassiveNone
	}
	return c.Piece.Passive
}

var (
	orthogonal = []Pos{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	ring       = []Pos{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

// Board is an N×N grid of cells. It carries no rules.
type Board struct {
	size  int
	cells []Cell
}

// New creates an empty board with the given edge length.
func New(size int) *Board {
	if size <= 0 {
		size = DefaultSize
	}
	return &Board{
		size:  size,
		cells: make([]Cell, size*size),
	}
}

// Size returns the edge length.
func (b *Board) Size() int {
	return b.size
}

// InBounds reports whether p lies on the grid.
func (b *Board) InBounds(p Pos) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

func (b *Board) index(p Pos) int {
	if !b.InBounds(p) {
		panic(fmt.Sprintf("board: position %s out of bounds for size %d", p, b.size))
	}
	return p.Row*b.size + p.Col
}

// Get returns a copy of the cell at p. Panics when p is off the grid.
func (b *Board) Get(p Pos) Cell {
	return b.cells[b.index(p)]
}

// Set overwrites the cell at p. Panics when p is off the grid.
func (b *Board) Set(p Pos, c Cell) {
	b.cells[b.index(p)] = c
}

// Clear resets p to the all-default empty state.
func (b *Board) Clear(p Pos) {
	b.cells[b.index(p)] = Cell{}
}

// Place writes a fresh piece for owner at p.
func (b *Board) Place(p Pos, owner Player, piece *pieces.PieceType) {
	b.cells[b.index(p)] = Cell{Owner: owner, Piece: piece}
}

// Update applies fn to the cell at p in place.
func (b *Board) Update(p Pos, fn func(*Cell)) {
	fn(&b.cells[b.index(p)])
}

// Neighbors8 returns the in-bounds cells of the ring around p.
func (b *Board) Neighbors8(p Pos) []Pos {
	return b.around(p, ring)
}

// Orthogonal returns the in-bounds up/down/left/right neighbors of p.
func (b *Board) Orthogonal(p Pos) []Pos {
	return b.around(p, orthogonal)
}

func (b *Board) around(p Pos, deltas []Pos) []Pos {
	out := make([]Pos, 0, len(deltas))
	for _, d := range deltas {
		n := p.Add(d)
		if b.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Each calls fn for every cell in row-major order.
func (b *Board) Each(fn func(Pos, Cell)) {
	for i, c := range b.cells {
		fn(Pos{Row: i / b.size, Col: i % b.size}, c)
	}
}

// Occupied returns the positions of all pieces in row-major order.
func (b *Board) Occupied() []Pos {
	var out []Pos
	b.Each(func(p Pos, c Cell) {
		if !c.IsEmpty() {
			out = append(out, p)
		}
	})
	return out
}

// IsBlank reports whether no piece is on the board.
func (b *Board) IsBlank() bool {
	for _, c := range b.cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy. Piece pointers are shared; catalog entries are immutable.
func (b *Board) Clone() *Board {
	cp := &Board{size: b.size, cells: make([]Cell, len(b.cells))}
	copy(cp.cells, b.cells)
	return cp
}

// Render draws the board as text, one row per line. Used by the simulator and in logs.
func (b *Board) Render() string {
	var sb strings.Builder
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			cell := b.cells[r*b.size+c]
			switch {
			case cell.Lava:
				sb.WriteByte('~')
			case cell.Owner == Player1:
				sb.WriteByte('X')
			case cell.Owner == Player2:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
