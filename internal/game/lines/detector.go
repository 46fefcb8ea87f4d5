package lines

import (
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
)

const (
	// DefaultLength is the winning run length for ordinary types.
	DefaultLength = 5
	// ShortLength is the winning run length for FourInRowWin types.
	ShortLength = 4
)

var (
	// Axes are scanned in this order: horizontal, vertical, diagonal, anti-diagonal.
	Axes = []board.Pos{{Row: 0, Col: 1}, {Row: 1, Col: 0}, {Row: 1, Col: 1}, {Row: 1, Col: -1}}

	orthogonalAxes = Axes[:2]
)

// Threshold returns the run length that credits piece.
func Threshold(piece *pieces.PieceType) int {
	if piece != nil && piece.Passive == pieces.FourInRowWin {
		return ShortLength
	}
	return DefaultLength
}

// AxesFor returns the axes piece can win on. FourInRowWin excludes diagonals.
func AxesFor(piece *pieces.PieceType) []board.Pos {
	if piece != nil && piece.Passive == pieces.FourInRowWin {
		return orthogonalAxes
	}
	return Axes
}

// Matches reports whether cell counts toward a run of piece for owner: same owner and
// either the same type or a wildcard.
func Matches(cell board.Cell, owner board.Player, piece *pieces.PieceType) bool {
	if cell.Owner != owner || cell.Piece == nil {
		return false
	}
	return pieces.Same(cell.Piece, piece) || cell.Piece.Passive == pieces.WildCardCaro
}

// Span is the result of walking one axis through a position.
type Span struct {
	Count int
	// Back and Fwd are the first non-matching positions beyond each end. They may be
	// off the board; check with InBounds.
	Back board.Pos
	Fwd  board.Pos
}

// Walk counts consecutive cells matching pred through pos along axis, pos included.
// The cell at pos itself is not tested.
func Walk(b *board.Board, pos, axis board.Pos, pred func(board.Cell) bool) Span {
	s := Span{Count: 1}
	p := pos.Add(axis)
	for b.InBounds(p) && pred(b.Get(p)) {
		s.Count++
		p = p.Add(axis)
	}
	s.Fwd = p

	back := board.Pos{Row: -axis.Row, Col: -axis.Col}
	p = pos.Add(back)
	for b.InBounds(p) && pred(b.Get(p)) {
		s.Count++
		p = p.Add(back)
	}
	s.Back = p
	return s
}

// Run is a credited winning run.
type Run struct {
	Cells []board.Pos
	EndA  board.Pos
	EndB  board.Pos
	Axis  board.Pos
}

// Contains reports whether pos is part of the run.
func (r Run) Contains(pos board.Pos) bool {
	for _, c := range r.Cells {
		if c == pos {
			return true
		}
	}
	return false
}

// Check looks for a run of piece through pos owned by owner. The returned run is the
// full span, which may exceed the threshold. Endpoints just beyond the run are reported
// as board.OffBoard when they leave the grid.
func Check(b *board.Board, pos board.Pos, owner board.Player, piece *pieces.PieceType) (Run, bool) {
	need := Threshold(piece)
	match := func(c board.Cell) bool { return Matches(c, owner, piece) }

	for _, axis := range AxesFor(piece) {
		s := Walk(b, pos, axis, match)
		if s.Count < need {
			continue
		}
		run := Run{
			Cells: make([]board.Pos, 0, s.Count),
			EndA:  sentinel(b, s.Back),
			EndB:  sentinel(b, s.Fwd),
			Axis:  axis,
		}
		p := s.Back.Add(axis)
		for i := 0; i < s.Count; i++ {
			run.Cells = append(run.Cells, p)
			p = p.Add(axis)
		}
		return run, true
	}
	return Run{}, false
}

// CheckPlaced evaluates a fresh placement. A wildcard forms no lines of its own, so it is
// retried as every allied non-wildcard type in roster order and the first completed run
// is returned with that type's slot.
func CheckPlaced(b *board.Board, pos board.Pos, owner board.Player, placed *pieces.PieceType, roster pieces.Roster) (Run, int, bool) {
	if placed == nil {
		return Run{}, -1, false
	}
	if placed.Passive != pieces.WildCardCaro {
		slot := roster.Slot(placed)
		if slot < 0 {
			return Run{}, -1, false
		}
		run, ok := Check(b, pos, owner, placed)
		return run, slot, ok
	}
	for slot, ally := range roster {
		if ally == nil || ally.Passive == pieces.WildCardCaro {
			continue
		}
		if run, ok := Check(b, pos, owner, ally); ok {
			return run, slot, true
		}
	}
	return Run{}, -1, false
}

// ChainEnds reports the two positions just beyond a run of at least n cells of exactly
// the type at pos (wildcards do not extend it). Off-board ends come back as
// board.OffBoard.
func ChainEnds(b *board.Board, pos board.Pos, owner board.Player, n int) (board.Pos, board.Pos, bool) {
	origin := b.Get(pos)
	if origin.Piece == nil {
		return board.OffBoard, board.OffBoard, false
	}
	match := func(c board.Cell) bool {
		return c.Owner == owner && pieces.Same(c.Piece, origin.Piece)
	}
	for _, axis := range Axes {
		s := Walk(b, pos, axis, match)
		if s.Count >= n {
			return sentinel(b, s.Back), sentinel(b, s.Fwd), true
		}
	}
	return board.OffBoard, board.OffBoard, false
}

func sentinel(b *board.Board, p board.Pos) board.Pos {
	if !b.InBounds(p) {
		return board.OffBoard
	}
	return p
}

// Credits tracks which roster slots a player has completed.
type Credits [pieces.RosterSize]bool

// Count returns the number of credited slots.
func (c Credits) Count() int {
	n := 0
	for _, v := range c {
		if v {
			n++
		}
	}
	return n
}

// Wins reports whether at least two of three types are credited.
func (c Credits) Wins() bool {
	return c.Count() >= 2
}
