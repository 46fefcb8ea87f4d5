package abilities

import (
	"fmt"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

// Resolver dispatches placement, destruction and line hooks to passive handlers.
// It holds no match state; everything flows through the Host.
type Resolver struct {
	handlers map[pieces.Passive]Handler
}

// NewResolver instantiates a handler for every passive. It fails if any passive,
// PassiveNone included, has no registered factory.
func NewResolver() (*Resolver, error) {
	r := &Resolver{handlers: make(map[pieces.Passive]Handler, pieces.PassiveCount+1)}
	for _, p := range append([]pieces.Passive{pieces.PassiveNone}, pieces.AllPassives()...) {
		h, err := New(p)
		if err != nil {
			return nil, fmt.Errorf("build resolver: %w", err)
		}
		r.handlers[p] = h
	}
	return r, nil
}

func (r *Resolver) handler(p pieces.Passive) Handler {
	if h, ok := r.handlers[p]; ok {
		return h
	}
	return HandlerFuncs{}
}

// OnPlace runs the placement hook of the piece just written at pos.
func (r *Resolver) OnPlace(h Host, pos board.Pos, owner board.Player, piece *pieces.PieceType) {
	if piece == nil {
		return
	}
	r.handler(piece.Passive).OnPlace(PlaceContext{Host: h, Resolver: r, Pos: pos, Owner: owner, Piece: piece})
}

// OnLineCompleted runs the line hook of the credited type.
func (r *Resolver) OnLineCompleted(h Host, owner board.Player, piece *pieces.PieceType, slot int, run lines.Run) {
	if piece == nil {
		return
	}
	r.handler(piece.Passive).OnLineCompleted(LineContext{
		Host: h, Resolver: r, Owner: owner, Piece: piece, Slot: slot, Run: run,
	})
}

// Destroy is the only removal path. Empty and lava cells are no-ops. Lines through the
// cell are retracted and an anchor on it is dropped, then the cell is cleared (or turned
// to lava) before the death hook cascades, so a chain never revisits a cell.
func (r *Resolver) Destroy(h Host, pos board.Pos, opts DestroyOpts) {
	b := h.Board()
	if !b.InBounds(pos) {
		return
	}
	cell := b.Get(pos)
	if cell.IsEmpty() {
		return
	}

	h.RetractLinesAt(pos)
	h.Ledger(cell.Owner).ClearAnchorAt(pos)

	if opts.Lava && cell.Passive() == pieces.LavaSpawnOnDeath {
		b.Set(pos, board.Cell{Lava: true})
	} else {
		b.Clear(pos)
	}
	h.Emit(rules.NewCellEvent(pos, b.Get(pos)))

	r.handler(cell.Passive()).OnDestroy(DestroyContext{Host: h, Resolver: r, Pos: pos, Cell: cell, Opts: opts})
}

// ReplaceOccupant removes the ally under an AllyReplace placement and reports whether it
// was explosive, in which case the replacing piece must also go once the placement has
// resolved.
func (r *Resolver) ReplaceOccupant(h Host, pos board.Pos) bool {
	explosive := h.Board().Get(pos).Passive() == pieces.ExplodeOnDeath
	r.Destroy(h, pos, ReplaceEffects)
	return explosive
}

// Teleport moves the full state of from to the empty cell to.
func (r *Resolver) Teleport(h Host, from, to board.Pos) {
	b := h.Board()
	cell := b.Get(from)
	h.RetractLinesAt(from)

	b.Set(to, cell)
	b.Clear(from)
	h.Ledger(cell.Owner).MoveAnchor(from, to)

	h.Emit(rules.NewCellEvent(from, b.Get(from)))
	h.Emit(rules.NewCellEvent(to, b.Get(to)))
}

// Swap exchanges the full states of two allied cells.
func (r *Resolver) Swap(h Host, a, c board.Pos) {
	b := h.Board()
	first, second := b.Get(a), b.Get(c)
	h.RetractLinesAt(a)
	h.RetractLinesAt(c)

	b.Set(a, second)
	b.Set(c, first)
	ledger := h.Ledger(first.Owner)
	if !ledger.MoveAnchor(a, c) {
		ledger.MoveAnchor(c, a)
	}

	h.Emit(rules.NewCellEvent(a, b.Get(a)))
	h.Emit(rules.NewCellEvent(c, b.Get(c)))
}

// Area returns the in-bounds square of the given radius around center.
func Area(b *board.Board, center board.Pos, radius int) []board.Pos {
	var out []board.Pos
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			p := board.Pos{Row: center.Row + dr, Col: center.Col + dc}
			if b.InBounds(p) {
				out = append(out, p)
			}
		}
	}
	return out
}
