package heuristic

import (
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
)

// Score weights and tiers.
const (
	OffenseWeight = 12
	DefenseWeight = 10

	ScoreWin            = 100000
	ScoreOneShort       = 15000
	ScoreOneShortUnblk  = 50000
	ScoreOneShortOpen2  = 30000
	ScoreTwoShortOpen2  = 5000
	ScoreTwoShortOpen1  = 500
	ScorePairOpen2      = 100
	BonusCrossStrike    = 4000
	BonusExplodeNearby  = 100
	BonusIsolated       = 500
	BonusRestrictArea   = 200
	BonusWinLineExplode = 100

	// ZoneRadius matches the RestrictArea zone.
	ZoneRadius = 2
)

// View is what the heuristic may see of a match from one player's seat.
type View struct {
	Board     *board.Board
	Player    board.Player
	Roster    pieces.Roster
	Completed lines.Credits
	// Energy is the player's total (temporary plus permanent).
	Energy int
	// Armed is the slot currently armed, -1 when none has been armed this match.
	Armed int
	// Forbidden holds the cells the player may not use this turn.
	Forbidden map[board.Pos]bool
	// Zone is the restriction center when a restriction targets the player.
	Zone *board.Pos
}

// Move is a chosen placement.
type Move struct {
	Pos   board.Pos
	Slot  int
	Score int
}

// Cost returns the energy needed to place slot, including the switch cost.
func (v View) Cost(slot int) int {
	cost := v.Roster[slot].EnergyCost
	if v.Armed >= 0 && v.Armed != slot {
		cost++
	}
	return cost
}

// Playable lists the slots worth considering: uncredited and affordable, or failing
// that any affordable slot.
func (v View) Playable() []int {
	var out, fallback []int
	for slot, p := range v.Roster {
		if p == nil || v.Cost(slot) > v.Energy {
			continue
		}
		fallback = append(fallback, slot)
		if !v.Completed[slot] {
			out = append(out, slot)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (v View) inZone(p board.Pos) bool {
	if v.Zone == nil {
		return true
	}
	return abs(p.Row-v.Zone.Row) <= ZoneRadius && abs(p.Col-v.Zone.Col) <= ZoneRadius
}

func (v View) usable(p board.Pos) bool {
	return v.Board.InBounds(p) && v.Board.Get(p).Open() && !v.Forbidden[p] && v.inZone(p)
}

// Candidates returns the cells the search evaluates, in row-major order.
func (v View) Candidates(radius int) []board.Pos {
	b := v.Board
	if b.IsBlank() && v.Zone == nil {
		center := board.Pos{Row: b.Size() / 2, Col: b.Size() / 2}
		if v.usable(center) {
			return []board.Pos{center}
		}
	}

	var out []board.Pos
	b.Each(func(p board.Pos, _ board.Cell) {
		if v.usable(p) && nearPiece(b, p, radius) {
			out = append(out, p)
		}
	})
	if len(out) > 0 || v.Zone == nil {
		return out
	}

	for dr := -ZoneRadius; dr <= ZoneRadius; dr++ {
		for dc := -ZoneRadius; dc <= ZoneRadius; dc++ {
			p := board.Pos{Row: v.Zone.Row + dr, Col: v.Zone.Col + dc}
			if v.usable(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Choose picks the best scoring placement. It returns false when no legal move exists.
// Ties keep the first candidate in roster then row-major order.
func Choose(v View, d Difficulty, rng RandomSource) (Move, bool) {
	if rng == nil {
		rng = DefaultRNG()
	}
	candidates := v.Candidates(d.Radius())
	if len(candidates) == 0 {
		return Move{}, false
	}
	slots := v.Playable()
	if len(slots) == 0 {
		return Move{}, false
	}

	best := Move{Slot: -1}
	for _, slot := range slots {
		for _, p := range candidates {
			score := Evaluate(v.Board, p, v.Player, v.Roster[slot]) + rng.IntN(d.Noise())
			if best.Slot < 0 || score > best.Score {
				best = Move{Pos: p, Slot: slot, Score: score}
			}
		}
	}
	return best, true
}

// Evaluate scores placing piece at p for player.
func Evaluate(b *board.Board, p board.Pos, player board.Player, piece *pieces.PieceType) int {
	enemy := player.Opponent()
	score := LineScore(b, p, player, piece)*OffenseWeight + LineScore(b, p, enemy, nil)*DefenseWeight

	switch piece.Passive {
	case pieces.CrossStrike:
		for _, n := range b.Orthogonal(p) {
			if b.Get(n).Owner == enemy {
				score += BonusCrossStrike
			}
		}
	case pieces.ExplodeOnDeath:
		score += occupiedAround(b, p) * BonusExplodeNearby
	case pieces.IsolationLock:
		if occupiedAround(b, p) == 0 {
			score += BonusIsolated
		}
	case pieces.RestrictArea:
		score += BonusRestrictArea
	case pieces.WinLineExplode:
		score += BonusWinLineExplode
	}
	return score
}

// LineScore rates the runs player would form through p. A nil piece scores raw
// ownership, which is how threats are read for the opponent.
func LineScore(b *board.Board, p board.Pos, player board.Player, piece *pieces.PieceType) int {
	need := lines.Threshold(piece)
	unblockable := piece != nil && piece.Passive == pieces.UnblockableOnFour
	match := matcher(player, piece)

	score := 0
	for _, axis := range lines.AxesFor(piece) {
		s := lines.Walk(b, p, axis, match)
		open := 0
		for _, end := range []board.Pos{s.Back, s.Fwd} {
			if b.InBounds(end) && b.Get(end).Open() {
				open++
			}
		}

		switch {
		case s.Count >= need:
			score += ScoreWin
		case s.Count == need-1:
			if open >= 1 {
				if unblockable {
					score += ScoreOneShortUnblk
				} else {
					score += ScoreOneShort
				}
			}
			if open == 2 {
				score += ScoreOneShortOpen2
			}
		case s.Count == need-2:
			if open == 2 {
				score += ScoreTwoShortOpen2
			} else if open == 1 {
				score += ScoreTwoShortOpen1
			}
		case s.Count == 2 && open == 2:
			score += ScorePairOpen2
		}
	}
	return score
}

func matcher(player board.Player, piece *pieces.PieceType) func(board.Cell) bool {
	if piece == nil || piece.Passive == pieces.WildCardCaro {
		return func(c board.Cell) bool { return c.Owner == player }
	}
	return func(c board.Cell) bool { return lines.Matches(c, player, piece) }
}

func nearPiece(b *board.Board, p board.Pos, radius int) bool {
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			n := board.Pos{Row: p.Row + dr, Col: p.Col + dc}
			if b.InBounds(n) && !b.Get(n).IsEmpty() {
				return true
			}
		}
	}
	return false
}

func occupiedAround(b *board.Board, p board.Pos) int {
	n := 0
	for _, q := range b.Neighbors8(p) {
		if !b.Get(q).IsEmpty() {
			n++
		}
	}
	return n
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
