package energy

import (
	"sync"

	"github.com/caroarena/caro-server-go/internal/game/board"
)

// GrantThreshold is the number of anchored spend units converted into one permanent unit.
const GrantThreshold = 3

// Ledger holds one player's energy.
type Ledger struct {
	mu sync.RWMutex

	// Temporary energy (set at own-turn start, emptied at own-turn end)
	temporary int

	// Permanent energy (persists across turns)
	permanent int

	// Spend accrual tied to the anchor cell
	accrued   int
	anchor    board.Pos
	hasAnchor bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// StartTurn sets temporary energy to its per-turn allowance.
func (l *Ledger) StartTurn(allowance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.temporary = allowance
}

// EndTurn empties temporary energy. Permanent energy persists.
func (l *Ledger) EndTurn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.temporary = 0
}

// AddPermanent grants permanent energy.
func (l *Ledger) AddPermanent(amount int) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.permanent += amount
}

// Temporary returns the temporary amount.
func (l *Ledger) Temporary() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.temporary
}

// Permanent returns the permanent amount.
func (l *Ledger) Permanent() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.permanent
}

// Total returns temporary plus permanent.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.temporary + l.permanent
}

// CanAfford reports whether cost can be paid.
func (l *Ledger) CanAfford(cost int) bool {
	return cost <= 0 || l.Total() >= cost
}

// Spend pays cost, draining temporary energy before permanent. It fails without mutation
// when the total is short. With a live anchor the paid amount accrues, and every
// GrantThreshold accrued units convert into one permanent unit. Returns the number of
// permanent units granted by this spend.
func (l *Ledger) Spend(cost int) (granted int, ok bool) {
	if cost <= 0 {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.temporary+l.permanent < cost {
		return 0, false
	}

	fromTemporary := cost
	if fromTemporary > l.temporary {
		fromTemporary = l.temporary
	}
	l.temporary -= fromTemporary
	l.permanent -= cost - fromTemporary

	if l.hasAnchor {
		l.accrued += cost
		for l.accrued >= GrantThreshold {
			l.accrued -= GrantThreshold
			l.permanent++
			granted++
		}
	}
	return granted, true
}

// SetAnchor binds the spend accrual to pos. It only succeeds when no anchor is live, and
// resets the accrual.
func (l *Ledger) SetAnchor(pos board.Pos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasAnchor {
		return false
	}
	l.anchor = pos
	l.hasAnchor = true
	l.accrued = 0
	return true
}

// Anchor returns the live anchor cell.
func (l *Ledger) Anchor() (board.Pos, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.anchor, l.hasAnchor
}

// MoveAnchor retargets a live anchor at from to to. Used when the anchored piece is
// relocated rather than destroyed.
func (l *Ledger) MoveAnchor(from, to board.Pos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasAnchor || l.anchor != from {
		return false
	}
	l.anchor = to
	return true
}

// ClearAnchorAt drops the anchor and its accrual if it sits on pos.
func (l *Ledger) ClearAnchorAt(pos board.Pos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasAnchor || l.anchor != pos {
		return false
	}
	l.hasAnchor = false
	l.anchor = board.Pos{}
	l.accrued = 0
	return true
}

// Accrued returns the spend units carried toward the next grant.
func (l *Ledger) Accrued() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accrued
}

// State is a value copy of a ledger.
type State struct {
	Temporary int        `json:"temporary"`
	Permanent int        `json:"permanent"`
	Accrued   int        `json:"accrued"`
	Anchor    *board.Pos `json:"anchor,omitempty"`
}

// Snapshot copies the ledger.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := State{Temporary: l.temporary, Permanent: l.permanent, Accrued: l.accrued}
	if l.hasAnchor {
		a := l.anchor
		s.Anchor = &a
	}
	return s
}
