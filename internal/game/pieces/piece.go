package pieces

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPassive  = errors.New("pieces: unknown passive")
	ErrUnknownPiece    = errors.New("pieces: unknown piece id")
	ErrDuplicatePiece  = errors.New("pieces: duplicate piece id")
	ErrInvalidPiece    = errors.New("pieces: invalid piece definition")
	ErrInvalidRoster   = errors.New("pieces: invalid roster")
	ErrCatalogNotReady = errors.New("pieces: catalog not loaded")
)

// RosterSize is the number of piece types bound to each player.
const RosterSize = 3

// PieceType is an immutable catalog entry. Engines compare pieces by ID only.
type PieceType struct {
	ID         int     `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	Passive    Passive `yaml:"passive" json:"passive"`
	EnergyCost int     `yaml:"energy_cost" json:"energy_cost"`
}

// Validate checks the static constraints of a catalog entry.
func (p *PieceType) Validate() error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidPiece, p.ID)
	case p.Name == "":
		return fmt.Errorf("%w: piece %d has no name", ErrInvalidPiece, p.ID)
	case p.EnergyCost < 0:
		return fmt.Errorf("%w: piece %d has negative cost", ErrInvalidPiece, p.ID)
	case !p.Passive.Valid():
		return fmt.Errorf("%w: piece %d passive %d", ErrUnknownPassive, p.ID, int(p.Passive))
	}
	return nil
}

// Same reports whether a and b are the same catalog entry.
func Same(a, b *PieceType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (p *PieceType) String() string {
	if p == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s#%d(%s)", p.Name, p.ID, p.Passive)
}

// Roster is the ordered set of three piece types a player fields. Slot order matters for
// wildcard retries and credit bookkeeping.
type Roster [RosterSize]*PieceType

// Slot returns the index of piece in the roster, or -1.
func (r Roster) Slot(piece *PieceType) int {
	for i, p := range r {
		if Same(p, piece) {
			return i
		}
	}
	return -1
}

// IDs returns the catalog ids in slot order.
func (r Roster) IDs() []int {
	out := make([]int, 0, RosterSize)
	for _, p := range r {
		if p != nil {
			out = append(out, p.ID)
		}
	}
	return out
}

// Validate requires three distinct, non-nil entries.
func (r Roster) Validate() error {
	seen := make(map[int]bool, RosterSize)
	for i, p := range r {
		if p == nil {
			return fmt.Errorf("%w: slot %d is empty", ErrInvalidRoster, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: piece %d bound twice", ErrInvalidRoster, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
