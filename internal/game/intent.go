package game

import (
	"fmt"
	"strings"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

// IntentKind names a player input.
type IntentKind string

const (
	IntentSelect  IntentKind = "SELECT"
	IntentPlace   IntentKind = "PLACE"
	IntentTarget  IntentKind = "TARGET"
	IntentCancel  IntentKind = "CANCEL"
	IntentPass    IntentKind = "PASS"
	IntentTimeout IntentKind = "TIMEOUT"
)

// ParseIntentKind accepts any case and surrounding whitespace.
func ParseIntentKind(s string) (IntentKind, error) {
	k := IntentKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case IntentSelect, IntentPlace, IntentTarget, IntentCancel, IntentPass, IntentTimeout:
		return k, nil
	}
	return "", fmt.Errorf("unknown intent kind %q", s)
}

// Intent is one player input, the unit that crosses the replication boundary.
type Intent struct {
	Kind   IntentKind   `json:"kind"`
	Player board.Player `json:"player"`
	Slot   int          `json:"slot,omitempty"`
	Pos    board.Pos    `json:"pos"`
}

func (i Intent) String() string {
	switch i.Kind {
	case IntentSelect:
		return fmt.Sprintf("%s %s slot=%d", i.Player, i.Kind, i.Slot)
	case IntentPlace, IntentTarget:
		return fmt.Sprintf("%s %s %s", i.Player, i.Kind, i.Pos)
	default:
		return fmt.Sprintf("%s %s", i.Player, i.Kind)
	}
}

// Apply routes an intent to the matching operation.
func (m *Match) Apply(in Intent) (Result, []rules.Event) {
	switch in.Kind {
	case IntentSelect:
		return m.SelectPiece(in.Player, in.Slot)
	case IntentPlace:
		return m.PlaceAt(in.Player, in.Pos)
	case IntentTarget:
		return m.Target(in.Player, in.Pos)
	case IntentCancel:
		return m.Cancel(in.Player)
	case IntentPass:
		return m.ForcedPass(in.Player)
	case IntentTimeout:
		return m.Timeout(in.Player)
	default:
		return reject(ReasonUnknownIntent, "%q", in.Kind), nil
	}
}
