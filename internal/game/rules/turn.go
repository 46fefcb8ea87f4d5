package rules

import (
	"fmt"

	"github.com/caroarena/caro-server-go/internal/game/board"
)

// Phase is the sequencer state within a turn.
type Phase int

const (
	PhaseAwaitingSelection Phase = iota
	PhasePiecePlacement
	PhaseEffectResolution
	PhaseWinCheck
	PhaseTurnAdvance
	PhaseTeleportArmed
	PhaseSwapArmed
	PhaseFinished
)

var phaseNames = map[Phase]string{
	PhaseAwaitingSelection: "AWAITING_SELECTION",
	PhasePiecePlacement:    "PIECE_PLACEMENT",
	PhaseEffectResolution:  "EFFECT_RESOLUTION",
	PhaseWinCheck:          "WIN_CHECK",
	PhaseTurnAdvance:       "TURN_ADVANCE",
	PhaseTeleportArmed:     "TELEPORT_ARMED",
	PhaseSwapArmed:         "SWAP_ARMED",
	PhaseFinished:          "FINISHED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// IsSkill reports whether the phase is a two-step skill targeting mode.
func (p Phase) IsSkill() bool {
	return p == PhaseTeleportArmed || p == PhaseSwapArmed
}

// Status is the match outcome.
type Status int

const (
	StatusInProgress Status = iota
	StatusWon
	StatusTimedOut
)

var statusNames = map[Status]string{
	StatusInProgress: "IN_PROGRESS",
	StatusWon:        "WON",
	StatusTimedOut:   "TIMED_OUT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int(s))
}

// transitions lists the legal successors of each phase.
var transitions = map[Phase][]Phase{
	PhaseAwaitingSelection: {PhasePiecePlacement, PhaseTeleportArmed, PhaseSwapArmed, PhaseTurnAdvance, PhaseFinished},
	PhasePiecePlacement:    {PhaseEffectResolution},
	PhaseEffectResolution:  {PhaseWinCheck},
	PhaseWinCheck:          {PhaseTurnAdvance, PhaseFinished, PhaseAwaitingSelection},
	PhaseTurnAdvance:       {PhaseAwaitingSelection},
	PhaseTeleportArmed:     {PhaseAwaitingSelection, PhasePiecePlacement, PhaseWinCheck, PhaseSwapArmed, PhaseTurnAdvance, PhaseFinished},
	PhaseSwapArmed:         {PhaseAwaitingSelection, PhasePiecePlacement, PhaseWinCheck, PhaseTeleportArmed, PhaseTurnAdvance, PhaseFinished},
}

// TurnManager tracks the active player, turn number and sequencer phase.
type TurnManager struct {
	turnNumber   int
	activePlayer board.Player
	phase        Phase
}

// NewTurnManager creates a turn manager at turn 1 awaiting selection.
func NewTurnManager(first board.Player) *TurnManager {
	if !first.Valid() {
		first = board.Player1
	}
	return &TurnManager{
		turnNumber:   1,
		activePlayer: first,
		phase:        PhaseAwaitingSelection,
	}
}

// Phase returns the current phase.
func (tm *TurnManager) Phase() Phase {
	return tm.phase
}

// TurnNumber returns the current turn number (1-based).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// ActivePlayer returns the player who currently has the turn.
func (tm *TurnManager) ActivePlayer() board.Player {
	return tm.activePlayer
}

// Enter moves to phase, failing on a transition the sequencer does not allow.
func (tm *TurnManager) Enter(phase Phase) error {
	if tm.phase == phase {
		return nil
	}
	for _, next := range transitions[tm.phase] {
		if next == phase {
			tm.phase = phase
			return nil
		}
	}
	return fmt.Errorf("illegal phase transition %s -> %s", tm.phase, phase)
}

// Advance hands the turn to the opponent and returns to awaiting selection.
func (tm *TurnManager) Advance() board.Player {
	tm.activePlayer = tm.activePlayer.Opponent()
	tm.turnNumber++
	tm.phase = PhaseAwaitingSelection
	return tm.activePlayer
}

// Finish marks the match as over. No further transitions are possible.
func (tm *TurnManager) Finish() {
	tm.phase = PhaseFinished
}
