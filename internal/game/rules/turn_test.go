package rules

import (
	"testing"

	"github.com/caroarena/caro-server-go/internal/game/board"
)

func TestTurnManagerPlacementSequence(t *testing.T) {
	tm := NewTurnManager(board.Player1)

	sequence := []Phase{
		PhasePiecePlacement,
		PhaseEffectResolution,
		PhaseWinCheck,
		PhaseTurnAdvance,
	}
	for i, phase := range sequence {
		if err := tm.Enter(phase); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if tm.Phase() != phase {
			t.Fatalf("step %d: expected phase %s, got %s", i, phase, tm.Phase())
		}
	}

	next := tm.Advance()
	if next != board.Player2 || tm.ActivePlayer() != board.Player2 {
		t.Fatalf("expected P2 to be active, got %s", tm.ActivePlayer())
	}
	if tm.TurnNumber() != 2 {
		t.Fatalf("expected turn 2, got %d", tm.TurnNumber())
	}
	if tm.Phase() != PhaseAwaitingSelection {
		t.Fatalf("expected AWAITING_SELECTION, got %s", tm.Phase())
	}
}

func TestTurnManagerRejectsIllegalTransition(t *testing.T) {
	tm := NewTurnManager(board.Player2)
	if err := tm.Enter(PhaseWinCheck); err == nil {
		t.Fatal("expected AWAITING_SELECTION -> WIN_CHECK to be rejected")
	}
	if tm.Phase() != PhaseAwaitingSelection {
		t.Fatalf("phase should be unchanged, got %s", tm.Phase())
	}

	tm.Finish()
	if err := tm.Enter(PhaseAwaitingSelection); err == nil {
		t.Fatal("expected no transition out of FINISHED")
	}
}

func TestTurnManagerSkillModes(t *testing.T) {
	tm := NewTurnManager(board.Player1)
	if err := tm.Enter(PhaseTeleportArmed); err != nil {
		t.Fatal(err)
	}
	if !tm.Phase().IsSkill() {
		t.Fatal("teleport should be a skill phase")
	}
	if err := tm.Enter(PhaseAwaitingSelection); err != nil {
		t.Fatal(err)
	}
	if tm.Phase().IsSkill() {
		t.Fatal("awaiting selection is not a skill phase")
	}
}

func TestPhaseAndStatusNames(t *testing.T) {
	if PhaseSwapArmed.String() != "SWAP_ARMED" {
		t.Fatalf("unexpected name %s", PhaseSwapArmed)
	}
	if Phase(42).String() != "PHASE_42" {
		t.Fatalf("unexpected fallback %s", Phase(42))
	}
	if StatusTimedOut.String() != "TIMED_OUT" {
		t.Fatalf("unexpected status %s", StatusTimedOut)
	}
}
