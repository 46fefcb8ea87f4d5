package watchers

import (
	"testing"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

func placed(player board.Player, slot int) rules.Event {
	evt := rules.NewEvent(rules.EventPiecePlaced, player)
	evt.Slot = slot
	return evt
}

func TestPlayCountWatcher(t *testing.T) {
	watcher := NewPlayCountWatcher()

	if watcher.Plays(board.Player1, 0) != 0 {
		t.Fatalf("expected 0 plays, got %d", watcher.Plays(board.Player1, 0))
	}

	watcher.Watch(placed(board.Player1, 0))
	watcher.Watch(placed(board.Player1, 0))
	watcher.Watch(placed(board.Player1, 2))
	watcher.Watch(placed(board.Player2, 0))

	if got := watcher.Plays(board.Player1, 0); got != 2 {
		t.Fatalf("expected 2 plays, got %d", got)
	}
	if got := watcher.Plays(board.Player2, 0); got != 1 {
		t.Fatalf("expected 1 play for P2, got %d", got)
	}

	// Other events and bad slots are ignored.
	watcher.Watch(rules.NewEvent(rules.EventCellChanged, board.Player1))
	watcher.Watch(placed(board.Player1, 7))
	if got := watcher.Snapshot(board.Player1); got != (Counts{2, 0, 1}) {
		t.Fatalf("unexpected counts %v", got)
	}

	snap := watcher.Snapshot(board.Player1)
	snap[0] = 99
	if watcher.Plays(board.Player1, 0) != 2 {
		t.Fatal("snapshot should be a copy")
	}
}

func TestIdleTurnWatcher(t *testing.T) {
	watcher := NewIdleTurnWatcher()

	for i := 0; i < 4; i++ {
		watcher.Watch(placed(board.Player1, 0))
	}
	if got := watcher.Snapshot(board.Player1); got != (Counts{0, 4, 4}) {
		t.Fatalf("unexpected idle counts %v", got)
	}

	watcher.Watch(placed(board.Player1, 1))
	if got := watcher.Snapshot(board.Player1); got != (Counts{1, 0, 5}) {
		t.Fatalf("unexpected idle counts %v", got)
	}

	// The opponent's placements do not age this player's slots.
	watcher.Watch(placed(board.Player2, 2))
	if got := watcher.Idle(board.Player1, 2); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := watcher.Snapshot(board.Player2); got != (Counts{1, 1, 0}) {
		t.Fatalf("unexpected P2 idle counts %v", got)
	}
}
