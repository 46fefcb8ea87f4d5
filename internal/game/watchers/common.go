package watchers

import (
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

// Counts holds one counter per roster slot.
type Counts [pieces.RosterSize]int

func validSlot(slot int) bool {
	return slot >= 0 && slot < pieces.RosterSize
}

func countsFor(m map[board.Player]*Counts, player board.Player) *Counts {
	c, ok := m[player]
	if !ok {
		c = &Counts{}
		m[player] = c
	}
	return c
}

// PlayCountWatcher counts placements per player and roster slot.
type PlayCountWatcher struct {
	*rules.BaseWatcher
	plays map[board.Player]*Counts
}

// NewPlayCountWatcher creates a new play count watcher.
func NewPlayCountWatcher() *PlayCountWatcher {
	return &PlayCountWatcher{
		BaseWatcher: rules.NewBaseWatcher("PlayCountWatcher"),
		plays:       make(map[board.Player]*Counts),
	}
}

// Watch implements the Watcher interface.
func (w *PlayCountWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventPiecePlaced || !event.Player.Valid() || !validSlot(event.Slot) {
		return
	}
	countsFor(w.plays, event.Player)[event.Slot]++
}

// Plays returns how many times player has placed the piece in slot.
func (w *PlayCountWatcher) Plays(player board.Player, slot int) int {
	if !validSlot(slot) {
		return 0
	}
	if c, ok := w.plays[player]; ok {
		return c[slot]
	}
	return 0
}

// Snapshot returns a copy of player's counters.
func (w *PlayCountWatcher) Snapshot(player board.Player) Counts {
	if c, ok := w.plays[player]; ok {
		return *c
	}
	return Counts{}
}

// IdleTurnWatcher tracks, per player and slot, how many of the player's own placements
// have gone by since that slot was last played.
type IdleTurnWatcher struct {
	*rules.BaseWatcher
	idle map[board.Player]*Counts
}

// NewIdleTurnWatcher creates a new idle turn watcher.
func NewIdleTurnWatcher() *IdleTurnWatcher {
	return &IdleTurnWatcher{
		BaseWatcher: rules.NewBaseWatcher("IdleTurnWatcher"),
		idle:        make(map[board.Player]*Counts),
	}
}

// Watch implements the Watcher interface.
func (w *IdleTurnWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventPiecePlaced || !event.Player.Valid() || !validSlot(event.Slot) {
		return
	}
	c := countsFor(w.idle, event.Player)
	for slot := range c {
		if slot == event.Slot {
			c[slot] = 0
		} else {
			c[slot]++
		}
	}
}

// Idle returns the idle count of player's slot.
func (w *IdleTurnWatcher) Idle(player board.Player, slot int) int {
	if !validSlot(slot) {
		return 0
	}
	if c, ok := w.idle[player]; ok {
		return c[slot]
	}
	return 0
}

// Snapshot returns a copy of player's counters.
func (w *IdleTurnWatcher) Snapshot(player board.Player) Counts {
	if c, ok := w.idle[player]; ok {
		return *c
	}
	return Counts{}
}
