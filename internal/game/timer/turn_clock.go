package timer

import (
	"sync"
	"time"

	"github.com/caroarena/caro-server-go/internal/game/board"
)

// DefaultTurnLimit is the time a player has to finish a turn.
const DefaultTurnLimit = 120 * time.Second

// ExpireFunc is called when a turn runs out.
type ExpireFunc func(player board.Player, turn int)

// TurnClock counts down the active player's turn. Restarting or stopping it
// invalidates a pending expiry, even one already racing to fire.
type TurnClock struct {
	mu       sync.Mutex
	clock    Clock
	limit    time.Duration
	onExpire ExpireFunc

	timer    Stopper
	gen      uint64
	player   board.Player
	turn     int
	deadline time.Time
	running  bool
}

// NewTurnClock creates a stopped clock. A non-positive limit means DefaultTurnLimit.
func NewTurnClock(clock Clock, limit time.Duration, onExpire ExpireFunc) *TurnClock {
	if clock == nil {
		clock = RealClock()
	}
	if limit <= 0 {
		limit = DefaultTurnLimit
	}
	return &TurnClock{clock: clock, limit: limit, onExpire: onExpire}
}

// Limit returns the per-turn allowance.
func (c *TurnClock) Limit() time.Duration {
	return c.limit
}

// Start (re)starts the countdown for player's turn.
func (c *TurnClock) Start(player board.Player, turn int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	c.gen++
	gen := c.gen
	c.player = player
	c.turn = turn
	c.deadline = c.clock.Now().Add(c.limit)
	c.running = true
	c.timer = c.clock.AfterFunc(c.limit, func() { c.fire(gen) })
}

// Stop cancels the countdown.
func (c *TurnClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *TurnClock) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.running = false
	c.gen++
}

// Remaining returns the time left, zero when stopped or expired.
func (c *TurnClock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Running reports whether a countdown is live.
func (c *TurnClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *TurnClock) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.timer = nil
	player, turn, cb := c.player, c.turn, c.onExpire
	c.mu.Unlock()

	if cb != nil {
		cb(player, turn)
	}
}
