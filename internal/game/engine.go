package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
	"github.com/caroarena/caro-server-go/internal/game/timer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bot pacing. Neither affects what the bot plays.
const (
	DefaultBotDelay    = time.Second
	DefaultBotFollowUp = 300 * time.Millisecond
)

// Notification types.
const (
	NotifyMatchCreated = "MATCH_CREATED"
	NotifyEvents       = "EVENTS"
	NotifyMatchOver    = "MATCH_OVER"
)

var (
	ErrMatchNotFound = errors.New("game: match not found")
	ErrMatchExists   = errors.New("game: match already exists")
)

// Seat describes who sits in a seat.
type Seat struct {
	Roster     []int
	Bot        bool
	Difficulty heuristic.Difficulty
}

// CreateMatchRequest describes a match to start.
type CreateMatchRequest struct {
	ID    string
	Seats [2]Seat
	First board.Player
}

// EngineConfig tunes an Engine. Zero values fall back to the defaults.
type EngineConfig struct {
	BoardSize   int
	TurnLimit   time.Duration
	BotDelay    time.Duration
	BotFollowUp time.Duration
	Clock       timer.Clock
	// NewRNG builds the random source of each automated seat.
	NewRNG func() heuristic.RandomSource
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.BoardSize <= 0 {
		c.BoardSize = board.DefaultSize
	}
	if c.TurnLimit <= 0 {
		c.TurnLimit = timer.DefaultTurnLimit
	}
	if c.BotDelay <= 0 {
		c.BotDelay = DefaultBotDelay
	}
	if c.BotFollowUp <= 0 {
		c.BotFollowUp = DefaultBotFollowUp
	}
	if c.Clock == nil {
		c.Clock = timer.RealClock()
	}
	if c.NewRNG == nil {
		c.NewRNG = heuristic.DefaultRNG
	}
	return c
}

// Notification is pushed to the notification handler after every accepted intent.
type Notification struct {
	Type    string
	MatchID string
	// Order counts a match's notifications from 1. Handlers run concurrently, so
	// consumers that care about ordering sort on it.
	Order int
	// Seq is the match event sequence after the notified change.
	Seq       int
	Player    board.Player
	Intent    *Intent
	Events    []rules.Event
	Digest    string
	Timestamp time.Time
}

// NotificationHandler receives notifications on its own goroutine.
type NotificationHandler func(notification Notification)

type engineMatch struct {
	mu    sync.Mutex
	match *Match
	seats [3]Seat
	rng   [3]heuristic.RandomSource
	clock *timer.TurnClock
	bot   timer.Stopper
	notes int
}

// stamp numbers n for this match. em.mu must be held.
func (em *engineMatch) stamp(n Notification) Notification {
	em.notes++
	n.Order = em.notes
	n.Seq = em.match.Seq()
	return n
}

func (em *engineMatch) cancelBot() {
	if em.bot != nil {
		em.bot.Stop()
		em.bot = nil
	}
}

// botTurn reports whether the scheduled bot move for p on turn is still current.
func (em *engineMatch) botTurn(p board.Player, turn int) bool {
	return !em.match.Over() && em.match.Active() == p && em.match.Turn() == turn
}

// Engine hosts many matches. Operations on one match are serialized; different matches
// proceed independently.
type Engine struct {
	logger              *zap.Logger
	catalog             *pieces.Catalog
	cfg                 EngineConfig
	journals            *JournalRecorder
	mu                  sync.RWMutex
	matches             map[string]*engineMatch
	notificationHandler NotificationHandler
}

// NewEngine creates an engine over catalog.
func NewEngine(logger *zap.Logger, catalog *pieces.Catalog, cfg EngineConfig) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		logger:   logger,
		catalog:  catalog,
		cfg:      cfg,
		journals: NewJournalRecorder(logger),
		matches:  make(map[string]*engineMatch),
	}
}

// Catalog returns the catalog rosters are resolved against.
func (e *Engine) Catalog() *pieces.Catalog {
	return e.catalog
}

// SetNotificationHandler sets the handler for match notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notificationHandler = handler
}

// emitNotification hands n to the handler without blocking the match.
func (e *Engine) emitNotification(n Notification) {
	e.mu.RLock()
	handler := e.notificationHandler
	e.mu.RUnlock()

	if handler != nil {
		go handler(n)
	}
}

// CreateMatch starts a match and its turn clock, and schedules the first bot move if the
// opening seat is automated.
func (e *Engine) CreateMatch(req CreateMatchRequest) (*Snapshot, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	var rosters [2]pieces.Roster
	for i, seat := range req.Seats {
		r, err := e.catalog.Roster(seat.Roster)
		if err != nil {
			return nil, fmt.Errorf("seat %d roster: %w", i+1, err)
		}
		rosters[i] = r
	}
	match, err := NewMatch(MatchConfig{
		ID:        id,
		BoardSize: e.cfg.BoardSize,
		Rosters:   rosters,
		First:     req.First,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}

	em := &engineMatch{match: match}
	for i, seat := range req.Seats {
		p := board.Player(i + 1)
		em.seats[p] = seat
		if seat.Bot {
			em.rng[p] = e.cfg.NewRNG()
		}
	}
	em.clock = timer.NewTurnClock(e.cfg.Clock, e.cfg.TurnLimit, e.expireFunc(id))

	e.mu.Lock()
	if _, exists := e.matches[id]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMatchExists, id)
	}
	e.matches[id] = em
	e.mu.Unlock()

	e.journals.Start(id)

	em.mu.Lock()
	em.clock.Start(match.Active(), match.Turn())
	e.scheduleBot(id, em)
	snap := match.Snapshot()
	created := em.stamp(Notification{
		Type:      NotifyMatchCreated,
		MatchID:   id,
		Digest:    snap.Digest,
		Timestamp: time.Now(),
	})
	em.mu.Unlock()

	if e.logger != nil {
		e.logger.Info("match created",
			zap.String("match_id", id),
			zap.Ints("p1_roster", req.Seats[0].Roster),
			zap.Ints("p2_roster", req.Seats[1].Roster),
			zap.Bool("p1_bot", req.Seats[0].Bot),
			zap.Bool("p2_bot", req.Seats[1].Bot),
		)
	}
	e.emitNotification(created)
	return snap, nil
}

func (e *Engine) lookup(id string) (*engineMatch, error) {
	e.mu.RLock()
	em, ok := e.matches[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return em, nil
}

// Submit applies a player's intent. A rejection is a Result, not an error; errors are
// reserved for unknown matches.
func (e *Engine) Submit(matchID string, in Intent) (Result, []rules.Event, error) {
	em, err := e.lookup(matchID)
	if err != nil {
		return Result{}, nil, err
	}
	em.mu.Lock()
	defer em.mu.Unlock()

	res, events := e.applyLocked(matchID, em, in)
	return res, events, nil
}

// applyLocked runs an intent with em.mu held, then journals, re-arms timers and notifies.
func (e *Engine) applyLocked(id string, em *engineMatch, in Intent) (Result, []rules.Event) {
	turn := em.match.Turn()
	res, events := em.match.Apply(in)
	if !res.Accepted() {
		if e.logger != nil {
			e.logger.Debug("intent rejected",
				zap.String("match_id", id),
				zap.Stringer("player", in.Player),
				zap.String("intent", string(in.Kind)),
				zap.Stringer("reason", res.Rejection),
			)
		}
		return res, nil
	}

	digest := BoardDigest(em.match.Board())
	e.journals.Record(id, &JournalEntry{
		Intent:   in,
		Events:   events,
		Digest:   digest,
		Snapshot: em.match.Snapshot(),
	})

	switch {
	case em.match.Over():
		em.clock.Stop()
		em.cancelBot()
	case em.match.Turn() != turn:
		em.clock.Start(em.match.Active(), em.match.Turn())
		e.scheduleBot(id, em)
	}

	applied := in
	e.emitNotification(em.stamp(Notification{
		Type:      NotifyEvents,
		MatchID:   id,
		Player:    in.Player,
		Intent:    &applied,
		Events:    events,
		Digest:    digest,
		Timestamp: time.Now(),
	}))
	if em.match.Over() {
		e.emitNotification(em.stamp(Notification{
			Type:      NotifyMatchOver,
			MatchID:   id,
			Player:    em.match.Winner(),
			Digest:    digest,
			Timestamp: time.Now(),
		}))
	}
	return res, events
}

func (e *Engine) expireFunc(id string) timer.ExpireFunc {
	return func(p board.Player, turn int) {
		em, err := e.lookup(id)
		if err != nil {
			return
		}
		em.mu.Lock()
		defer em.mu.Unlock()
		if em.match.Over() || em.match.Active() != p || em.match.Turn() != turn {
			return
		}
		if e.logger != nil {
			e.logger.Info("turn timer expired",
				zap.String("match_id", id),
				zap.Stringer("player", p),
				zap.Int("turn", turn),
			)
		}
		e.applyLocked(id, em, Intent{Kind: IntentTimeout, Player: p})
	}
}

// scheduleBot queues the active seat's move when it is automated. em.mu must be held.
func (e *Engine) scheduleBot(id string, em *engineMatch) {
	em.cancelBot()
	if em.match.Over() {
		return
	}
	p, turn := em.match.Active(), em.match.Turn()
	if !em.seats[p].Bot {
		return
	}
	em.bot = e.cfg.Clock.AfterFunc(e.cfg.BotDelay, func() { e.botSelect(id, p, turn) })
}

func (e *Engine) botSelect(id string, p board.Player, turn int) {
	em, err := e.lookup(id)
	if err != nil {
		return
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if !em.botTurn(p, turn) {
		return
	}

	mv, ok := heuristic.Choose(em.match.HeuristicView(p), em.seats[p].Difficulty, em.rng[p])
	if !ok {
		if e.logger != nil {
			e.logger.Info("no legal move, passing", zap.String("match_id", id), zap.Stringer("player", p))
		}
		e.applyLocked(id, em, Intent{Kind: IntentPass, Player: p})
		return
	}
	if em.match.Armed(p) != mv.Slot {
		res, _ := e.applyLocked(id, em, Intent{Kind: IntentSelect, Player: p, Slot: mv.Slot})
		if !res.Accepted() {
			e.applyLocked(id, em, Intent{Kind: IntentPass, Player: p})
			return
		}
	}
	em.bot = e.cfg.Clock.AfterFunc(e.cfg.BotFollowUp, func() { e.botPlace(id, p, turn, mv.Pos) })
}

func (e *Engine) botPlace(id string, p board.Player, turn int, pos board.Pos) {
	em, err := e.lookup(id)
	if err != nil {
		return
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if !em.botTurn(p, turn) {
		return
	}
	res, _ := e.applyLocked(id, em, Intent{Kind: IntentPlace, Player: p, Pos: pos})
	if !res.Accepted() {
		if e.logger != nil {
			e.logger.Warn("bot placement rejected",
				zap.String("match_id", id),
				zap.Stringer("player", p),
				zap.Int("row", pos.Row),
				zap.Int("col", pos.Col),
				zap.Stringer("reason", res.Rejection),
			)
		}
		e.applyLocked(id, em, Intent{Kind: IntentPass, Player: p})
	}
}

// Snapshot returns a copy of a match's state.
func (e *Engine) Snapshot(matchID string) (*Snapshot, error) {
	em, err := e.lookup(matchID)
	if err != nil {
		return nil, err
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.match.Snapshot(), nil
}

// Remaining returns the time left on the active player's turn.
func (e *Engine) Remaining(matchID string) (time.Duration, error) {
	em, err := e.lookup(matchID)
	if err != nil {
		return 0, err
	}
	return em.clock.Remaining(), nil
}

// Journal returns a match's journal.
func (e *Engine) Journal(matchID string) (*Journal, error) {
	j, ok := e.journals.Get(matchID)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoJournal, matchID)
	}
	return j, nil
}

// MatchIDs lists the hosted matches.
func (e *Engine) MatchIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveMatch stops a match's timers and forgets it.
func (e *Engine) RemoveMatch(matchID string) error {
	e.mu.Lock()
	em, ok := e.matches[matchID]
	delete(e.matches, matchID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}

	em.mu.Lock()
	em.clock.Stop()
	em.cancelBot()
	em.mu.Unlock()
	e.journals.Drop(matchID)

	if e.logger != nil {
		e.logger.Info("match removed", zap.String("match_id", matchID))
	}
	return nil
}
