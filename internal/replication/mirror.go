package replication

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/energy"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
	"go.uber.org/zap"
)

var (
	ErrNotBootstrapped = errors.New("replication: mirror has no snapshot")
	ErrMatchMismatch   = errors.New("replication: envelope is for another match")
	ErrSequenceGap     = errors.New("replication: missing events")
	ErrDivergence      = errors.New("replication: mirror diverged from authority")
)

// Mirror is a read-only copy of a match rebuilt from the authority's events. It never
// evaluates rules; it only replays what it is told.
type Mirror struct {
	logger  *zap.Logger
	catalog *pieces.Catalog

	mu      sync.RWMutex
	ready   bool
	matchID string
	board   *board.Board
	seq     int
	turn    int
	active  board.Player
	status  rules.Status
	winner  board.Player
	credits [3]lines.Credits
	energy  [3]energy.State
}

// NewMirror creates an empty mirror. It needs a snapshot before it accepts events.
func NewMirror(logger *zap.Logger, catalog *pieces.Catalog) *Mirror {
	return &Mirror{logger: logger, catalog: catalog}
}

// Load replaces the mirror's state with a snapshot.
func (m *Mirror) Load(s *game.Snapshot) error {
	if err := s.VerifyChecksum(); err != nil {
		return fmt.Errorf("%w: %w", ErrDivergence, err)
	}
	b, err := s.BuildBoard(m.catalog)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if got := game.BoardDigest(b); got != s.Digest {
		return fmt.Errorf("%w: snapshot digest %s, board hashes to %s", ErrDivergence, s.Digest, got)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	m.matchID = s.MatchID
	m.board = b
	m.seq = s.Seq
	m.turn = s.Turn
	m.active = s.Active
	m.status = s.Status
	m.winner = s.Winner
	m.credits = [3]lines.Credits{}
	m.energy = [3]energy.State{}
	for _, seat := range s.Seats {
		if !seat.Player.Valid() {
			continue
		}
		m.credits[seat.Player] = seat.Credits
		m.energy[seat.Player] = energy.State{Temporary: seat.Energy.Temporary, Permanent: seat.Energy.Permanent}
	}
	return nil
}

// Apply folds an envelope into the mirror. Events already covered by the mirror's
// sequence are skipped. When the envelope ends at the mirror's sequence its digest is
// checked against the local board.
func (m *Mirror) Apply(env Envelope) error {
	if env.Kind == KindSnapshot {
		if env.Snapshot == nil {
			return fmt.Errorf("%w: snapshot envelope without snapshot", ErrMalformedEnvelope)
		}
		if m.MatchID() != "" && env.MatchID != m.MatchID() {
			return fmt.Errorf("%w: %s", ErrMatchMismatch, env.MatchID)
		}
		return m.Load(env.Snapshot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotBootstrapped
	}
	if env.MatchID != m.matchID {
		return fmt.Errorf("%w: %s", ErrMatchMismatch, env.MatchID)
	}

	switch env.Kind {
	case KindEvents, KindMatchOver:
	default:
		return nil
	}

	for _, evt := range env.Events {
		if evt.Seq <= m.seq {
			continue
		}
		if evt.Seq != m.seq+1 {
			return fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, m.seq, evt.Seq)
		}
		if err := m.applyEvent(evt); err != nil {
			return err
		}
		m.seq = evt.Seq
	}
	if env.Kind == KindMatchOver && env.Winner.Valid() {
		m.winner = env.Winner
	}

	if env.Digest != "" && env.Seq == m.seq {
		if got := game.BoardDigest(m.board); got != env.Digest {
			if m.logger != nil {
				m.logger.Warn("mirror diverged",
					zap.String("match_id", m.matchID),
					zap.Int("seq", m.seq),
					zap.String("want", env.Digest),
					zap.String("got", got),
				)
			}
			return fmt.Errorf("%w at seq %d", ErrDivergence, m.seq)
		}
	}
	return nil
}

func (m *Mirror) applyEvent(evt rules.Event) error {
	switch evt.Type {
	case rules.EventCellChanged:
		if evt.Pos == nil || evt.Cell == nil || !m.board.InBounds(*evt.Pos) {
			return fmt.Errorf("%w: bad cell event %d", ErrDivergence, evt.Seq)
		}
		cell, err := evt.Cell.Resolve(m.catalog)
		if err != nil {
			return fmt.Errorf("cell event %d: %w", evt.Seq, err)
		}
		m.board.Set(*evt.Pos, cell)

	case rules.EventLineDrawn, rules.EventLineRetracted:
		if !evt.Player.Valid() || evt.Slot < 0 || evt.Slot >= pieces.RosterSize {
			return fmt.Errorf("%w: bad line event %d", ErrDivergence, evt.Seq)
		}
		m.credits[evt.Player][evt.Slot] = evt.Type == rules.EventLineDrawn

	case rules.EventEnergyChanged:
		if evt.Player.Valid() {
			m.energy[evt.Player] = energy.State{Temporary: evt.Temporary, Permanent: evt.Permanent}
		}

	case rules.EventTurnChanged:
		m.active = evt.Player
		m.turn = evt.Turn

	case rules.EventTimeout:
		m.status = rules.StatusTimedOut

	case rules.EventVictory:
		m.winner = evt.Player
		if m.status == rules.StatusInProgress {
			m.status = rules.StatusWon
		}
	}
	return nil
}

func (m *Mirror) MatchID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matchID
}

func (m *Mirror) Seq() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

func (m *Mirror) Turn() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turn
}

func (m *Mirror) Active() board.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Mirror) Status() rules.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Mirror) Winner() board.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.winner
}

func (m *Mirror) Credits(p board.Player) lines.Credits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !p.Valid() {
		return lines.Credits{}
	}
	return m.credits[p]
}

// Energy returns p's pools as last reported. Accrual state is not replicated.
func (m *Mirror) Energy(p board.Player) energy.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !p.Valid() {
		return energy.State{}
	}
	return m.energy[p]
}

// Board returns a copy of the mirrored board.
func (m *Mirror) Board() *board.Board {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.board == nil {
		return nil
	}
	return m.board.Clone()
}

// Digest hashes the mirrored board.
func (m *Mirror) Digest() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.board == nil {
		return ""
	}
	return game.BoardDigest(m.board)
}
