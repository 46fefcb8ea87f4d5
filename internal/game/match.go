package game

import (
	"errors"
	"fmt"
	"sort"

	"github.com/caroarena/caro-server-go/internal/game/abilities"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/energy"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
	"github.com/caroarena/caro-server-go/internal/game/watchers"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TurnAllowance is the temporary energy granted at the start of each own turn.
const TurnAllowance = 1

// SkillCost is what a completed teleport or swap costs.
const SkillCost = 1

// SwitchCost is charged when arming a different slot than the one armed.
const SwitchCost = 1

var (
	ErrInvalidRoster = errors.New("game: invalid roster")
	ErrInvalidPlayer = errors.New("game: invalid player")
)

// MatchConfig describes a new match.
type MatchConfig struct {
	ID        string
	BoardSize int
	// Rosters are indexed by seat: Rosters[0] is Player1.
	Rosters [2]pieces.Roster
	First   board.Player
	Logger  *zap.Logger
}

// ActiveLine is a credited winning run. It lives until one of its cells is vacated.
type ActiveLine struct {
	Owner board.Player `json:"owner"`
	Slot  int          `json:"slot"`
	Run   lines.Run    `json:"run"`
}

// Restriction confines Target's placements to the zone around Center.
type Restriction struct {
	Center board.Pos    `json:"center"`
	Target board.Player `json:"target"`
}

// Contains reports whether p lies in the restriction zone.
func (r Restriction) Contains(p board.Pos) bool {
	return abs(p.Row-r.Center.Row) <= abilities.RestrictRadius && abs(p.Col-r.Center.Col) <= abilities.RestrictRadius
}

type posSet map[board.Pos]bool

func newPosSet(cells []board.Pos) posSet {
	s := make(posSet, len(cells))
	for _, c := range cells {
		s[c] = true
	}
	return s
}

func (s posSet) sorted() []board.Pos {
	out := make([]board.Pos, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// Match is one game between two seats. It is not safe for concurrent use; the Engine
// serializes access.
type Match struct {
	id     string
	logger *zap.Logger

	board    *board.Board
	resolver *abilities.Resolver
	turns    *rules.TurnManager
	bus      *rules.EventBus
	registry *rules.WatcherRegistry
	plays    *watchers.PlayCountWatcher
	idle     *watchers.IdleTurnWatcher

	// Per-seat state, indexed by board.Player (index 0 unused).
	rosters     [3]pieces.Roster
	ledgers     [3]*energy.Ledger
	armed       [3]int
	credits     [3]lines.Credits
	forbidNow   [3]posSet
	forbidNext  [3]posSet
	lockNow     [3]posSet
	lockNext    [3]posSet
	pyroCharged [3][pieces.RosterSize]bool
	crossUsed   [3]bool

	activeLines []ActiveLine
	restriction *Restriction
	skillSource *board.Pos

	status rules.Status
	winner board.Player

	seq     int
	pending []rules.Event
}

// NewMatch builds a match ready for its first turn. The first player already holds the
// turn allowance.
func NewMatch(cfg MatchConfig) (*Match, error) {
	for i, r := range cfg.Rosters {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: seat %d: %v", ErrInvalidRoster, i+1, err)
		}
	}
	resolver, err := abilities.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("new match: %w", err)
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	m := &Match{
		id:       id,
		logger:   cfg.Logger,
		board:    board.New(cfg.BoardSize),
		resolver: resolver,
		turns:    rules.NewTurnManager(cfg.First),
		bus:      rules.NewEventBus(),
		registry: rules.NewWatcherRegistry(),
		plays:    watchers.NewPlayCountWatcher(),
		idle:     watchers.NewIdleTurnWatcher(),
		status:   rules.StatusInProgress,
	}
	m.registry.AddWatcher(m.plays)
	m.registry.AddWatcher(m.idle)
	m.bus.Subscribe(m.registry.NotifyWatchers)

	for _, p := range []board.Player{board.Player1, board.Player2} {
		m.rosters[p] = cfg.Rosters[p-1]
		m.ledgers[p] = energy.NewLedger()
		m.armed[p] = -1
	}
	m.ledgers[m.turns.ActivePlayer()].StartTurn(TurnAllowance)
	return m, nil
}

// ID returns the match id.
func (m *Match) ID() string { return m.id }

// Bus exposes the event bus. Listeners run synchronously inside operations.
func (m *Match) Bus() *rules.EventBus { return m.bus }

// Board returns the live board. Callers must not mutate it.
func (m *Match) Board() *board.Board { return m.board }

func (m *Match) Active() board.Player { return m.turns.ActivePlayer() }
func (m *Match) Turn() int { return m.turns.TurnNumber() }
func (m *Match) Phase() rules.Phase { return m.turns.Phase() }
func (m *Match) Status() rules.Status { return m.status }
func (m *Match) Winner() board.Player { return m.winner }
func (m *Match) Over() bool { return m.status != rules.StatusInProgress }
func (m *Match) Seq() int { return m.seq }
func (m *Match) Restriction() *Restriction {
	if m.restriction == nil {
		return nil
	}
	r := *m.restriction
	return &r
}

// Roster returns p's piece types.
func (m *Match) Roster(p board.Player) pieces.Roster {
	if !p.Valid() {
		return pieces.Roster{}
	}
	return m.rosters[p]
}

// Armed returns p's armed slot, -1 when none.
func (m *Match) Armed(p board.Player) int {
	if !p.Valid() {
		return -1
	}
	return m.armed[p]
}

// Credits returns p's completed-line flags.
func (m *Match) Credits(p board.Player) lines.Credits {
	if !p.Valid() {
		return lines.Credits{}
	}
	return m.credits[p]
}

// Energy returns a copy of p's ledger.
func (m *Match) Energy(p board.Player) energy.State {
	if !p.Valid() {
		return energy.State{}
	}
	return m.ledgers[p].Snapshot()
}

// ActiveLines returns the credited runs.
func (m *Match) ActiveLines() []ActiveLine {
	return append([]ActiveLine(nil), m.activeLines...)
}

// Blocked returns every cell p may not use on the current turn because of
// UnblockableOnFour or IsolationLock.
func (m *Match) Blocked(p board.Player) []board.Pos {
	if !p.Valid() {
		return nil
	}
	all := make(posSet)
	for c := range m.forbidNow[p] {
		all[c] = true
	}
	for c := range m.lockNow[p] {
		all[c] = true
	}
	return all.sorted()
}

// HeuristicView is what an automated player in seat p sees.
func (m *Match) HeuristicView(p board.Player) heuristic.View {
	v := heuristic.View{
		Board:     m.board,
		Player:    p,
		Roster:    m.Roster(p),
		Completed: m.Credits(p),
		Armed:     m.Armed(p),
		Forbidden: newPosSet(m.Blocked(p)),
	}
	if p.Valid() {
		v.Energy = m.ledgers[p].Total()
	}
	if m.restriction != nil && m.restriction.Target == p {
		center := m.restriction.Center
		v.Zone = &center
	}
	return v
}

// SelectPiece arms a roster slot. Arming the first slot of the match, or the slot already
// armed, is free; switching costs SwitchCost. Re-arming an armed teleport or swap type
// with energy to spare enters its targeting mode.
func (m *Match) SelectPiece(p board.Player, slot int) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	if slot < 0 || slot >= pieces.RosterSize {
		return reject(ReasonInvalidSlot, "slot %d", slot), nil
	}
	piece := m.rosters[p][slot]
	ledger := m.ledgers[p]

	if m.armed[p] == slot {
		if piece.Passive.IsActiveSkill() {
			if m.turns.Phase().IsSkill() {
				return accepted(), nil
			}
			if !ledger.CanAfford(SkillCost) {
				prompt := rules.NewEvent(rules.EventSkillPrompt, p)
				prompt.Slot = slot
				prompt.Message = "not enough energy"
				m.emit(prompt)
				return accepted(), m.flush()
			}
			phase := rules.PhaseTeleportArmed
			msg := "select an ally to move"
			if piece.Passive == pieces.ActiveSwapAllies {
				phase = rules.PhaseSwapArmed
				msg = "select the first ally"
			}
			m.enter(phase)
			m.skillSource = nil
			prompt := rules.NewEvent(rules.EventSkillPrompt, p)
			prompt.Slot = slot
			prompt.Message = msg
			m.emit(prompt)
			return accepted(), m.flush()
		}
		return accepted(), nil
	}

	if m.armed[p] >= 0 {
		granted, ok := ledger.Spend(SwitchCost)
		if !ok {
			return reject(ReasonInsufficientEnergy, "switching costs %d", SwitchCost), nil
		}
		m.emitEnergy(p, granted)
	}
	m.leaveSkill()
	m.armed[p] = slot
	armed := rules.NewEvent(rules.EventPieceArmed, p)
	armed.Slot = slot
	m.emit(armed)
	return accepted(), m.flush()
}

// PlaceAt writes the armed piece at pos and resolves the placement. A legal placement
// always ends the turn unless it wins the match.
func (m *Match) PlaceAt(p board.Player, pos board.Pos) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	slot := m.armed[p]
	if slot < 0 {
		return reject(ReasonNoPieceArmed, ""), nil
	}
	if r := m.checkPlacement(p, pos, slot); !r.Accepted() {
		return r, nil
	}

	piece := m.rosters[p][slot]
	cell := m.board.Get(pos)
	replacing := !cell.IsEmpty()

	m.leaveSkill()
	m.enter(rules.PhasePiecePlacement)
	granted, _ := m.ledgers[p].Spend(piece.EnergyCost)
	if piece.EnergyCost > 0 {
		m.emitEnergy(p, granted)
	}

	explosive := false
	if replacing {
		explosive = m.resolver.ReplaceOccupant(m.host(), pos)
	}
	m.board.Place(pos, p, piece)
	m.emit(rules.NewCellEvent(pos, m.board.Get(pos)))
	placed := rules.NewEvent(rules.EventPiecePlaced, p).WithPos(pos)
	placed.Slot = slot
	m.emit(placed)

	if m.logger != nil {
		m.logger.Debug("piece placed",
			zap.String("match_id", m.id),
			zap.Stringer("player", p),
			zap.Int("row", pos.Row),
			zap.Int("col", pos.Col),
			zap.Int("slot", slot),
		)
	}

	m.enter(rules.PhaseEffectResolution)
	m.resolver.OnPlace(m.host(), pos, p, piece)
	m.recheck(pos)
	if explosive {
		m.resolver.Destroy(m.host(), pos, abilities.NoEffects)
	}

	m.enter(rules.PhaseWinCheck)
	if m.checkVictory(p) {
		return accepted(), m.flush()
	}
	m.enter(rules.PhaseTurnAdvance)
	m.advance()
	return accepted(), m.flush()
}

// Target is a board click while a teleport or swap is armed.
func (m *Match) Target(p board.Player, pos board.Pos) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	phase := m.turns.Phase()
	if !phase.IsSkill() {
		return reject(ReasonNotInSkillMode, ""), nil
	}
	if !m.board.InBounds(pos) {
		return reject(ReasonOutOfBounds, "%s", pos), nil
	}
	cell := m.board.Get(pos)

	if m.skillSource == nil {
		if cell.Owner != p {
			return reject(ReasonInvalidTarget, "%s is not an ally", pos), nil
		}
		src := pos
		m.skillSource = &src
		prompt := rules.NewEvent(rules.EventSkillPrompt, p).WithPos(pos)
		prompt.Slot = m.armed[p]
		prompt.Message = "select the destination"
		if phase == rules.PhaseSwapArmed {
			prompt.Message = "select the second ally"
		}
		m.emit(prompt)
		return accepted(), m.flush()
	}

	src := *m.skillSource
	switch phase {
	case rules.PhaseTeleportArmed:
		if !cell.Open() {
			return reject(ReasonInvalidTarget, "%s is not empty", pos), nil
		}
	case rules.PhaseSwapArmed:
		if cell.Owner != p || pos == src {
			return reject(ReasonInvalidTarget, "%s is not another ally", pos), nil
		}
	}
	granted, ok := m.ledgers[p].Spend(SkillCost)
	if !ok {
		return reject(ReasonInsufficientEnergy, "skill costs %d", SkillCost), nil
	}
	m.emitEnergy(p, granted)

	if phase == rules.PhaseTeleportArmed {
		m.resolver.Teleport(m.host(), src, pos)
		m.recheck(pos)
	} else {
		m.resolver.Swap(m.host(), src, pos)
		m.recheck(src)
		m.recheck(pos)
	}
	m.skillSource = nil

	m.enter(rules.PhaseWinCheck)
	if !m.checkVictory(p) {
		m.enter(rules.PhaseAwaitingSelection)
	}
	return accepted(), m.flush()
}

// Cancel leaves a teleport or swap targeting mode without spending anything.
func (m *Match) Cancel(p board.Player) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	if !m.turns.Phase().IsSkill() {
		return reject(ReasonNotInSkillMode, ""), nil
	}
	m.leaveSkill()
	prompt := rules.NewEvent(rules.EventSkillPrompt, p)
	prompt.Message = "cancelled"
	m.emit(prompt)
	return accepted(), m.flush()
}

// ForcedPass ends p's turn without a placement.
func (m *Match) ForcedPass(p board.Player) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	m.emit(rules.NewEvent(rules.EventForcedPass, p))
	m.leaveSkill()
	m.enter(rules.PhaseTurnAdvance)
	m.advance()
	return accepted(), m.flush()
}

// Timeout ends the match with a loss for p, who must be the active player.
func (m *Match) Timeout(p board.Player) (Result, []rules.Event) {
	if r := m.checkTurn(p); !r.Accepted() {
		return r, nil
	}
	m.skillSource = nil
	timeout := rules.NewEvent(rules.EventTimeout, p)
	timeout.Turn = m.turns.TurnNumber()
	m.emit(timeout)
	m.finish(p.Opponent(), rules.StatusTimedOut)
	return accepted(), m.flush()
}

func (m *Match) checkTurn(p board.Player) Result {
	switch {
	case !p.Valid():
		return reject(ReasonInvalidPlayer, "%d", int(p))
	case m.Over():
		return reject(ReasonMatchOver, "")
	case p != m.turns.ActivePlayer():
		return reject(ReasonNotYourTurn, "")
	}
	return accepted()
}

// checkPlacement applies the legality rules in order without mutating anything.
func (m *Match) checkPlacement(p board.Player, pos board.Pos, slot int) Result {
	if !m.board.InBounds(pos) {
		return reject(ReasonOutOfBounds, "%s", pos)
	}
	piece := m.rosters[p][slot]
	cell := m.board.Get(pos)

	switch {
	case cell.Lava:
		return reject(ReasonLava, "%s", pos)
	case !cell.IsEmpty():
		if piece.Passive != pieces.AllyReplace || cell.Owner != p {
			return reject(ReasonOccupied, "%s", pos)
		}
	case m.forbidNow[p][pos]:
		return reject(ReasonForbidden, "%s", pos)
	case m.lockNow[p][pos]:
		return reject(ReasonLocked, "%s", pos)
	case m.restriction != nil && m.restriction.Target == p && !m.restriction.Contains(pos):
		return reject(ReasonOutsideRestriction, "%s", pos)
	}
	if !m.ledgers[p].CanAfford(piece.EnergyCost) {
		return reject(ReasonInsufficientEnergy, "%s costs %d", piece.Name, piece.EnergyCost)
	}
	return accepted()
}

// recheck credits a run through pos for its owner, if any.
func (m *Match) recheck(pos board.Pos) {
	cell := m.board.Get(pos)
	if cell.IsEmpty() {
		return
	}
	owner := cell.Owner
	roster := m.rosters[owner]
	run, slot, ok := lines.CheckPlaced(m.board, pos, owner, cell.Piece, roster)
	if !ok || m.credits[owner][slot] {
		return
	}
	m.credits[owner][slot] = true
	m.activeLines = append(m.activeLines, ActiveLine{Owner: owner, Slot: slot, Run: run})
	m.emit(rules.NewLineEvent(rules.EventLineDrawn, owner, slot, run.Cells))
	m.resolver.OnLineCompleted(m.host(), owner, roster[slot], slot, run)
}

func (m *Match) checkVictory(p board.Player) bool {
	if !m.credits[p].Wins() {
		return false
	}
	m.finish(p, rules.StatusWon)
	return true
}

func (m *Match) finish(winner board.Player, status rules.Status) {
	m.status = status
	m.winner = winner
	m.turns.Finish()
	victory := rules.NewEvent(rules.EventVictory, winner)
	victory.Turn = m.turns.TurnNumber()
	m.emit(victory)
	if m.logger != nil {
		m.logger.Info("match finished",
			zap.String("match_id", m.id),
			zap.Stringer("winner", winner),
			zap.Stringer("status", status),
			zap.Int("turn", m.turns.TurnNumber()),
		)
	}
}

// advance hands the turn over and runs the start-of-turn steps for the new player.
func (m *Match) advance() {
	out := m.turns.ActivePlayer()
	m.skillSource = nil
	m.ledgers[out].EndTurn()
	m.emitEnergy(out, 0)
	m.forbidNow[out] = nil
	m.lockNow[out] = nil

	next := m.turns.Advance()
	turn := rules.NewEvent(rules.EventTurnChanged, next)
	turn.Turn = m.turns.TurnNumber()
	m.emit(turn)

	for slot, piece := range m.rosters[next] {
		if piece.Passive == pieces.PyroRage && m.idle.Idle(next, slot) >= 4 && !m.pyroCharged[next][slot] {
			m.pyroCharged[next][slot] = true
			if m.logger != nil {
				m.logger.Debug("pyro rage charged",
					zap.String("match_id", m.id),
					zap.Stringer("player", next),
					zap.Int("slot", slot),
				)
			}
		}
	}

	m.forbidNow[next], m.forbidNext[next] = m.forbidNext[next], nil
	m.lockNow[next], m.lockNext[next] = m.lockNext[next], nil

	for _, pos := range m.board.Occupied() {
		cell := m.board.Get(pos)
		if cell.Owner != next || cell.Burn <= 0 {
			continue
		}
		m.board.Update(pos, func(c *board.Cell) { c.Burn-- })
		if m.board.Get(pos).Burn <= 0 {
			m.resolver.Destroy(m.host(), pos, abilities.FullEffects)
			continue
		}
		m.emit(rules.NewCellEvent(pos, m.board.Get(pos)))
	}

	m.ledgers[next].StartTurn(TurnAllowance)
	m.emitEnergy(next, 0)

	if m.restriction != nil && m.restriction.Target != next {
		m.restriction = nil
	}
}

func (m *Match) leaveSkill() {
	m.skillSource = nil
	if m.turns.Phase().IsSkill() {
		m.enter(rules.PhaseAwaitingSelection)
	}
}

// enter moves the turn manager. A refused transition is a sequencing bug; it is logged
// and the phase is left unchanged.
func (m *Match) enter(phase rules.Phase) {
	if err := m.turns.Enter(phase); err != nil && m.logger != nil {
		m.logger.Error("phase transition refused", zap.String("match_id", m.id), zap.Error(err))
	}
}

func (m *Match) emit(evt rules.Event) {
	m.seq++
	evt.Seq = m.seq
	m.pending = append(m.pending, evt)
	m.bus.Publish(evt)
}

func (m *Match) emitEnergy(p board.Player, granted int) {
	l := m.ledgers[p]
	evt := rules.NewEnergyEvent(p, l.Temporary(), l.Permanent())
	evt.Amount = granted
	m.emit(evt)
}

func (m *Match) flush() []rules.Event {
	out := m.pending
	m.pending = nil
	return out
}

func (m *Match) retractLinesAt(pos board.Pos) {
	kept := m.activeLines[:0]
	var dropped []ActiveLine
	for _, line := range m.activeLines {
		if line.Run.Contains(pos) {
			dropped = append(dropped, line)
			continue
		}
		kept = append(kept, line)
	}
	m.activeLines = kept
	for _, line := range dropped {
		m.credits[line.Owner][line.Slot] = false
		m.emit(rules.NewLineEvent(rules.EventLineRetracted, line.Owner, line.Slot, line.Run.Cells))
	}
}

func (m *Match) host() abilities.Host { return matchHost{m} }

// matchHost is the view of a match handed to ability handlers.
type matchHost struct{ m *Match }

func (h matchHost) Board() *board.Board { return h.m.board }
func (h matchHost) Ledger(p board.Player) *energy.Ledger { return h.m.ledgers[p] }
func (h matchHost) Emit(evt rules.Event) { h.m.emit(evt) }
func (h matchHost) RetractLinesAt(pos board.Pos) { h.m.retractLinesAt(pos) }
func (h matchHost) PlayCount(p board.Player, slot int) int { return h.m.plays.Plays(p, slot) }

func (h matchHost) ForbidNextTurn(p board.Player, cells []board.Pos) {
	h.m.forbidNext[p] = newPosSet(cells)
}

func (h matchHost) LockNextTurn(p board.Player, cells []board.Pos) {
	if h.m.lockNext[p] == nil {
		h.m.lockNext[p] = make(posSet)
	}
	for _, c := range cells {
		h.m.lockNext[p][c] = true
	}
}

func (h matchHost) Restrict(center board.Pos, target board.Player) {
	h.m.restriction = &Restriction{Center: center, Target: target}
}

func (h matchHost) SlotOf(p board.Player, piece *pieces.PieceType) int {
	return h.m.rosters[p].Slot(piece)
}

func (h matchHost) ConsumePyroCharge(p board.Player, slot int) bool {
	if slot < 0 || slot >= pieces.RosterSize || !h.m.pyroCharged[p][slot] {
		return false
	}
	h.m.pyroCharged[p][slot] = false
	return true
}

func (h matchHost) ClaimCrossStrike(p board.Player) bool {
	if h.m.crossUsed[p] {
		return false
	}
	h.m.crossUsed[p] = true
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
