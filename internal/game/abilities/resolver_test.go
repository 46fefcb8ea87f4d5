package abilities

import (
	"testing"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/energy"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	b         *board.Board
	ledgers   map[board.Player]*energy.Ledger
	events    []rules.Event
	retracted []board.Pos
	forbidden map[board.Player][]board.Pos
	locked    map[board.Player][]board.Pos
	restrict  *board.Pos
	target    board.Player
	rosters   map[board.Player]pieces.Roster
	plays     map[board.Player]*[pieces.RosterSize]int
	charged   map[board.Player]*[pieces.RosterSize]bool
	crossUsed map[board.Player]bool
}

func newFakeHost(size int) *fakeHost {
	return &fakeHost{
		b:         board.New(size),
		ledgers:   map[board.Player]*energy.Ledger{board.Player1: energy.NewLedger(), board.Player2: energy.NewLedger()},
		forbidden: make(map[board.Player][]board.Pos),
		locked:    make(map[board.Player][]board.Pos),
		rosters:   make(map[board.Player]pieces.Roster),
		plays:     map[board.Player]*[pieces.RosterSize]int{board.Player1: {}, board.Player2: {}},
		charged:   map[board.Player]*[pieces.RosterSize]bool{board.Player1: {}, board.Player2: {}},
		crossUsed: make(map[board.Player]bool),
	}
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver()
	require.NoError(t, err)
	return r
}

func (h *fakeHost) Board() *board.Board                  { return h.b }
func (h *fakeHost) Ledger(p board.Player) *energy.Ledger { return h.ledgers[p] }
func (h *fakeHost) Emit(evt rules.Event)                 { h.events = append(h.events, evt) }
func (h *fakeHost) RetractLinesAt(pos board.Pos)         { h.retracted = append(h.retracted, pos) }
func (h *fakeHost) ForbidNextTurn(p board.Player, cells []board.Pos) {
	h.forbidden[p] = cells
}
func (h *fakeHost) LockNextTurn(p board.Player, cells []board.Pos) {
	h.locked[p] = append(h.locked[p], cells...)
}
func (h *fakeHost) Restrict(center board.Pos, target board.Player) {
	h.restrict = &center
	h.target = target
}
func (h *fakeHost) SlotOf(p board.Player, piece *pieces.PieceType) int {
	return h.rosters[p].Slot(piece)
}
func (h *fakeHost) PlayCount(p board.Player, slot int) int {
	if slot < 0 {
		return 0
	}
	return h.plays[p][slot]
}
func (h *fakeHost) ConsumePyroCharge(p board.Player, slot int) bool {
	if slot < 0 || !h.charged[p][slot] {
		return false
	}
	h.charged[p][slot] = false
	return true
}
func (h *fakeHost) ClaimCrossStrike(p board.Player) bool {
	if h.crossUsed[p] {
		return false
	}
	h.crossUsed[p] = true
	return true
}

func (h *fakeHost) count(t rules.EventType) int {
	n := 0
	for _, e := range h.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func piece(t *testing.T, passive pieces.Passive) *pieces.PieceType {
	t.Helper()
	p, ok := pieces.Default().ByPassive(passive)
	require.True(t, ok, "no default piece for %s", passive)
	return p
}

var pawn = &pieces.PieceType{ID: 99, Name: "Pawn"}

func pos(r, c int) board.Pos { return board.Pos{Row: r, Col: c} }

func TestEveryPassiveHasAHandler(t *testing.T) {
	for _, p := range append([]pieces.Passive{pieces.PassiveNone}, pieces.AllPassives()...) {
		h, err := New(p)
		require.NoError(t, err, p.String())
		assert.NotNil(t, h)
	}
	r, err := NewResolver()
	require.NoError(t, err)
	assert.Len(t, r.handlers, pieces.PassiveCount+1)
}

func TestRegisterErrors(t *testing.T) {
	ctor := func() Handler { return HandlerFuncs{} }
	assert.ErrorIs(t, Register(pieces.RestrictArea, ctor), ErrDuplicateRegistration)
	assert.ErrorIs(t, Register(pieces.RestrictArea, nil), ErrNilFactory)
	assert.ErrorIs(t, Register(pieces.Passive(99), ctor), ErrInvalidPassive)

	_, err := New(pieces.Passive(99))
	assert.ErrorIs(t, err, ErrUnknownPassive)
}

func TestDestroyEmptyIsNoop(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	r.Destroy(h, pos(3, 3), FullEffects)
	r.Destroy(h, pos(-1, 3), FullEffects)
	assert.Empty(t, h.events)
	assert.Empty(t, h.retracted)
}

func TestExplodeOnDeathChainsExactlyOnce(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	keg := piece(t, pieces.ExplodeOnDeath)

	h.b.Place(pos(5, 5), board.Player1, keg)
	h.b.Place(pos(5, 6), board.Player2, keg)
	h.b.Place(pos(5, 7), board.Player1, pawn)
	h.b.Place(pos(4, 4), board.Player2, pawn)
	h.b.Place(pos(0, 0), board.Player2, pawn)

	r.Destroy(h, pos(5, 5), FullEffects)

	assert.Equal(t, []board.Pos{{Row: 0, Col: 0}}, h.b.Occupied())
	assert.Equal(t, 2, h.count(rules.EventExplosion))

	changed := make(map[board.Pos]int)
	for _, e := range h.events {
		if e.Type == rules.EventCellChanged {
			changed[*e.Pos]++
		}
	}
	assert.Equal(t, map[board.Pos]int{{Row: 5, Col: 5}: 1, {Row: 5, Col: 6}: 1, {Row: 5, Col: 7}: 1, {Row: 4, Col: 4}: 1}, changed)
}

func TestExplodeSuppressed(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	h.b.Place(pos(5, 5), board.Player1, piece(t, pieces.ExplodeOnDeath))
	h.b.Place(pos(5, 6), board.Player2, pawn)

	r.Destroy(h, pos(5, 5), NoEffects)
	assert.False(t, h.b.Get(pos(5, 6)).IsEmpty())
	assert.Zero(t, h.count(rules.EventExplosion))
}

func TestLavaSpawnOnDeath(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	magma := piece(t, pieces.LavaSpawnOnDeath)

	h.b.Place(pos(2, 2), board.Player1, magma)
	r.Destroy(h, pos(2, 2), FullEffects)
	assert.Equal(t, board.Cell{Lava: true}, h.b.Get(pos(2, 2)))

	// Destroying lava does nothing.
	before := len(h.events)
	r.Destroy(h, pos(2, 2), FullEffects)
	assert.Len(t, h.events, before)

	h.b.Place(pos(3, 3), board.Player1, magma)
	r.Destroy(h, pos(3, 3), ReplaceEffects)
	assert.Equal(t, board.Cell{}, h.b.Get(pos(3, 3)))
}

func TestDeathMarkAccumulates(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	reaper := piece(t, pieces.DeathMark)

	h.b.Place(pos(5, 5), board.Player1, reaper)
	h.b.Place(pos(5, 6), board.Player2, pawn)
	h.b.Update(pos(5, 6), func(c *board.Cell) { c.DeathMarks = 1 })
	h.b.Place(pos(4, 4), board.Player2, pawn)
	h.b.Place(pos(6, 6), board.Player1, pawn)

	r.Destroy(h, pos(5, 5), FullEffects)

	assert.True(t, h.b.Get(pos(5, 6)).IsEmpty())
	assert.Equal(t, 1, h.b.Get(pos(4, 4)).DeathMarks)
	assert.Zero(t, h.b.Get(pos(6, 6)).DeathMarks)

	h.b.Place(pos(8, 8), board.Player1, reaper)
	h.b.Place(pos(8, 9), board.Player2, pawn)
	r.Destroy(h, pos(8, 8), ReplaceEffects)
	assert.Equal(t, 1, h.b.Get(pos(8, 9)).DeathMarks)

	h.b.Place(pos(1, 1), board.Player1, reaper)
	h.b.Place(pos(1, 2), board.Player2, pawn)
	r.Destroy(h, pos(1, 1), NoEffects)
	assert.Zero(t, h.b.Get(pos(1, 2)).DeathMarks)
}

func TestDestroyRetractsLinesAndAnchor(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	conduit := piece(t, pieces.EnergySpendGrant)

	h.b.Place(pos(4, 4), board.Player1, conduit)
	r.OnPlace(h, pos(4, 4), board.Player1, conduit)
	anchor, ok := h.ledgers[board.Player1].Anchor()
	require.True(t, ok)
	assert.Equal(t, pos(4, 4), anchor)

	r.Destroy(h, pos(4, 4), FullEffects)
	_, ok = h.ledgers[board.Player1].Anchor()
	assert.False(t, ok)
	assert.Equal(t, []board.Pos{{Row: 4, Col: 4}}, h.retracted)
}

func TestCrossStrikeFirstUseOnly(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	striker := piece(t, pieces.CrossStrike)

	for _, p := range []board.Pos{{Row: 4, Col: 5}, {Row: 6, Col: 5}, {Row: 5, Col: 4}} {
		h.b.Place(p, board.Player2, pawn)
	}
	h.b.Place(pos(5, 6), board.Player1, pawn)
	h.b.Place(pos(4, 4), board.Player2, pawn)

	h.b.Place(pos(5, 5), board.Player1, striker)
	r.OnPlace(h, pos(5, 5), board.Player1, striker)

	for _, p := range []board.Pos{{Row: 4, Col: 5}, {Row: 6, Col: 5}, {Row: 5, Col: 4}, {Row: 5, Col: 6}} {
		assert.True(t, h.b.Get(p).IsEmpty(), p.String())
	}
	assert.False(t, h.b.Get(pos(4, 4)).IsEmpty())

	h.b.Place(pos(1, 2), board.Player2, pawn)
	h.b.Place(pos(1, 1), board.Player1, striker)
	r.OnPlace(h, pos(1, 1), board.Player1, striker)
	assert.False(t, h.b.Get(pos(1, 2)).IsEmpty())

	// The other player still has a first use.
	h.b.Place(pos(8, 2), board.Player1, pawn)
	h.b.Place(pos(8, 1), board.Player2, striker)
	r.OnPlace(h, pos(8, 1), board.Player2, striker)
	assert.True(t, h.b.Get(pos(8, 2)).IsEmpty())
}

func TestIsolationLock(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	hermit := piece(t, pieces.IsolationLock)

	h.b.Place(pos(0, 0), board.Player1, hermit)
	r.OnPlace(h, pos(0, 0), board.Player1, hermit)
	assert.ElementsMatch(t, []board.Pos{{Row: 0, Col: 1}, {Row: 1, Col: 0}, {Row: 1, Col: 1}}, h.locked[board.Player2])

	h2 := newFakeHost(10)
	h2.b.Place(pos(5, 6), board.Player2, pawn)
	h2.b.Place(pos(5, 5), board.Player1, hermit)
	r.OnPlace(h2, pos(5, 5), board.Player1, hermit)
	assert.Empty(t, h2.locked[board.Player2])
}

func TestUnblockableOnFourForbidsOpenEnds(t *testing.T) {
	h := newFakeHost(30)
	r := newResolver(t)
	lancer := piece(t, pieces.UnblockableOnFour)

	for c := 5; c <= 8; c++ {
		h.b.Place(pos(5, c), board.Player1, lancer)
	}
	r.OnPlace(h, pos(5, 8), board.Player1, lancer)
	assert.Equal(t, []board.Pos{{Row: 5, Col: 4}, {Row: 5, Col: 9}}, h.forbidden[board.Player2])

	h.b.Place(pos(5, 9), board.Player2, pawn)
	r.OnPlace(h, pos(5, 8), board.Player1, lancer)
	assert.Equal(t, []board.Pos{{Row: 5, Col: 4}}, h.forbidden[board.Player2])

	h3 := newFakeHost(30)
	for c := 5; c <= 7; c++ {
		h3.b.Place(pos(5, c), board.Player1, lancer)
	}
	r.OnPlace(h3, pos(5, 7), board.Player1, lancer)
	_, set := h3.forbidden[board.Player2]
	assert.False(t, set)
}

func TestGainEnergyEverySecondPlay(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	spark := piece(t, pieces.GainEnergyEvery2Plays)
	h.rosters[board.Player1] = pieces.Roster{pawn, spark, piece(t, pieces.DeathMark)}

	h.plays[board.Player1][1] = 1
	r.OnPlace(h, pos(1, 1), board.Player1, spark)
	assert.Zero(t, h.ledgers[board.Player1].Permanent())

	h.plays[board.Player1][1] = 2
	r.OnPlace(h, pos(1, 2), board.Player1, spark)
	assert.Equal(t, 1, h.ledgers[board.Player1].Permanent())
	assert.Equal(t, 1, h.count(rules.EventEnergyChanged))
}

func TestPyroRageBurnsLeftAndRight(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	ember := piece(t, pieces.PyroRage)
	h.rosters[board.Player1] = pieces.Roster{ember, pawn, piece(t, pieces.DeathMark)}

	h.b.Place(pos(3, 2), board.Player2, pawn)
	h.b.Place(pos(3, 4), board.Player1, pawn)
	h.b.Place(pos(2, 3), board.Player2, pawn)
	h.b.Place(pos(3, 3), board.Player1, ember)

	r.OnPlace(h, pos(3, 3), board.Player1, ember)
	assert.Zero(t, h.b.Get(pos(3, 2)).Burn, "uncharged")

	h.charged[board.Player1][0] = true
	r.OnPlace(h, pos(3, 3), board.Player1, ember)
	assert.Equal(t, PyroBurn, h.b.Get(pos(3, 2)).Burn)
	assert.Zero(t, h.b.Get(pos(3, 4)).Burn)
	assert.Zero(t, h.b.Get(pos(2, 3)).Burn)
	assert.False(t, h.charged[board.Player1][0])
}

func TestRestrictAreaTargetsOpponent(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	r.OnPlace(h, pos(7, 7), board.Player2, piece(t, pieces.RestrictArea))
	require.NotNil(t, h.restrict)
	assert.Equal(t, pos(7, 7), *h.restrict)
	assert.Equal(t, board.Player1, h.target)
}

func TestWinLineExplode(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	herald := piece(t, pieces.WinLineExplode)

	for c := 0; c < 5; c++ {
		h.b.Place(pos(5, c), board.Player1, herald)
	}
	h.b.Place(pos(4, 2), board.Player2, pawn)
	h.b.Place(pos(6, 3), board.Player1, pawn)
	h.b.Place(pos(4, 5), board.Player2, pawn)

	run, ok := lines.Check(h.b, pos(5, 2), board.Player1, herald)
	require.True(t, ok)
	r.OnLineCompleted(h, board.Player1, herald, 0, run)

	assert.True(t, h.b.Get(pos(4, 2)).IsEmpty())
	assert.True(t, h.b.Get(pos(6, 3)).IsEmpty())
	assert.False(t, h.b.Get(pos(4, 5)).IsEmpty(), "diagonal to the line")
	for c := 0; c < 5; c++ {
		assert.False(t, h.b.Get(pos(5, c)).IsEmpty())
	}
}

func TestReplaceOccupant(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	magma := piece(t, pieces.LavaSpawnOnDeath)
	keg := piece(t, pieces.ExplodeOnDeath)

	h.b.Place(pos(2, 2), board.Player1, magma)
	assert.False(t, r.ReplaceOccupant(h, pos(2, 2)))
	assert.Equal(t, board.Cell{}, h.b.Get(pos(2, 2)), "no lava under a replacement")

	h.b.Place(pos(6, 6), board.Player1, keg)
	h.b.Place(pos(6, 7), board.Player2, pawn)
	assert.True(t, r.ReplaceOccupant(h, pos(6, 6)))
	assert.True(t, h.b.Get(pos(6, 7)).IsEmpty())
}

func TestTeleportAndSwapMoveAnchor(t *testing.T) {
	h := newFakeHost(10)
	r := newResolver(t)
	conduit := piece(t, pieces.EnergySpendGrant)

	h.b.Place(pos(1, 1), board.Player1, conduit)
	h.b.Update(pos(1, 1), func(c *board.Cell) { c.Burn = 1 })
	h.ledgers[board.Player1].SetAnchor(pos(1, 1))

	r.Teleport(h, pos(1, 1), pos(7, 7))
	assert.True(t, h.b.Get(pos(1, 1)).IsEmpty())
	assert.Equal(t, 1, h.b.Get(pos(7, 7)).Burn)
	anchor, _ := h.ledgers[board.Player1].Anchor()
	assert.Equal(t, pos(7, 7), anchor)

	h.b.Place(pos(2, 2), board.Player1, pawn)
	r.Swap(h, pos(2, 2), pos(7, 7))
	assert.Equal(t, conduit, h.b.Get(pos(2, 2)).Piece)
	assert.Equal(t, pawn, h.b.Get(pos(7, 7)).Piece)
	anchor, _ = h.ledgers[board.Player1].Anchor()
	assert.Equal(t, pos(2, 2), anchor)
	assert.Contains(t, h.retracted, pos(7, 7))
}
