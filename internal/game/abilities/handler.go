package abilities

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/energy"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

// Host is the match state abilities read and mutate.
type Host interface {
	Board() *board.Board
	Ledger(p board.Player) *energy.Ledger
	Emit(evt rules.Event)

	// RetractLinesAt drops every credited line that contains pos.
	RetractLinesAt(pos board.Pos)
	// ForbidNextTurn replaces the set of cells p may not use on p's upcoming turn.
	ForbidNextTurn(p board.Player, cells []board.Pos)
	// LockNextTurn adds cells p may not use on p's upcoming turn.
	LockNextTurn(p board.Player, cells []board.Pos)
	// Restrict confines target's next placement to the 5x5 zone around center.
	Restrict(center board.Pos, target board.Player)

	// SlotOf returns the roster slot of piece for p, or -1.
	SlotOf(p board.Player, piece *pieces.PieceType) int
	// PlayCount returns how many times p has placed the piece in slot, this placement included.
	PlayCount(p board.Player, slot int) int
	// ConsumePyroCharge clears a charged slot and reports whether it was charged.
	ConsumePyroCharge(p board.Player, slot int) bool
	// ClaimCrossStrike marks p's first CrossStrike as used and reports whether this was it.
	ClaimCrossStrike(p board.Player) bool
}

// DestroyOpts selects which death effects a removal triggers.
type DestroyOpts struct {
	Lava      bool
	Explode   bool
	DeathMark bool
}

var (
	// FullEffects is used by cascades, burn and explosions.
	FullEffects = DestroyOpts{Lava: true, Explode: true, DeathMark: true}
	// ReplaceEffects is applied to the ally an AllyReplace piece lands on.
	ReplaceEffects = DestroyOpts{Explode: true, DeathMark: true}
	// NoEffects removes a piece silently.
	NoEffects = DestroyOpts{}
)

// PlaceContext describes a fresh placement.
type PlaceContext struct {
	Host     Host
	Resolver *Resolver
	Pos      board.Pos
	Owner    board.Player
	Piece    *pieces.PieceType
}

// DestroyContext describes a removal. Cell is the state before removal.
type DestroyContext struct {
	Host     Host
	Resolver *Resolver
	Pos      board.Pos
	Cell     board.Cell
	Opts     DestroyOpts
}

// LineContext describes a line credited for the first time.
type LineContext struct {
	Host     Host
	Resolver *Resolver
	Owner    board.Player
	Piece    *pieces.PieceType
	Slot     int
	Run      lines.Run
}

// Handler implements one passive.
type Handler interface {
	OnPlace(ctx PlaceContext)
	OnDestroy(ctx DestroyContext)
	OnLineCompleted(ctx LineContext)
}

// HandlerFactory constructs a new Handler instance.
type HandlerFactory func() Handler

// HandlerFuncs lets a passive override only the hooks it needs. Nil hooks are no-ops.
type HandlerFuncs struct {
	OnPlaceFunc         func(PlaceContext)
	OnDestroyFunc       func(DestroyContext)
	OnLineCompletedFunc func(LineContext)
}

// OnPlace invokes the configured placement hook if present.
func (hf HandlerFuncs) OnPlace(ctx PlaceContext) {
	if hf.OnPlaceFunc != nil {
		hf.OnPlaceFunc(ctx)
	}
}

// OnDestroy invokes the configured destruction hook if present.
func (hf HandlerFuncs) OnDestroy(ctx DestroyContext) {
	if hf.OnDestroyFunc != nil {
		hf.OnDestroyFunc(ctx)
	}
}

// OnLineCompleted invokes the configured line hook if present.
func (hf HandlerFuncs) OnLineCompleted(ctx LineContext) {
	if hf.OnLineCompletedFunc != nil {
		hf.OnLineCompletedFunc(ctx)
	}
}

var (
	registryMu sync.RWMutex
	registry   map[pieces.Passive]HandlerFactory

	// ErrDuplicateRegistration indicates a passive already has a handler factory.
	ErrDuplicateRegistration = errors.New("abilities: handler already registered")
	// ErrNilFactory indicates a registration attempt provided a nil constructor.
	ErrNilFactory = errors.New("abilities: nil handler factory")
	// ErrInvalidPassive indicates the passive is outside the closed set.
	ErrInvalidPassive = errors.New("abilities: invalid passive")
	// ErrUnknownPassive indicates no handler factory has been registered for the passive.
	ErrUnknownPassive = errors.New("abilities: handler not registered")
	// ErrNilHandler indicates a factory returned a nil handler instance.
	ErrNilHandler = errors.New("abilities: factory produced nil handler")
)

// Register associates a passive with a handler factory. Safe for concurrent use.
func Register(id pieces.Passive, ctor HandlerFactory) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPassive, int(id))
	}
	if ctor == nil {
		return ErrNilFactory
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = make(map[pieces.Passive]HandlerFactory)
	}
	if _, exists := registry[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, id)
	}
	registry[id] = ctor
	return nil
}

// New creates a handler instance for the passive using the registered factory.
func New(id pieces.Passive) (Handler, error) {
	registryMu.RLock()
	ctor := registry[id]
	registryMu.RUnlock()

	if ctor == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPassive, id)
	}
	handler := ctor()
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, id)
	}
	return handler, nil
}

func mustRegister(id pieces.Passive, ctor HandlerFactory) {
	if err := Register(id, ctor); err != nil {
		panic(err)
	}
}
