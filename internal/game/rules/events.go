package rules

import (
	"sync"
	"time"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/google/uuid"
)

// EventType indicates the category of an engine event.
type EventType string

const (
	// Board events
	EventCellChanged EventType = "CELL_CHANGED"
	EventPiecePlaced EventType = "PIECE_PLACED"
	EventExplosion   EventType = "EXPLOSION"

	// Line events
	EventLineDrawn     EventType = "LINE_DRAWN"
	EventLineRetracted EventType = "LINE_RETRACTED"

	// Economy events
	EventEnergyChanged EventType = "ENERGY_CHANGED"

	// Turn events
	EventPieceArmed  EventType = "PIECE_ARMED"
	EventSkillPrompt EventType = "SKILL_PROMPT"
	EventTurnChanged EventType = "TURN_CHANGED"
	EventForcedPass  EventType = "FORCED_PASS"

	// Terminal events
	EventVictory EventType = "VICTORY"
	EventTimeout EventType = "TIMEOUT"
)

var terminalEvents = map[EventType]bool{
	EventVictory: true,
	EventTimeout: true,
}

// IsTerminal returns true if the event ends the match.
func (et EventType) IsTerminal() bool {
	return terminalEvents[et]
}

// CellState is the wire form of a board cell. Piece types travel as catalog ids.
type CellState struct {
	Owner      board.Player `json:"owner"`
	PieceID    int          `json:"piece_id,omitempty"`
	Burn       int          `json:"burn,omitempty"`
	DeathMarks int          `json:"death_marks,omitempty"`
	Lava       bool         `json:"lava,omitempty"`
}

// CellStateOf converts a board cell to its wire form.
func CellStateOf(c board.Cell) CellState {
	s := CellState{Owner: c.Owner, Burn: c.Burn, DeathMarks: c.DeathMarks, Lava: c.Lava}
	if c.Piece != nil {
		s.PieceID = c.Piece.ID
	}
	return s
}

// Resolve turns a wire cell back into a board cell using the catalog.
func (s CellState) Resolve(catalog *pieces.Catalog) (board.Cell, error) {
	c := board.Cell{Owner: s.Owner, Burn: s.Burn, DeathMarks: s.DeathMarks, Lava: s.Lava}
	if s.PieceID != 0 {
		p, err := catalog.Get(s.PieceID)
		if err != nil {
			return board.Cell{}, err
		}
		c.Piece = p
	}
	return c, nil
}

// Event represents a discrete state change emitted by a match.
type Event struct {
	Type      EventType    `json:"type"`
	ID        string       `json:"id"`
	Seq       int          `json:"seq"`
	Player    board.Player `json:"player,omitempty"`
	Pos       *board.Pos   `json:"pos,omitempty"`
	Cell      *CellState   `json:"cell,omitempty"`
	Cells     []board.Pos  `json:"cells,omitempty"` // line members, explosion area
	Slot      int          `json:"slot"`            // roster slot, -1 when not applicable
	Amount    int          `json:"amount,omitempty"`
	Temporary int          `json:"temporary,omitempty"`
	Permanent int          `json:"permanent,omitempty"`
	Turn      int          `json:"turn,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	order          []int
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
// Listeners are called in subscription order.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	bus.order = append(bus.order, handle)
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, ok := bus.listeners[handle]; ok {
		delete(bus.listeners, handle)
		for i, h := range bus.order {
			if h == handle {
				bus.order = append(bus.order[:i], bus.order[i+1:]...)
				break
			}
		}
		return
	}
	bus.removeTyped(handle)
}

// UnsubscribeTyped removes a typed listener by handle.
func (bus *EventBus) UnsubscribeTyped(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.removeTyped(handle)
}

func (bus *EventBus) removeTyped(handle int) {
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	all := make([]Listener, 0, len(bus.order))
	for _, h := range bus.order {
		all = append(all, bus.listeners[h])
	}
	typed := append([]TypedListener(nil), bus.typedListeners[event.Type]...)
	bus.mu.RUnlock()

	for _, listener := range all {
		listener(event)
	}
	for _, listener := range typed {
		listener.Callback(event)
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, player board.Player) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Player:    player,
		Slot:      -1,
		Timestamp: time.Now(),
	}
}

// NewCellEvent creates a CELL_CHANGED event carrying the cell's new state.
func NewCellEvent(pos board.Pos, cell board.Cell) Event {
	evt := NewEvent(EventCellChanged, cell.Owner)
	p := pos
	state := CellStateOf(cell)
	evt.Pos = &p
	evt.Cell = &state
	return evt
}

// NewEnergyEvent creates an ENERGY_CHANGED event.
func NewEnergyEvent(player board.Player, temporary, permanent int) Event {
	evt := NewEvent(EventEnergyChanged, player)
	evt.Temporary = temporary
	evt.Permanent = permanent
	return evt
}

// NewLineEvent creates a LINE_DRAWN or LINE_RETRACTED event.
func NewLineEvent(eventType EventType, player board.Player, slot int, cells []board.Pos) Event {
	evt := NewEvent(eventType, player)
	evt.Slot = slot
	evt.Cells = append([]board.Pos(nil), cells...)
	return evt
}

// WithPos returns a copy of the event positioned at pos.
func (e Event) WithPos(pos board.Pos) Event {
	p := pos
	e.Pos = &p
	return e
}
