package replication

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caroarena/caro-server-go/internal/game"
	"go.uber.org/zap"
)

var ErrIntentNotAllowed = errors.New("replication: intent kind is not accepted from clients")

// Subscriber receives envelopes in match order. It runs with the authority's lock held, so
// it must not block or call back into the authority.
type Subscriber func(Envelope)

type stream struct {
	next    int
	held    map[int]game.Notification
	subs    map[int]Subscriber
	nextSub int
}

func newStream() *stream {
	return &stream{next: 1, held: make(map[int]game.Notification), subs: make(map[int]Subscriber)}
}

// Authority is the single instance that applies intents. It turns engine notifications into
// ordered envelopes for mirrors.
type Authority struct {
	logger *zap.Logger
	engine *game.Engine

	mu      sync.Mutex
	streams map[string]*stream
}

// NewAuthority takes over engine's notification handler.
func NewAuthority(logger *zap.Logger, engine *game.Engine) *Authority {
	a := &Authority{
		logger:  logger,
		engine:  engine,
		streams: make(map[string]*stream),
	}
	engine.SetNotificationHandler(a.handle)
	return a
}

// Engine returns the wrapped engine.
func (a *Authority) Engine() *game.Engine {
	return a.engine
}

// CreateMatch starts a match on the engine and opens its stream. Notifications for the
// new match wait on a.mu until the stream exists.
func (a *Authority) CreateMatch(req game.CreateMatchRequest) (*game.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap, err := a.engine.CreateMatch(req)
	if err != nil {
		return nil, err
	}
	a.streams[snap.MatchID] = newStream()
	return snap, nil
}

// Submit applies a client intent. Timeouts come from the turn clock and forced passes
// from automated seats with no legal move, so clients may send neither.
func (a *Authority) Submit(matchID string, in game.Intent) (game.Result, error) {
	switch in.Kind {
	case game.IntentTimeout, game.IntentPass:
		return game.Result{}, fmt.Errorf("%w: %s", ErrIntentNotAllowed, in.Kind)
	}
	res, _, err := a.engine.Submit(matchID, in)
	return res, err
}

// Subscribe registers fn for a match. fn first receives a snapshot, then every later
// envelope in order. The returned func unsubscribes.
func (a *Authority) Subscribe(matchID string, fn Subscriber) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := a.engine.Snapshot(matchID)
	if err != nil {
		return nil, err
	}
	s, ok := a.streams[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no stream", game.ErrMatchNotFound, matchID)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	fn(SnapshotEnvelope(snap))

	if a.logger != nil {
		a.logger.Debug("mirror subscribed", zap.String("match_id", matchID), zap.Int("seq", snap.Seq))
	}
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(s.subs, id)
	}, nil
}

// Backlog returns the envelopes a mirror at afterSeq is missing, rebuilt from the match
// journal. A mirror that hit ErrSequenceGap applies them in order to catch up.
func (a *Authority) Backlog(matchID string, afterSeq int) ([]Envelope, error) {
	j, err := a.engine.Journal(matchID)
	if err != nil {
		return nil, err
	}
	entries := j.Since(afterSeq)
	out := make([]Envelope, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEnvelope(matchID, e))
	}
	return out, nil
}

// RemoveMatch stops a match and drops its stream and subscribers.
func (a *Authority) RemoveMatch(matchID string) error {
	if err := a.engine.RemoveMatch(matchID); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.streams, matchID)
	return nil
}

// handle reorders notifications, which arrive on separate goroutines, and fans them out.
// Notifications for matches without a stream (removed, or not created here) are dropped.
func (a *Authority) handle(n game.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.streams[n.MatchID]
	if !ok || n.Order < s.next {
		return
	}
	s.held[n.Order] = n
	for {
		next, ok := s.held[s.next]
		if !ok {
			break
		}
		delete(s.held, s.next)
		s.next++
		env := envelopeOf(next)
		for _, fn := range s.subs {
			fn(env)
		}
	}
}
