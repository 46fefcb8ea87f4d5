package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

// Kind names an envelope.
type Kind string

const (
	// Authority to mirror
	KindSnapshot  Kind = "snapshot"
	KindEvents    Kind = "events"
	KindMatchOver Kind = "match_over"
	KindResult    Kind = "result"
	KindError     Kind = "error"

	// Mirror to authority
	KindIntent Kind = "intent"
)

var knownKinds = map[Kind]bool{
	KindSnapshot:  true,
	KindEvents:    true,
	KindMatchOver: true,
	KindResult:    true,
	KindError:     true,
	KindIntent:    true,
}

var ErrMalformedEnvelope = errors.New("replication: malformed envelope")

// Envelope is the unit exchanged between an authority and its mirrors.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	MatchID string `json:"match_id"`
	// Seq is the match event sequence once the envelope's events are applied.
	Seq       int             `json:"seq"`
	Token     string          `json:"token,omitempty"`
	Intent    *game.Intent    `json:"intent,omitempty"`
	Events    []rules.Event   `json:"events,omitempty"`
	Digest    string          `json:"digest,omitempty"`
	Snapshot  *game.Snapshot  `json:"snapshot,omitempty"`
	Rejection *game.Rejection `json:"rejection,omitempty"`
	Winner    board.Player    `json:"winner,omitempty"`
	Error     string          `json:"error,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// Encode renders an envelope as JSON.
func Encode(env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses and checks an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (env Envelope) validate() error {
	if !knownKinds[env.Kind] {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEnvelope, env.Kind)
	}
	switch env.Kind {
	case KindIntent:
		if env.Intent == nil {
			return fmt.Errorf("%w: intent envelope without intent", ErrMalformedEnvelope)
		}
	case KindSnapshot:
		if env.Snapshot == nil {
			return fmt.Errorf("%w: snapshot envelope without snapshot", ErrMalformedEnvelope)
		}
	}
	if env.Kind != KindError && env.MatchID == "" {
		return fmt.Errorf("%w: missing match id", ErrMalformedEnvelope)
	}
	return nil
}

// SnapshotEnvelope wraps a snapshot for a joining mirror.
func SnapshotEnvelope(s *game.Snapshot) Envelope {
	return Envelope{
		Kind:     KindSnapshot,
		MatchID:  s.MatchID,
		Seq:      s.Seq,
		Digest:   s.Digest,
		Snapshot: s,
		SentAt:   time.Now().UTC(),
	}
}

// ResultEnvelope answers a submitted intent.
func ResultEnvelope(matchID string, in game.Intent, res game.Result) Envelope {
	applied := in
	return Envelope{
		Kind:      KindResult,
		MatchID:   matchID,
		Intent:    &applied,
		Rejection: res.Rejection,
		SentAt:    time.Now().UTC(),
	}
}

// ErrorEnvelope reports a failure that is not a rule rejection.
func ErrorEnvelope(matchID string, err error) Envelope {
	return Envelope{Kind: KindError, MatchID: matchID, Error: err.Error(), SentAt: time.Now().UTC()}
}

// journalEnvelope converts a journal entry into the envelope its notification carried.
func journalEnvelope(matchID string, e *game.JournalEntry) Envelope {
	applied := e.Intent
	env := Envelope{
		Kind:    KindEvents,
		MatchID: matchID,
		Seq:     e.Snapshot.Seq,
		Digest:  e.Digest,
		Intent:  &applied,
		Events:  e.Events,
		SentAt:  e.Snapshot.Timestamp.UTC(),
	}
	if e.Snapshot.Status != rules.StatusInProgress {
		env.Kind = KindMatchOver
		env.Winner = e.Snapshot.Winner
	}
	return env
}

// envelopeOf converts an engine notification.
func envelopeOf(n game.Notification) Envelope {
	env := Envelope{
		MatchID: n.MatchID,
		Seq:     n.Seq,
		Digest:  n.Digest,
		Intent:  n.Intent,
		Events:  n.Events,
		SentAt:  n.Timestamp.UTC(),
	}
	switch n.Type {
	case game.NotifyMatchOver:
		env.Kind = KindMatchOver
		env.Winner = n.Player
	default:
		env.Kind = KindEvents
	}
	return env
}
