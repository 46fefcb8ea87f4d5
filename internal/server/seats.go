package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrSeatDenied = errors.New("server: seat token rejected")

type seatKey struct {
	matchID string
	player  board.Player
}

// SeatTokens issues one secret per human seat and keeps only its bcrypt hash.
type SeatTokens struct {
	cost   int
	mu     sync.RWMutex
	hashes map[seatKey][]byte
}

func NewSeatTokens(cost int) *SeatTokens {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &SeatTokens{cost: cost, hashes: make(map[seatKey][]byte)}
}

// Issue creates the token for a seat, replacing any earlier one.
func (s *SeatTokens) Issue(matchID string, p board.Player) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("issue seat token: invalid player %d", p)
	}
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash seat token: %w", err)
	}
	s.mu.Lock()
	s.hashes[seatKey{matchID, p}] = hash
	s.mu.Unlock()
	return token, nil
}

// Verify checks token against the seat's hash.
func (s *SeatTokens) Verify(matchID string, p board.Player, token string) error {
	s.mu.RLock()
	hash, ok := s.hashes[seatKey{matchID, p}]
	s.mu.RUnlock()
	if !ok || token == "" {
		return fmt.Errorf("%w: no seat %s in %s", ErrSeatDenied, p, matchID)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
		return fmt.Errorf("%w: %s in %s", ErrSeatDenied, p, matchID)
	}
	return nil
}

// Forget drops a match's seats.
func (s *SeatTokens) Forget(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.hashes {
		if key.matchID == matchID {
			delete(s.hashes, key)
		}
	}
}
