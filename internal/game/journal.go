package game

import (
	"errors"
	"sort"
	"sync"

	"github.com/caroarena/caro-server-go/internal/game/rules"
	"go.uber.org/zap"
)

var ErrNoJournal = errors.New("game: no journal for match")

// JournalEntry is one accepted intent with what it produced.
type JournalEntry struct {
	Index    int
	Intent   Intent
	Events   []rules.Event
	Digest   string
	Snapshot *Snapshot
}

// Journal is the ordered record of a match's accepted intents.
type Journal struct {
	MatchID string
	Entries []*JournalEntry
	mu      sync.RWMutex
}

// NewJournal creates an empty journal.
func NewJournal(matchID string) *Journal {
	return &Journal{
		MatchID: matchID,
		Entries: make([]*JournalEntry, 0),
	}
}

// Record appends an entry and numbers it.
func (j *Journal) Record(entry *JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry.Index = len(j.Entries)
	j.Entries = append(j.Entries, entry)
}

// Size returns the number of entries.
func (j *Journal) Size() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.Entries)
}

// Since returns, in order, the entries that moved the match past seq.
func (j *Journal) Since(seq int) []*JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	// Sequence numbers only grow, so the first newer entry starts the tail.
	start := sort.Search(len(j.Entries), func(i int) bool {
		return j.Entries[i].Snapshot.Seq > seq
	})
	out := make([]*JournalEntry, len(j.Entries)-start)
	copy(out, j.Entries[start:])
	return out
}

// JournalRecorder keeps one journal per match for an engine.
type JournalRecorder struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	journals map[string]*Journal
}

// NewJournalRecorder creates an in-memory recorder.
func NewJournalRecorder(logger *zap.Logger) *JournalRecorder {
	return &JournalRecorder{
		logger:   logger,
		journals: make(map[string]*Journal),
	}
}

// Start begins a journal for matchID, replacing any previous one.
func (jr *JournalRecorder) Start(matchID string) {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	jr.journals[matchID] = NewJournal(matchID)
}

// Record appends to matchID's journal if one was started.
func (jr *JournalRecorder) Record(matchID string, entry *JournalEntry) {
	jr.mu.RLock()
	journal := jr.journals[matchID]
	jr.mu.RUnlock()

	if journal == nil {
		return
	}
	journal.Record(entry)

	if jr.logger != nil {
		jr.logger.Debug("journaled intent",
			zap.String("match_id", matchID),
			zap.Stringer("intent", entry.Intent),
			zap.Int("entries", journal.Size()),
		)
	}
}

// Get returns matchID's journal.
func (jr *JournalRecorder) Get(matchID string) (*Journal, bool) {
	jr.mu.RLock()
	defer jr.mu.RUnlock()

	journal, ok := jr.journals[matchID]
	return journal, ok
}

// Drop forgets matchID's journal.
func (jr *JournalRecorder) Drop(matchID string) {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	delete(jr.journals, matchID)
}
