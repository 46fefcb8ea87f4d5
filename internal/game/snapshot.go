package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/energy"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
	"github.com/caroarena/caro-server-go/internal/game/watchers"
)

// ChecksumVersion is bumped whenever the canonical rendering changes.
const ChecksumVersion = 2

// PlacedCell is one non-blank board cell.
type PlacedCell struct {
	Pos  board.Pos       `json:"pos"`
	Cell rules.CellState `json:"cell"`
}

// SeatSnapshot is one player's side of a snapshot.
type SeatSnapshot struct {
	Player  board.Player    `json:"player"`
	Roster  []int           `json:"roster"`
	Armed   int             `json:"armed"`
	Credits lines.Credits   `json:"credits"`
	Energy  energy.State    `json:"energy"`
	Blocked []board.Pos     `json:"blocked,omitempty"`
	Plays   watchers.Counts `json:"plays"`
	Idle    watchers.Counts `json:"idle"`
}

// Snapshot is a value copy of a match, enough to render it or to seed a mirror.
type Snapshot struct {
	MatchID     string         `json:"match_id"`
	Size        int            `json:"size"`
	Turn        int            `json:"turn"`
	Active      board.Player   `json:"active"`
	Phase       rules.Phase    `json:"phase"`
	Status      rules.Status   `json:"status"`
	Winner      board.Player   `json:"winner,omitempty"`
	Seq         int            `json:"seq"`
	Cells       []PlacedCell   `json:"cells"`
	Seats       []SeatSnapshot `json:"seats"`
	Lines       []ActiveLine   `json:"lines,omitempty"`
	Restriction *Restriction   `json:"restriction,omitempty"`
	Digest      string         `json:"digest"`
	Checksum    string         `json:"checksum"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ErrChecksumMismatch means a snapshot's fields no longer hash to its checksum.
var ErrChecksumMismatch = errors.New("game: snapshot checksum mismatch")

// Snapshot copies the match state.
func (m *Match) Snapshot() *Snapshot {
	s := &Snapshot{
		MatchID:     m.id,
		Size:        m.board.Size(),
		Turn:        m.turns.TurnNumber(),
		Active:      m.turns.ActivePlayer(),
		Phase:       m.turns.Phase(),
		Status:      m.status,
		Winner:      m.winner,
		Seq:         m.seq,
		Cells:       PlacedCells(m.board),
		Lines:       m.ActiveLines(),
		Restriction: m.Restriction(),
		Timestamp:   time.Now().UTC(),
	}
	for _, p := range []board.Player{board.Player1, board.Player2} {
		s.Seats = append(s.Seats, SeatSnapshot{
			Player:  p,
			Roster:  m.rosters[p].IDs(),
			Armed:   m.armed[p],
			Credits: m.credits[p],
			Energy:  m.ledgers[p].Snapshot(),
			Blocked: m.Blocked(p),
			Plays:   m.plays.Snapshot(p),
			Idle:    m.idle.Snapshot(p),
		})
	}
	s.Digest = digestCells(s.Size, s.Cells)
	s.Checksum = s.ComputeChecksum()
	return s
}

// PlacedCells lists the non-blank cells of b in row-major order.
func PlacedCells(b *board.Board) []PlacedCell {
	var out []PlacedCell
	b.Each(func(p board.Pos, c board.Cell) {
		if c.IsEmpty() && !c.Lava {
			return
		}
		out = append(out, PlacedCell{Pos: p, Cell: rules.CellStateOf(c)})
	})
	return out
}

// BoardDigest hashes the canonical rendering of a board. Two boards with the same size
// and cell states always produce the same digest.
func BoardDigest(b *board.Board) string {
	return digestCells(b.Size(), PlacedCells(b))
}

func digestCells(size int, cells []PlacedCell) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "BOARD:%d\n", size)
	for _, pc := range cells {
		c := pc.Cell
		fmt.Fprintf(&buf, "%d,%d:%d|%d|%d|%d|%t\n",
			pc.Pos.Row, pc.Pos.Col, c.Owner, c.PieceID, c.Burn, c.DeathMarks, c.Lava)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// BuildBoard rebuilds a board from snapshot cells, resolving piece ids in catalog.
func (s *Snapshot) BuildBoard(catalog *pieces.Catalog) (*board.Board, error) {
	b := board.New(s.Size)
	for _, pc := range s.Cells {
		if !b.InBounds(pc.Pos) {
			return nil, fmt.Errorf("snapshot cell %s outside %dx%d board", pc.Pos, s.Size, s.Size)
		}
		cell, err := pc.Cell.Resolve(catalog)
		if err != nil {
			return nil, fmt.Errorf("snapshot cell %s: %w", pc.Pos, err)
		}
		b.Set(pc.Pos, cell)
	}
	return b, nil
}

// ComputeChecksum hashes every deterministic field. Timestamps and the checksum itself
// are excluded.
func (s *Snapshot) ComputeChecksum() string {
	sum := sha256.Sum256([]byte(s.canonical()))
	return hex.EncodeToString(sum[:])
}

func (s *Snapshot) canonical() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "V%d\n", ChecksumVersion)
	fmt.Fprintf(&buf, "MATCH:%s|%d|%d|%s|%s|%s|%s|%d\n",
		s.MatchID, s.Size, s.Turn, s.Active, s.Phase, s.Status, s.Winner, s.Seq)
	fmt.Fprintf(&buf, "DIGEST:%s\n", digestCells(s.Size, s.Cells))

	for _, seat := range s.Seats {
		fmt.Fprintf(&buf, "SEAT:%s|%v|%d|%v|%d|%d|%d",
			seat.Player, seat.Roster, seat.Armed, seat.Credits,
			seat.Energy.Temporary, seat.Energy.Permanent, seat.Energy.Accrued)
		if seat.Energy.Anchor != nil {
			fmt.Fprintf(&buf, "|anchor=%s", *seat.Energy.Anchor)
		}
		fmt.Fprintf(&buf, "|plays=%v|idle=%v\n", seat.Plays, seat.Idle)
		for _, p := range seat.Blocked {
			fmt.Fprintf(&buf, "  BLOCKED:%s\n", p)
		}
	}

	// Line order is credit order and is kept.
	for _, l := range s.Lines {
		fmt.Fprintf(&buf, "LINE:%s|%d|%v\n", l.Owner, l.Slot, l.Run.Cells)
	}
	if s.Restriction != nil {
		fmt.Fprintf(&buf, "RESTRICT:%s|%s\n", s.Restriction.Center, s.Restriction.Target)
	}
	return buf.String()
}

// VerifyChecksum recomputes the checksum and compares it with the stored one.
func (s *Snapshot) VerifyChecksum() error {
	if got := s.ComputeChecksum(); got != s.Checksum {
		return fmt.Errorf("%w: stored %q, computed %q", ErrChecksumMismatch, s.Checksum, got)
	}
	return nil
}
