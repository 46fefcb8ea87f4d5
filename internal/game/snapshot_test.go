package game

import (
	"encoding/json"
	"testing"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/watchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardDigestDeterministic(t *testing.T) {
	a := newTestMatch(t, []int{17, 2, 4}, []int{17, 8, 9})
	b := newTestMatch(t, []int{17, 2, 4}, []int{17, 8, 9})
	blank := BoardDigest(a.Board())
	assert.Equal(t, blank, BoardDigest(b.Board()))

	for _, m := range []*Match{a, b} {
		ok(t)(m.SelectPiece(board.Player1, 0))
		ok(t)(m.PlaceAt(board.Player1, at(4, 4)))
	}
	assert.Equal(t, BoardDigest(a.Board()), BoardDigest(b.Board()))
	assert.NotEqual(t, blank, BoardDigest(a.Board()))

	b.board.Update(at(4, 4), func(c *board.Cell) { c.DeathMarks = 1 })
	assert.NotEqual(t, BoardDigest(a.Board()), BoardDigest(b.Board()))
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := newTestMatch(t, []int{17, 2, 4}, []int{17, 8, 9})
	for c := 0; c < 4; c++ {
		m.board.Place(at(0, c), board.Player1, piece(t, 17))
	}
	m.board.Set(at(9, 9), board.Cell{Lava: true})
	ok(t)(m.SelectPiece(board.Player1, 0))
	ok(t)(m.PlaceAt(board.Player1, at(0, 4)))

	snap := m.Snapshot()
	require.Len(t, snap.Seats, 2)
	assert.Equal(t, []int{17, 2, 4}, snap.Seats[0].Roster)
	assert.Len(t, snap.Lines, 1)
	assert.Len(t, snap.Cells, 6)
	assert.Equal(t, BoardDigest(m.Board()), snap.Digest)
	assert.Equal(t, watchers.Counts{1, 0, 0}, snap.Seats[0].Plays)
	assert.Equal(t, watchers.Counts{0, 1, 1}, snap.Seats[0].Idle)
	assert.Equal(t, watchers.Counts{}, snap.Seats[1].Plays)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NoError(t, decoded.VerifyChecksum(), "checksum survives the wire")

	decoded.Seats[0].Energy.Permanent++
	assert.ErrorIs(t, decoded.VerifyChecksum(), ErrChecksumMismatch)
	decoded.Seats[0].Energy.Permanent--
	decoded.Seats[0].Idle[2]++
	assert.ErrorIs(t, decoded.VerifyChecksum(), ErrChecksumMismatch, "watcher counters are covered")
	decoded.Seats[0].Idle[2]--

	rebuilt, err := decoded.BuildBoard(catalog)
	require.NoError(t, err)
	assert.Equal(t, snap.Digest, BoardDigest(rebuilt))
}

func TestChecksumTracksTurnState(t *testing.T) {
	m := newTestMatch(t, []int{17, 2, 4}, []int{17, 8, 9})
	before := m.Snapshot()
	require.NoError(t, before.VerifyChecksum())

	ok(t)(m.ForcedPass(board.Player1))
	after := m.Snapshot()
	assert.Equal(t, before.Digest, after.Digest)
	assert.NotEqual(t, before.Checksum, after.Checksum, "board unchanged but the turn moved")
}
