package energy

import (
	"testing"

	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_SpendDrainsTemporaryFirst(t *testing.T) {
	l := NewLedger()
	l.StartTurn(1)
	l.AddPermanent(2)

	_, ok := l.Spend(1)
	require.True(t, ok)
	assert.Equal(t, 0, l.Temporary())
	assert.Equal(t, 2, l.Permanent())

	l.StartTurn(1)
	_, ok = l.Spend(2)
	require.True(t, ok)
	assert.Equal(t, 0, l.Temporary())
	assert.Equal(t, 1, l.Permanent())
}

func TestLedger_SpendFailsAtomically(t *testing.T) {
	l := NewLedger()
	l.StartTurn(1)
	l.AddPermanent(1)

	_, ok := l.Spend(3)
	assert.False(t, ok)
	assert.Equal(t, 1, l.Temporary())
	assert.Equal(t, 1, l.Permanent())

	empty := NewLedger()
	_, ok = empty.Spend(1)
	assert.False(t, ok)
	assert.False(t, empty.CanAfford(1))
	assert.True(t, empty.CanAfford(0))

	_, ok = empty.Spend(0)
	assert.True(t, ok)
}

func TestLedger_EndTurnKeepsPermanent(t *testing.T) {
	l := NewLedger()
	l.StartTurn(1)
	l.AddPermanent(3)
	l.EndTurn()
	assert.Equal(t, 0, l.Temporary())
	assert.Equal(t, 3, l.Permanent())
	assert.Equal(t, 3, l.Total())
}

func TestLedger_AnchorGrantsOncePerThree(t *testing.T) {
	l := NewLedger()
	require.True(t, l.SetAnchor(board.Pos{Row: 4, Col: 4}))
	l.AddPermanent(10)

	granted, ok := l.Spend(3)
	require.True(t, ok)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 0, l.Accrued())
	assert.Equal(t, 8, l.Permanent())
}

func TestLedger_AnchorFivePlusOne(t *testing.T) {
	l := NewLedger()
	l.SetAnchor(board.Pos{Row: 1, Col: 1})
	l.AddPermanent(10)

	granted, _ := l.Spend(5)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 2, l.Accrued())

	granted, _ = l.Spend(1)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 0, l.Accrued())

	// 10 - 6 spent + 2 granted
	assert.Equal(t, 6, l.Permanent())
}

func TestLedger_NoAccrualWithoutAnchor(t *testing.T) {
	l := NewLedger()
	l.AddPermanent(6)
	granted, _ := l.Spend(6)
	assert.Equal(t, 0, granted)
	assert.Equal(t, 0, l.Accrued())
}

func TestLedger_SingleAnchor(t *testing.T) {
	l := NewLedger()
	a := board.Pos{Row: 2, Col: 2}
	require.True(t, l.SetAnchor(a))
	assert.False(t, l.SetAnchor(board.Pos{Row: 3, Col: 3}))

	got, ok := l.Anchor()
	require.True(t, ok)
	assert.Equal(t, a, got)

	l.AddPermanent(2)
	l.Spend(2)
	assert.Equal(t, 2, l.Accrued())

	assert.False(t, l.ClearAnchorAt(board.Pos{Row: 9, Col: 9}))
	assert.True(t, l.ClearAnchorAt(a))
	assert.Equal(t, 0, l.Accrued())
	_, ok = l.Anchor()
	assert.False(t, ok)
}

func TestLedger_MoveAnchor(t *testing.T) {
	l := NewLedger()
	from, to := board.Pos{Row: 1, Col: 1}, board.Pos{Row: 5, Col: 5}
	assert.False(t, l.MoveAnchor(from, to))
	l.SetAnchor(from)
	assert.True(t, l.MoveAnchor(from, to))
	got, _ := l.Anchor()
	assert.Equal(t, to, got)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := NewLedger()
	l.StartTurn(1)
	l.AddPermanent(4)
	l.SetAnchor(board.Pos{Row: 7, Col: 8})
	l.Spend(2)

	snap := l.Snapshot()
	require.NotNil(t, snap.Anchor)
	assert.Equal(t, board.Pos{Row: 7, Col: 8}, *snap.Anchor)

	snap.Anchor.Row = 0
	snap.Permanent = 100
	got, ok := l.Anchor()
	require.True(t, ok)
	assert.Equal(t, board.Pos{Row: 7, Col: 8}, got)
	assert.NotEqual(t, 100, l.Snapshot().Permanent)
}
