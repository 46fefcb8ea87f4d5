package pieces

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePassive(t *testing.T) {
	tests := []struct {
		in   string
		want Passive
	}{
		{"RestrictArea", RestrictArea},
		{"restrictarea", RestrictArea},
		{"Active_TeleportAlly", ActiveTeleportAlly},
		{"ActiveSwapAllies", ActiveSwapAllies},
		{"None", PassiveNone},
		{"", PassiveNone},
	}
	for _, tt := range tests {
		got, err := ParsePassive(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePassive("Fireball")
	assert.ErrorIs(t, err, ErrUnknownPassive)
}

func TestAllPassivesHaveNames(t *testing.T) {
	all := AllPassives()
	require.Len(t, all, PassiveCount)
	seen := make(map[string]bool)
	for _, p := range all {
		name := p.String()
		assert.NotContains(t, name, "PASSIVE_")
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true

		back, err := ParsePassive(name)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
}

func TestDefaultCatalogCoversEveryPassive(t *testing.T) {
	c := Default()
	for _, p := range AllPassives() {
		_, ok := c.ByPassive(p)
		assert.True(t, ok, "no default piece for %s", p)
	}
}

func TestCatalogFileMatchesDefault(t *testing.T) {
	c, err := LoadCatalogFile(filepath.Join("..", "..", "..", "config", "pieces.yaml"))
	require.NoError(t, err)

	def := Default()
	require.Equal(t, def.Len(), c.Len())
	for _, want := range def.All() {
		got, err := c.Get(want.ID)
		require.NoError(t, err)
		assert.Equal(t, *want, *got)
	}
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	_, err := ParseCatalog([]byte("pieces: []"))
	assert.ErrorIs(t, err, ErrInvalidPiece)

	_, err = ParseCatalog([]byte(`
pieces:
  - {id: 1, name: A, passive: CrossStrike}
  - {id: 1, name: B, passive: DeathMark}
`))
	assert.ErrorIs(t, err, ErrDuplicatePiece)

	_, err = ParseCatalog([]byte(`
pieces:
  - {id: 1, name: A, passive: Teleport}
`))
	assert.ErrorIs(t, err, ErrUnknownPassive)

	_, err = ParseCatalog([]byte(`
pieces:
  - {id: 2, name: A, passive: CrossStrike, energy_cost: -1}
`))
	assert.ErrorIs(t, err, ErrInvalidPiece)
}

func TestCatalogRoundTripThroughFile(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pieces.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	p, err := c.Get(15)
	require.NoError(t, err)
	assert.Equal(t, ActiveTeleportAlly, p.Passive)
}

func TestCatalogRoster(t *testing.T) {
	c := Default()

	r, err := c.Roster([]int{7, 11, 13})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 11, 13}, r.IDs())
	assert.Equal(t, 1, r.Slot(r[1]))

	other, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, -1, r.Slot(other))

	_, err = c.Roster([]int{7, 7, 13})
	assert.ErrorIs(t, err, ErrInvalidRoster)

	_, err = c.Roster([]int{7, 13})
	assert.ErrorIs(t, err, ErrInvalidRoster)

	_, err = c.Roster([]int{7, 13, 99})
	assert.ErrorIs(t, err, ErrUnknownPiece)
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	_, err := c.Get(1)
	assert.ErrorIs(t, err, ErrCatalogNotReady)
}
