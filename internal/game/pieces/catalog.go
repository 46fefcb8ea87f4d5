package pieces

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is the shared static table of piece types. Pieces cross process boundaries by
// ID and are resolved here on both sides.
type Catalog struct {
	mu   sync.RWMutex
	byID map[int]*PieceType
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Version string      `yaml:"version"`
	Pieces  []PieceType `yaml:"pieces"`
}

// NewCatalog builds a catalog from entries, validating each one.
func NewCatalog(entries []PieceType) (*Catalog, error) {
	c := &Catalog{byID: make(map[int]*PieceType, len(entries))}
	for i := range entries {
		p := entries[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePiece, p.ID)
		}
		c.byID[p.ID] = &p
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Pieces) == 0 {
		return nil, fmt.Errorf("%w: no pieces defined", ErrInvalidPiece)
	}
	return NewCatalog(f.Pieces)
}

// LoadCatalogFile reads and parses a YAML catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// Marshal renders the catalog back to YAML in id order.
func (c *Catalog) Marshal() ([]byte, error) {
	f := catalogFile{Version: "1"}
	for _, p := range c.All() {
		f.Pieces = append(f.Pieces, *p)
	}
	return yaml.Marshal(f)
}

// Get resolves a piece by id.
func (c *Catalog) Get(id int) (*PieceType, error) {
	if c == nil {
		return nil, ErrCatalogNotReady
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPiece, id)
	}
	return p, nil
}

// Roster resolves three ids into a validated roster.
func (c *Catalog) Roster(ids []int) (Roster, error) {
	var r Roster
	if len(ids) != RosterSize {
		return r, fmt.Errorf("%w: want %d pieces, got %d", ErrInvalidRoster, RosterSize, len(ids))
	}
	for i, id := range ids {
		p, err := c.Get(id)
		if err != nil {
			return r, err
		}
		r[i] = p
	}
	return r, r.Validate()
}

// All returns every entry sorted by id.
func (c *Catalog) All() []*PieceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*PieceType, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// ByPassive returns the lowest-id entry carrying passive p.
func (c *Catalog) ByPassive(p Passive) (*PieceType, bool) {
	for _, pt := range c.All() {
		if pt.Passive == p {
			return pt, true
		}
	}
	return nil, false
}

// defaultEntries mirrors config/pieces.yaml so tests and the simulator work without files.
var defaultEntries = []PieceType{
	{ID: 1, Name: "Warden", Passive: RestrictArea, EnergyCost: 1},
	{ID: 2, Name: "Spark", Passive: GainEnergyEvery2Plays, EnergyCost: 0},
	{ID: 3, Name: "Lancer", Passive: UnblockableOnFour, EnergyCost: 0},
	{ID: 4, Name: "Powderkeg", Passive: ExplodeOnDeath, EnergyCost: 0},
	{ID: 5, Name: "Conduit", Passive: EnergySpendGrant, EnergyCost: 0},
	{ID: 6, Name: "Ember", Passive: PyroRage, EnergyCost: 0},
	{ID: 7, Name: "Striker", Passive: CrossStrike, EnergyCost: 1},
	{ID: 8, Name: "Reaper", Passive: DeathMark, EnergyCost: 0},
	{ID: 9, Name: "Hermit", Passive: IsolationLock, EnergyCost: 0},
	{ID: 10, Name: "Magma", Passive: LavaSpawnOnDeath, EnergyCost: 0},
	{ID: 11, Name: "Quartet", Passive: FourInRowWin, EnergyCost: 1},
	{ID: 12, Name: "Herald", Passive: WinLineExplode, EnergyCost: 0},
	{ID: 13, Name: "Joker", Passive: WildCardCaro, EnergyCost: 1},
	{ID: 14, Name: "Usurper", Passive: AllyReplace, EnergyCost: 0},
	{ID: 15, Name: "Blinker", Passive: ActiveTeleportAlly, EnergyCost: 0},
	{ID: 16, Name: "Juggler", Passive: ActiveSwapAllies, EnergyCost: 0},
	{ID: 17, Name: "Pawn", Passive: PassiveNone, EnergyCost: 0},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultEntries)
	if err != nil {
		panic(fmt.Sprintf("pieces: default catalog invalid: %v", err))
	}
	return c
}
