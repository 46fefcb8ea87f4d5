package pieces

import (
	"fmt"
	"strings"
)

// Passive is the closed set of abilities a piece type can carry.
type Passive int

const (
	PassiveNone Passive = iota
	RestrictArea
	GainEnergyEvery2Plays
	UnblockableOnFour
	ExplodeOnDeath
	EnergySpendGrant
	PyroRage
	CrossStrike
	DeathMark
	IsolationLock
	LavaSpawnOnDeath
	FourInRowWin
	WinLineExplode
	WildCardCaro
	AllyReplace
	ActiveTeleportAlly
	ActiveSwapAllies
)

// PassiveCount is the number of real abilities, PassiveNone excluded.
const PassiveCount = 16

var passiveNames = map[Passive]string{
	PassiveNone:           "None",
	RestrictArea:          "RestrictArea",
	GainEnergyEvery2Plays: "GainEnergyEvery2Plays",
	UnblockableOnFour:     "UnblockableOnFour",
	ExplodeOnDeath:        "ExplodeOnDeath",
	EnergySpendGrant:      "EnergySpendGrant",
	PyroRage:              "PyroRage",
	CrossStrike:           "CrossStrike",
	DeathMark:             "DeathMark",
	IsolationLock:         "IsolationLock",
	LavaSpawnOnDeath:      "LavaSpawnOnDeath",
	FourInRowWin:          "FourInRowWin",
	WinLineExplode:        "WinLineExplode",
	WildCardCaro:          "WildCardCaro",
	AllyReplace:           "AllyReplace",
	ActiveTeleportAlly:    "Active_TeleportAlly",
	ActiveSwapAllies:      "Active_SwapAllies",
}

func (p Passive) String() string {
	if name, ok := passiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PASSIVE_%d", int(p))
}

// Valid reports whether p is PassiveNone or one of the 16 abilities.
func (p Passive) Valid() bool {
	return p >= PassiveNone && p <= ActiveSwapAllies
}

// IsActiveSkill reports whether the passive is a player-invoked targeting skill.
func (p Passive) IsActiveSkill() bool {
	return p == ActiveTeleportAlly || p == ActiveSwapAllies
}

// AllPassives lists the 16 abilities in declaration order.
func AllPassives() []Passive {
	out := make([]Passive, 0, PassiveCount)
	for p := RestrictArea; p <= ActiveSwapAllies; p++ {
		out = append(out, p)
	}
	return out
}

// ParsePassive resolves a passive by name, case-insensitively. Underscores are ignored so
// "Active_TeleportAlly" and "ActiveTeleportAlly" both resolve.
func ParsePassive(name string) (Passive, error) {
	want := normalizePassiveName(name)
	if want == "" {
		return PassiveNone, nil
	}
	for p, n := range passiveNames {
		if normalizePassiveName(n) == want {
			return p, nil
		}
	}
	return PassiveNone, fmt.Errorf("%w: %q", ErrUnknownPassive, name)
}

func normalizePassiveName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

// MarshalText encodes the passive by name.
func (p Passive) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a passive from its name.
func (p *Passive) UnmarshalText(text []byte) error {
	v, err := ParsePassive(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
