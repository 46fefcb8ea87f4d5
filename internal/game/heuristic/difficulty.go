package heuristic

import (
	"fmt"
	"strings"
)

// Difficulty tunes how noisy and how wide the move search is.
type Difficulty int

const (
	Easy Difficulty = iota
	Normal
	Hard
)

var difficultyNames = map[Difficulty]string{
	Easy:   "easy",
	Normal: "normal",
	Hard:   "hard",
}

func (d Difficulty) String() string {
	if name, ok := difficultyNames[d]; ok {
		return name
	}
	return fmt.Sprintf("difficulty_%d", int(d))
}

// ParseDifficulty resolves a difficulty name, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for d, name := range difficultyNames {
		if name == want {
			return d, nil
		}
	}
	return Normal, fmt.Errorf("unknown difficulty %q", s)
}

// Noise is the exclusive upper bound of the random term added to each score.
func (d Difficulty) Noise() int {
	switch d {
	case Easy:
		return 5000
	case Hard:
		return 5
	default:
		return 500
	}
}

// Radius is the distance from existing pieces within which candidates are generated.
func (d Difficulty) Radius() int {
	if d == Easy {
		return 1
	}
	return 2
}
