// Command caro-sim plays automated seats against each other on a local engine and
// prints the final board as seen by a replicated mirror.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/heuristic"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/replication"
	"go.uber.org/zap"
)

var (
	catalogPath = flag.String("catalog", "", "piece catalog YAML (built-in set when empty)")
	size        = flag.Int("size", board.DefaultSize, "board size")
	p1Roster    = flag.String("p1", "17,2,4", "player 1 roster as comma-separated piece ids")
	p2Roster    = flag.String("p2", "17,8,9", "player 2 roster as comma-separated piece ids")
	difficulty  = flag.String("difficulty", "normal", "easy, normal or hard")
	seed        = flag.Uint64("seed", 0, "deterministic seed for both seats (0 uses crypto randomness)")
	delay       = flag.Duration("delay", 10*time.Millisecond, "pause before each automated move")
	limit       = flag.Duration("limit", 2*time.Minute, "wall-clock cap for the match")
	verbose     = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	catalog := pieces.Default()
	if *catalogPath != "" {
		c, err := pieces.LoadCatalogFile(*catalogPath)
		if err != nil {
			return err
		}
		catalog = c
	}
	d, err := heuristic.ParseDifficulty(*difficulty)
	if err != nil {
		return err
	}
	rosters := [2][]int{}
	for i, raw := range []string{*p1Roster, *p2Roster} {
		if rosters[i], err = parseRoster(raw); err != nil {
			return fmt.Errorf("player %d roster: %w", i+1, err)
		}
	}

	cfg := game.EngineConfig{
		BoardSize:   *size,
		TurnLimit:   time.Minute,
		BotDelay:    *delay,
		BotFollowUp: *delay,
	}
	if *seed != 0 {
		next := *seed
		cfg.NewRNG = func() heuristic.RandomSource {
			next++
			return heuristic.NewSeededRNG(next)
		}
	}
	engine := game.NewEngine(logger.Named("engine"), catalog, cfg)
	authority := replication.NewAuthority(logger.Named("authority"), engine)

	const matchID = "sim"
	initial, err := authority.CreateMatch(game.CreateMatchRequest{
		ID: matchID,
		Seats: [2]game.Seat{
			{Roster: rosters[0], Bot: true, Difficulty: d},
			{Roster: rosters[1], Bot: true, Difficulty: d},
		},
		First: board.Player1,
	})
	if err != nil {
		return err
	}
	defer authority.RemoveMatch(matchID)

	mirror := replication.NewMirror(logger.Named("mirror"), catalog)
	over := make(chan struct{}, 1)
	unsubscribe, err := authority.Subscribe(matchID, func(env replication.Envelope) {
		if err := mirror.Apply(env); err != nil {
			logger.Warn("mirror apply", zap.String("kind", string(env.Kind)), zap.Error(err))
		}
		if env.Kind == replication.KindMatchOver {
			select {
			case over <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	start := time.Now()
	select {
	case <-over:
	case <-time.After(*limit):
		logger.Warn("match still running at the limit", zap.Duration("limit", *limit))
	}

	// Replaying the journal from the opening snapshot must land on the live digest.
	replay := replication.NewMirror(logger.Named("replay"), catalog)
	if err := replay.Load(initial); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	backlog, err := authority.Backlog(matchID, replay.Seq())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	for _, env := range backlog {
		if err := replay.Apply(env); err != nil {
			return fmt.Errorf("replay at seq %d: %w", replay.Seq(), err)
		}
	}
	if replay.Seq() == mirror.Seq() && replay.Digest() != mirror.Digest() {
		return fmt.Errorf("replay diverged at seq %d", replay.Seq())
	}

	fmt.Print(mirror.Board().Render())
	logger.Info("simulation finished",
		zap.Stringer("winner", mirror.Winner()),
		zap.Stringer("status", mirror.Status()),
		zap.Int("turn", mirror.Turn()),
		zap.Int("seq", mirror.Seq()),
		zap.String("digest", mirror.Digest()),
		zap.Int("journaled", len(backlog)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func parseRoster(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad piece id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
