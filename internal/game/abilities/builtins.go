package abilities

import (
	"github.com/caroarena/caro-server-go/internal/game/board"
	"github.com/caroarena/caro-server-go/internal/game/lines"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/game/rules"
)

const (
	// RestrictRadius gives the 5x5 RestrictArea zone.
	RestrictRadius = 2
	// PyroBurn is the burn counter PyroRage applies.
	PyroBurn = 2
	// DeathMarkLimit marks destroy the carrier.
	DeathMarkLimit = 2
	// UnblockableRun is the run length that triggers UnblockableOnFour.
	UnblockableRun = 4
)

func init() {
	mustRegister(pieces.PassiveNone, noop)
	mustRegister(pieces.RestrictArea, NewRestrictAreaHandler)
	mustRegister(pieces.GainEnergyEvery2Plays, NewGainEnergyHandler)
	mustRegister(pieces.UnblockableOnFour, NewUnblockableHandler)
	mustRegister(pieces.ExplodeOnDeath, NewExplodeOnDeathHandler)
	mustRegister(pieces.EnergySpendGrant, NewEnergySpendGrantHandler)
	mustRegister(pieces.PyroRage, NewPyroRageHandler)
	mustRegister(pieces.CrossStrike, NewCrossStrikeHandler)
	mustRegister(pieces.DeathMark, NewDeathMarkHandler)
	mustRegister(pieces.IsolationLock, NewIsolationLockHandler)
	// Lava conversion happens inside Destroy.
	mustRegister(pieces.LavaSpawnOnDeath, noop)
	// Threshold and axes live in the line detector.
	mustRegister(pieces.FourInRowWin, noop)
	mustRegister(pieces.WinLineExplode, NewWinLineExplodeHandler)
	// Wildcard retry lives in the line detector.
	mustRegister(pieces.WildCardCaro, noop)
	// Replacement is resolved before the piece is written; see ReplaceOccupant.
	mustRegister(pieces.AllyReplace, noop)
	// Active skills are driven by the sequencer through Teleport and Swap.
	mustRegister(pieces.ActiveTeleportAlly, noop)
	mustRegister(pieces.ActiveSwapAllies, noop)
}

func noop() Handler { return HandlerFuncs{} }

// NewRestrictAreaHandler confines the opponent's next placement to a 5x5 zone.
func NewRestrictAreaHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			ctx.Host.Restrict(ctx.Pos, ctx.Owner.Opponent())
		},
	}
}

// NewGainEnergyHandler grants one permanent energy on every second play of the type.
func NewGainEnergyHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			slot := ctx.Host.SlotOf(ctx.Owner, ctx.Piece)
			n := ctx.Host.PlayCount(ctx.Owner, slot)
			if n == 0 || n%2 != 0 {
				return
			}
			ledger := ctx.Host.Ledger(ctx.Owner)
			ledger.AddPermanent(1)
			ctx.Host.Emit(rules.NewEnergyEvent(ctx.Owner, ledger.Temporary(), ledger.Permanent()))
		},
	}
}

// NewUnblockableHandler forbids the open ends of a run of four to the opponent's next turn.
func NewUnblockableHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			b := ctx.Host.Board()
			endA, endB, ok := lines.ChainEnds(b, ctx.Pos, ctx.Owner, UnblockableRun)
			if !ok {
				return
			}
			var cells []board.Pos
			for _, end := range []board.Pos{endA, endB} {
				if b.InBounds(end) && b.Get(end).Open() {
					cells = append(cells, end)
				}
			}
			ctx.Host.ForbidNextTurn(ctx.Owner.Opponent(), cells)
		},
	}
}

// NewExplodeOnDeathHandler destroys every occupied neighbor when the piece dies.
func NewExplodeOnDeathHandler() Handler {
	return HandlerFuncs{
		OnDestroyFunc: func(ctx DestroyContext) {
			if !ctx.Opts.Explode {
				return
			}
			b := ctx.Host.Board()
			blast := rules.NewEvent(rules.EventExplosion, ctx.Cell.Owner)
			blast.Cells = Area(b, ctx.Pos, 1)
			ctx.Host.Emit(blast.WithPos(ctx.Pos))

			for _, n := range b.Neighbors8(ctx.Pos) {
				ctx.Resolver.Destroy(ctx.Host, n, FullEffects)
			}
		},
	}
}

// NewEnergySpendGrantHandler anchors the owner's spend accrual to this cell.
func NewEnergySpendGrantHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			ctx.Host.Ledger(ctx.Owner).SetAnchor(ctx.Pos)
		},
	}
}

// NewPyroRageHandler spends a charge to set the opponent's left and right neighbors burning.
func NewPyroRageHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			slot := ctx.Host.SlotOf(ctx.Owner, ctx.Piece)
			if !ctx.Host.ConsumePyroCharge(ctx.Owner, slot) {
				return
			}
			b := ctx.Host.Board()
			enemy := ctx.Owner.Opponent()
			for _, d := range []int{-1, 1} {
				p := board.Pos{Row: ctx.Pos.Row, Col: ctx.Pos.Col + d}
				if !b.InBounds(p) || b.Get(p).Owner != enemy {
					continue
				}
				b.Update(p, func(c *board.Cell) { c.Burn = PyroBurn })
				ctx.Host.Emit(rules.NewCellEvent(p, b.Get(p)))
			}
		},
	}
}

// NewCrossStrikeHandler clears the orthogonal neighbors on the owner's first CrossStrike.
func NewCrossStrikeHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			if !ctx.Host.ClaimCrossStrike(ctx.Owner) {
				return
			}
			for _, n := range ctx.Host.Board().Orthogonal(ctx.Pos) {
				ctx.Resolver.Destroy(ctx.Host, n, FullEffects)
			}
		},
	}
}

// NewDeathMarkHandler marks the opponent's neighbors when the piece dies.
func NewDeathMarkHandler() Handler {
	return HandlerFuncs{
		OnDestroyFunc: func(ctx DestroyContext) {
			if !ctx.Opts.DeathMark {
				return
			}
			b := ctx.Host.Board()
			enemy := ctx.Cell.Owner.Opponent()
			for _, n := range b.Neighbors8(ctx.Pos) {
				if b.Get(n).Owner != enemy {
					continue
				}
				b.Update(n, func(c *board.Cell) { c.DeathMarks++ })
				if b.Get(n).DeathMarks >= DeathMarkLimit {
					ctx.Resolver.Destroy(ctx.Host, n, FullEffects)
					continue
				}
				ctx.Host.Emit(rules.NewCellEvent(n, b.Get(n)))
			}
		},
	}
}

// NewIsolationLockHandler locks the neighborhood of an isolated placement.
func NewIsolationLockHandler() Handler {
	return HandlerFuncs{
		OnPlaceFunc: func(ctx PlaceContext) {
			b := ctx.Host.Board()
			around := b.Neighbors8(ctx.Pos)
			for _, n := range around {
				if !b.Get(n).IsEmpty() {
					return
				}
			}
			ctx.Host.LockNextTurn(ctx.Owner.Opponent(), around)
		},
	}
}

// NewWinLineExplodeHandler destroys everything orthogonally touching a new line.
func NewWinLineExplodeHandler() Handler {
	return HandlerFuncs{
		OnLineCompletedFunc: func(ctx LineContext) {
			b := ctx.Host.Board()
			seen := make(map[board.Pos]bool)
			var targets []board.Pos
			for _, cell := range ctx.Run.Cells {
				for _, n := range b.Orthogonal(cell) {
					if seen[n] || ctx.Run.Contains(n) || b.Get(n).IsEmpty() {
						continue
					}
					seen[n] = true
					targets = append(targets, n)
				}
			}
			if len(targets) == 0 {
				return
			}
			blast := rules.NewEvent(rules.EventExplosion, ctx.Owner)
			blast.Cells = targets
			ctx.Host.Emit(blast)
			for _, t := range targets {
				ctx.Resolver.Destroy(ctx.Host, t, FullEffects)
			}
		},
	}
}
