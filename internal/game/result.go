package game

import "fmt"

// Reason is the code carried by a rejected operation.
type Reason string

const (
	ReasonInvalidPlayer      Reason = "INVALID_PLAYER"
	ReasonMatchOver          Reason = "MATCH_OVER"
	ReasonNotYourTurn        Reason = "NOT_YOUR_TURN"
	ReasonInvalidSlot        Reason = "INVALID_SLOT"
	ReasonNoPieceArmed       Reason = "NO_PIECE_ARMED"
	ReasonOutOfBounds        Reason = "OUT_OF_BOUNDS"
	ReasonLava               Reason = "LAVA"
	ReasonOccupied           Reason = "OCCUPIED"
	ReasonForbidden          Reason = "FORBIDDEN"
	ReasonLocked             Reason = "LOCKED"
	ReasonOutsideRestriction Reason = "OUTSIDE_RESTRICTION"
	ReasonInsufficientEnergy Reason = "INSUFFICIENT_ENERGY"
	ReasonNotInSkillMode     Reason = "NOT_IN_SKILL_MODE"
	ReasonInvalidTarget      Reason = "INVALID_TARGET"
	ReasonUnknownIntent      Reason = "UNKNOWN_INTENT"
)

// Rejection explains a refused operation. A rejected operation mutates nothing.
type Rejection struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (r Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Result is the outcome of a match operation.
type Result struct {
	Rejection *Rejection `json:"rejection,omitempty"`
}

// Accepted reports whether the operation was applied.
func (r Result) Accepted() bool {
	return r.Rejection == nil
}

// Reason returns the rejection code, or "" when accepted.
func (r Result) Reason() Reason {
	if r.Rejection == nil {
		return ""
	}
	return r.Rejection.Reason
}

func accepted() Result { return Result{} }

func reject(reason Reason, format string, args ...any) Result {
	rej := &Rejection{Reason: reason}
	if format != "" {
		rej.Detail = fmt.Sprintf(format, args...)
	}
	return Result{Rejection: rej}
}
