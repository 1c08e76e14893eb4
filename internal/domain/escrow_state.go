package domain

import "strings"

var escrowTransitions = map[EscrowState]map[EscrowState]struct{}{
	EscrowStateNone: {
		EscrowStateCreated: {},
	},
	EscrowStateCreated: {
		EscrowStateHeld: {},
	},
	EscrowStateHeld: {
		EscrowStateReleased: {},
		EscrowStateRefunded: {},
	},
	EscrowStateReleased: {},
	EscrowStateRefunded: {},
}

// ParseEscrowState normalizes a persisted state string.
func ParseEscrowState(s string) (EscrowState, bool) {
	state := EscrowState(strings.ToLower(strings.TrimSpace(s)))
	_, ok := escrowTransitions[state]
	return state, ok
}

func (s EscrowState) String() string {
	return string(s)
}

// CanTransition reports whether next is reachable from current in one step.
func CanTransition(current, next EscrowState) bool {
	nextStates, ok := escrowTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s EscrowState) IsTerminal() bool {
	return s == EscrowStateReleased || s == EscrowStateRefunded
}

// IsActive reports whether the payment still blocks a new escrow for its package.
func (s EscrowState) IsActive() bool {
	return s == EscrowStateCreated || s == EscrowStateHeld
}

// ActiveEscrowStates lists the non-terminal persisted states.
func ActiveEscrowStates() []string {
	return []string{string(EscrowStateCreated), string(EscrowStateHeld)}
}
