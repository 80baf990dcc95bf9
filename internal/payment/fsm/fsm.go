package fsm

// Status constants used by the payment session state machine.
const (
	StatusIdle       = "idle"
	StatusInitiating = "initiating"
	StatusAwaiting   = "awaiting_confirmation"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusTimedOut   = "timed_out"
)

var transitions = map[string]map[string]struct{}{
	StatusIdle: {StatusInitiating: {}},
	StatusInitiating: {
		StatusAwaiting:  {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusAwaiting: {
		StatusSucceeded: {},
		StatusFailed:    {},
		StatusCancelled: {},
		StatusTimedOut:  {},
	},
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// CanTransition returns whether a session can move from the current status to the target status.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	allowed, ok := transitions[status]
	return ok && len(allowed) == 0
}
