package analysis

// AnalyzeState represents the lifecycle state of a session's analysis pipeline.
// It is implemented as a value object using a string type to ensure type safety
// and domain invariants. The state transitions form a state machine that
// enforces valid lifecycle progression.
type AnalyzeState string

const (
	// StateReady indicates the session has all prerequisites for analysis and
	// is waiting to be claimed by an orchestrator run.
	StateReady AnalyzeState = "READY"

	// StateStart indicates the session has been claimed and is exclusively
	// owned by one orchestrator run until it reaches a terminal state.
	StateStart AnalyzeState = "START"

	// StateDone indicates the analysis completed and the report artifact was
	// persisted. This is a terminal state.
	StateDone AnalyzeState = "DONE"

	// StateError indicates the analysis failed after being claimed. This is a
	// terminal state; an operator must reset the session to READY to retry.
	StateError AnalyzeState = "ERROR"

	// StateNone indicates analysis prerequisites are not yet met. Sessions are
	// created in this state by the contents-management service.
	StateNone AnalyzeState = "NONE"
)

func (s AnalyzeState) String() string { return string(s) }

// Int32 returns the numeric state id used by the persisted schema.
func (s AnalyzeState) Int32() int32 {
	switch s {
	case StateReady:
		return 1
	case StateStart:
		return 2
	case StateDone:
		return 3
	case StateError:
		return 4
	case StateNone:
		return 5
	default:
		return 0
	}
}

// AnalyzeStateFromInt32 creates an AnalyzeState from its persisted numeric id.
func AnalyzeStateFromInt32(i int32) AnalyzeState {
	switch i {
	case 1:
		return StateReady
	case 2:
		return StateStart
	case 3:
		return StateDone
	case 4:
		return StateError
	case 5:
		return StateNone
	default:
		return "" // represents unspecified
	}
}

// ParseAnalyzeState converts a string to an AnalyzeState.
func ParseAnalyzeState(s string) AnalyzeState {
	switch s {
	case "READY":
		return StateReady
	case "START":
		return StateStart
	case "DONE":
		return StateDone
	case "ERROR":
		return StateError
	case "NONE":
		return StateNone
	default:
		return "" // represents unspecified
	}
}

// IsTerminal reports whether the state admits no further transitions.
func (s AnalyzeState) IsTerminal() bool { return s == StateDone || s == StateError }

// ValidateTransition checks if a state transition is valid and returns an error if not.
func (s AnalyzeState) ValidateTransition(target AnalyzeState) error {
	if !s.isValidTransition(target) {
		return newInvalidStateTransitionError(s, target)
	}
	return nil
}

// isValidTransition checks if the current state can transition to the target state.
// It enforces the analysis lifecycle rules to prevent invalid state changes.
func (s AnalyzeState) isValidTransition(target AnalyzeState) bool {
	switch s {
	case StateNone:
		// Prerequisites met; the contents service promotes the session.
		return target == StateReady
	case StateReady:
		// From Ready, an orchestrator claim is the only valid move.
		return target == StateStart
	case StateStart:
		// A claimed session either finishes or fails.
		return target == StateDone || target == StateError
	case StateDone, StateError:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
