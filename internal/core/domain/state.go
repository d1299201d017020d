package domain

import "fmt"

type ProcessingState string

const (
	StateNone       ProcessingState = "none"
	StatePending    ProcessingState = "pending"
	StateProcessing ProcessingState = "processing"
	StateCompleted  ProcessingState = "completed"
	StateFailed     ProcessingState = "failed"
)

func ParseProcessingState(raw string) (ProcessingState, error) {
	state := ProcessingState(raw)
	switch state {
	case StateNone, StatePending, StateProcessing, StateCompleted, StateFailed:
		return state, nil
	case "":
		return StateNone, nil
	default:
		return "", fmt.Errorf("%w: unknown processing state %q", ErrValidation, raw)
	}
}

func (s ProcessingState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether the pipeline may move a document from one
// state to another. Explicit reprocess is the only way out of a terminal state.
func CanTransition(from, to ProcessingState, explicitReprocess bool) bool {
	if from.Terminal() {
		return explicitReprocess && to == StatePending
	}
	switch from {
	case StateNone:
		return to == StatePending
	case StatePending:
		return to == StateProcessing || (explicitReprocess && to == StatePending)
	case StateProcessing:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Transition validates a state change and returns a typed error when it is not allowed.
func Transition(from, to ProcessingState, explicitReprocess bool) error {
	if !CanTransition(from, to, explicitReprocess) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
