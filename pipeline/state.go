package pipeline

import (
	"github.com/pkg/errors"
)

// State is the lifecycle state of a pipeline.
type State int

// The pipeline states.
const (
	StateIdle State = iota
	StateStreaming
	StateSingleShot
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateSingleShot:
		return "single_shot"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when an operation is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

func newInvalidTransitionError(op string, from State) error {
	return errors.Wrapf(ErrInvalidTransition, "cannot %s while %s", op, from)
}
