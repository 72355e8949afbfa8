package engine

import (
	"github.com/pkg/errors"
)

var (
	// ErrModelLoad is returned when a model cannot be loaded on any device.
	ErrModelLoad = errors.New("cannot load model")
	// ErrInferenceFailure wraps errors returned by the backend while classifying.
	ErrInferenceFailure = errors.New("inference failed")
	// ErrUsage is returned when an engine is used after it was released.
	ErrUsage = errors.New("engine already released")
)

// kindError tags a backend error with one of the sentinels above. errors.Is matches both the
// sentinel and anything in the cause chain.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func newModelLoadError(cause error, format string, args ...interface{}) error {
	if format != "" {
		cause = errors.WithMessagef(cause, format, args...)
	}
	return &kindError{kind: ErrModelLoad, cause: cause}
}

func newInferenceError(cause error) error {
	return &kindError{kind: ErrInferenceFailure, cause: cause}
}
