package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	ErrNotFound = errors.New("not found")

	// ErrQueueUnavailable marks queue transport faults, as opposed to
	// failures of the job itself.
	ErrQueueUnavailable = errors.New("queue unavailable")

	ErrVideoNotFound = fmt.Errorf("video %w", ErrNotFound)

	ErrValidation = errors.New("validation error")
)

// ValidationError is a fatal input problem: retrying the same payload can
// never succeed.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapQueueUnavailable wraps a transport fault so callers can distinguish
// infrastructure failures from job failures
func WrapQueueUnavailable(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrQueueUnavailable, err))
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsQueueUnavailable(err error) bool {
	return errors.Is(err, ErrQueueUnavailable)
}
