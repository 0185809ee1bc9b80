package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks requests rejected before any generation work.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBatchTooLarge is returned when a batch asks for more than BatchSize actors.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrNoGenerator is returned when no generator is registered for the
	// requested provider.
	ErrNoGenerator = errors.New("no generator registered")
)

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
