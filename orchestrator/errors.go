package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnderstand is returned when the request could not be parsed or the
	// single-shot path failed.
	ErrUnderstand = errors.New("failed to understand request")
	// ErrCancelled is returned by a run that was cancelled. It is not an
	// error state: the orchestrator is idle again.
	ErrCancelled = errors.New("run cancelled")
	// ErrBusy is returned when a run is submitted while another is active or
	// a finished run has not been reset.
	ErrBusy = errors.New("orchestrator busy")
	// ErrInvalidTransition is returned for a signal that does not apply to
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// BatchError reports the batch whose generation failed. The run is not
// resumable from that batch.
type BatchError struct {
	Batch int // 0-indexed
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed: %v", e.Batch+1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
