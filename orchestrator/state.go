package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateParsing    State = "parsing"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// transitions lists the states reachable from each state. complete and
// error only lead back to idle, and only through Reset.
var transitions = map[State][]State{
	StateIdle:       {StateParsing},
	StateParsing:    {StateGenerating, StateComplete, StateError, StateIdle},
	StateGenerating: {StateComplete, StateError, StateIdle},
	StateComplete:   {StateIdle},
	StateError:      {StateIdle},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s only leaves via Reset.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// TransitionEvent describes one state change.
type TransitionEvent struct {
	RunID     uuid.UUID `json:"runId"`
	FromState State     `json:"fromState"`
	ToState   State     `json:"toState"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is a snapshot of a run's batch progress.
type Progress struct {
	RunID            uuid.UUID `json:"runId"`
	BatchesCompleted int       `json:"batchesCompleted"`
	BatchCount       int       `json:"batchCount"`
	Actors           int       `json:"actors"`
	TotalActors      int       `json:"totalActors"`
	Paused           bool      `json:"paused"`
}

// Fraction returns completed/total batches in [0, 1].
func (p Progress) Fraction() float64 {
	if p.BatchCount == 0 {
		return 0
	}
	return float64(p.BatchesCompleted) / float64(p.BatchCount)
}

// Run outcomes reported to a Recorder.
const (
	OutcomeComplete  = "complete"
	OutcomeLegacy    = "legacy"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Batch statuses reported to a Recorder.
const (
	BatchStatusOK        = "ok"
	BatchStatusError     = "error"
	BatchStatusCancelled = "cancelled"
)
