package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Run event types, in the order a run normally emits them.
const (
	EventRunStarted     = "run.started"
	EventIntentParsed   = "intent.parsed"
	EventBatchCompleted = "batch.completed"
	EventBatchFailed    = "batch.failed"
	EventRunPaused      = "run.paused"
	EventRunResumed     = "run.resumed"
	EventRunCompleted   = "run.completed"
	EventRunFailed      = "run.failed"
	EventRunCancelled   = "run.cancelled"
)

// Materialized run statuses.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunEvent is a single immutable entry in a run's event log.
type RunEvent struct {
	ID          uuid.UUID       `json:"id"`
	RunID       uuid.UUID       `json:"runId"`
	SequenceNum int64           `json:"sequenceNum"`
	EventType   string          `json:"eventType"`
	EventData   json.RawMessage `json:"eventData"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// BatchRecord is the materialized outcome of one generation batch.
type BatchRecord struct {
	Number      int        `json:"number"`
	Size        int        `json:"size"`
	Actors      int        `json:"actors"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RunTimeline is a read-optimized view of a wizard run, materialized from
// its event stream.
type RunTimeline struct {
	RunID        uuid.UUID     `json:"runId"`
	Query        string        `json:"query"`
	Status       string        `json:"status"`
	WorkflowType string        `json:"workflowType,omitempty"`
	AgentCount   int           `json:"agentCount"`
	BatchCount   int           `json:"batchCount"`
	Batches      []BatchRecord `json:"batches,omitempty"`
	ActorCount   int           `json:"actorCount"`
	PauseCount   int           `json:"pauseCount"`
	SuggestionID string        `json:"suggestionId,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	EventCount   int           `json:"eventCount"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// RunStore persists wizard run events with an append-only log.
type RunStore interface {
	// Append adds a new event to the log of a run.
	Append(ctx context.Context, runID uuid.UUID, eventType string, data map[string]any) error
	// GetEvents returns all events of a run ordered by sequence number.
	GetEvents(ctx context.Context, runID uuid.UUID) ([]RunEvent, error)
	// GetTimeline materializes a run from its event stream.
	GetTimeline(ctx context.Context, runID uuid.UUID) (*RunTimeline, error)
	// ListRuns returns materialized runs matching the filter, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunTimeline, error)
}

// materialize replays a sequence of events into a RunTimeline.
func materialize(events []RunEvent) *RunTimeline {
	if len(events) == 0 {
		return nil
	}

	m := &RunTimeline{
		RunID:      events[0].RunID,
		Status:     "unknown",
		EventCount: len(events),
	}

	for i := range events {
		ev := &events[i]
		var data map[string]any
		if len(ev.EventData) > 0 {
			_ = json.Unmarshal(ev.EventData, &data)
		}
		if data == nil {
			data = map[string]any{}
		}
		at := ev.CreatedAt

		switch ev.EventType {
		case EventRunStarted:
			m.Status = StatusRunning
			m.StartedAt = &at
			m.Query, _ = data["query"].(string)

		case EventIntentParsed:
			m.WorkflowType, _ = data["workflowType"].(string)
			m.AgentCount = intOf(data, "agentCount")
			m.BatchCount = intOf(data, "batchCount")

		case EventBatchCompleted:
			actors := intOf(data, "actors")
			m.Batches = append(m.Batches, BatchRecord{
				Number:      intOf(data, "batch"),
				Size:        intOf(data, "size"),
				Actors:      actors,
				Status:      StatusCompleted,
				CompletedAt: &at,
			})
			m.ActorCount += actors

		case EventBatchFailed:
			rec := BatchRecord{
				Number:      intOf(data, "batch"),
				Size:        intOf(data, "size"),
				Status:      StatusFailed,
				CompletedAt: &at,
			}
			rec.Error, _ = data["error"].(string)
			m.Batches = append(m.Batches, rec)

		case EventRunPaused:
			m.Status = StatusPaused
			m.PauseCount++

		case EventRunResumed:
			m.Status = StatusRunning

		case EventRunCompleted:
			m.Status = StatusCompleted
			m.CompletedAt = &at
			m.SuggestionID, _ = data["suggestionId"].(string)
			if n := intOf(data, "actorCount"); n > 0 {
				m.ActorCount = n
			}

		case EventRunFailed:
			m.Status = StatusFailed
			m.CompletedAt = &at
			m.Error, _ = data["error"].(string)

		case EventRunCancelled:
			m.Status = StatusCancelled
			m.CompletedAt = &at
		}
	}

	return m
}

// intOf reads a JSON number from decoded event data.
func intOf(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// filterRuns applies a RunFilter to materialized runs and sorts the result
// by start time, newest first.
func filterRuns(runs []RunTimeline, filter RunFilter) []RunTimeline {
	var results []RunTimeline
	for _, m := range runs {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Since != nil && (m.StartedAt == nil || m.StartedAt.Before(*filter.Since)) {
			continue
		}
		if filter.Until != nil && (m.StartedAt == nil || m.StartedAt.After(*filter.Until)) {
			continue
		}
		results = append(results, m)
	}

	sort.SliceStable(results, func(i, j int) bool {
		ti, tj := results[i].StartedAt, results[j].StartedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		}
		return ti.After(*tj)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results
}
