package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRunStore is a thread-safe in-memory RunStore. Suitable for tests
// and single-process use; history is lost on restart.
type InMemoryRunStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]RunEvent
}

// NewInMemoryRunStore creates a new InMemoryRunStore.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{events: make(map[uuid.UUID][]RunEvent)}
}

func (s *InMemoryRunStore) Append(_ context.Context, runID uuid.UUID, eventType string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[runID] = append(s.events[runID], RunEvent{
		ID:          uuid.New(),
		RunID:       runID,
		SequenceNum: int64(len(s.events[runID]) + 1),
		EventType:   eventType,
		EventData:   raw,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (s *InMemoryRunStore) GetEvents(_ context.Context, runID uuid.UUID) ([]RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.events[runID]
	if !ok {
		return nil, nil
	}
	result := make([]RunEvent, len(events))
	copy(result, events)
	return result, nil
}

func (s *InMemoryRunStore) GetTimeline(ctx context.Context, runID uuid.UUID) (*RunTimeline, error) {
	events, _ := s.GetEvents(ctx, runID)
	m := materialize(events)
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *InMemoryRunStore) ListRuns(_ context.Context, filter RunFilter) ([]RunTimeline, error) {
	s.mu.RLock()
	runs := make([]RunTimeline, 0, len(s.events))
	for _, events := range s.events {
		if m := materialize(events); m != nil {
			runs = append(runs, *m)
		}
	}
	s.mu.RUnlock()

	return filterRuns(runs, filter), nil
}
