package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRunStore implements RunStore on SQLite. Writes are serialized with a
// mutex to avoid SQLITE_BUSY under concurrent load.
type SQLiteRunStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteRunStore opens (or creates) the database at dbPath and ensures the
// run_events table exists.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)

	s, err := NewSQLiteRunStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteRunStoreFromDB wraps an existing connection and ensures the schema.
func NewSQLiteRunStoreFromDB(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_events (
		id           TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL,
		sequence_num INTEGER NOT NULL,
		event_type   TEXT NOT NULL,
		event_data   TEXT,
		created_at   TEXT NOT NULL,
		UNIQUE(run_id, sequence_num)
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_events_event_type ON run_events(event_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create run_events table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) Append(ctx context.Context, runID uuid.UUID, eventType string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence_num) FROM run_events WHERE run_id = ?`, runID.String(),
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}
	seq := int64(1)
	if maxSeq.Valid {
		seq = maxSeq.Int64 + 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (id, run_id, sequence_num, event_type, event_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID.String(), seq, eventType, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteRunStore) GetEvents(ctx context.Context, runID uuid.UUID) ([]RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, sequence_num, event_type, event_data, created_at
		 FROM run_events WHERE run_id = ? ORDER BY sequence_num ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]RunEvent, error) {
	var events []RunEvent
	for rows.Next() {
		var ev RunEvent
		var idStr, runIDStr, createdStr string
		var dataStr sql.NullString
		if err := rows.Scan(&idStr, &runIDStr, &ev.SequenceNum, &ev.EventType, &dataStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ID, _ = uuid.Parse(idStr)
		ev.RunID, _ = uuid.Parse(runIDStr)
		ev.EventData = json.RawMessage(dataStr.String)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteRunStore) GetTimeline(ctx context.Context, runID uuid.UUID) (*RunTimeline, error) {
	events, err := s.GetEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	m := materialize(events)
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// ListRuns reads every event in one pass and groups it by run.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunTimeline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, sequence_num, event_type, event_data, created_at
		 FROM run_events ORDER BY run_id, sequence_num ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	var runs []RunTimeline
	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && events[end].RunID == events[start].RunID {
			end++
		}
		if m := materialize(events[start:end]); m != nil {
			runs = append(runs, *m)
		}
		start = end
	}
	return filterRuns(runs, filter), nil
}

var (
	_ RunStore = (*InMemoryRunStore)(nil)
	_ RunStore = (*SQLiteRunStore)(nil)
)
