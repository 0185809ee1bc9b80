package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/ai/persona"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/gorilla/websocket"
)

// gatedGenerator delegates to the template generator but holds every batch
// after the first until released. It reports the context error of held
// batches that were aborted.
type gatedGenerator struct {
	gen     ai.ActorGenerator
	release chan struct{}
	failAt  int

	mu      sync.Mutex
	aborted []error
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{gen: persona.New(), release: make(chan struct{}), failAt: -1}
}

func (g *gatedGenerator) GenerateBatch(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error) {
	if req.BatchNumber == g.failAt {
		return nil, errors.New("upstream returned 500")
	}
	if req.BatchNumber > 0 {
		select {
		case <-g.release:
		case <-ctx.Done():
			g.mu.Lock()
			g.aborted = append(g.aborted, ctx.Err())
			g.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	return g.gen.GenerateActors(ctx, req)
}

func (g *gatedGenerator) abortedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.aborted)
}

func startServer(t *testing.T, batches orchestrator.BatchGenerator) *httptest.Server {
	t.Helper()
	intents := ai.NewService(persona.New())
	if batches == nil {
		batches = intents
	}
	mux := http.NewServeMux()
	NewHandler(intents, batches).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/wizard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

// readUntil reads events until one matches, returning every event read.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Event) bool) []Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var events []Event
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v (after %d events)", err, len(events))
		}
		events = append(events, ev)
		if match(ev) {
			return events
		}
	}
}

func ofType(typ string) func(Event) bool {
	return func(ev Event) bool { return ev.Type == typ }
}

func toState(s orchestrator.State) func(Event) bool {
	return func(ev Event) bool {
		return ev.Type == EventState && ev.Transition != nil && ev.Transition.ToState == s
	}
}

func progressAt(batches int) func(Event) bool {
	return func(ev Event) bool {
		return ev.Type == EventProgress && ev.Progress != nil && ev.Progress.BatchesCompleted == batches
	}
}

func TestSubmitCompletesRun(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	events := readUntil(t, conn, ofType(EventComplete))

	var states []orchestrator.State
	progress := 0
	for _, ev := range events {
		switch ev.Type {
		case EventState:
			states = append(states, ev.Transition.ToState)
		case EventProgress:
			progress++
		case EventError:
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
	}
	want := []orchestrator.State{orchestrator.StateParsing, orchestrator.StateGenerating, orchestrator.StateComplete}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
	if progress != 3 {
		t.Errorf("expected 3 progress events, got %d", progress)
	}

	sug := events[len(events)-1].Suggestion
	if sug == nil || len(sug.Nodes) != 60 || len(sug.Connections) != 115 {
		t.Fatalf("unexpected suggestion %+v", sug)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	gen := newGatedGenerator()
	srv := startServer(t, gen)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	readUntil(t, conn, progressAt(1))

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 5 chefs rate a recipe"})
	events := readUntil(t, conn, ofType(EventError))
	if !strings.Contains(events[len(events)-1].Error, "busy") {
		t.Errorf("expected busy error, got %q", events[len(events)-1].Error)
	}
	close(gen.release)
	readUntil(t, conn, ofType(EventComplete))
}

func TestCancelReturnsToIdle(t *testing.T) {
	gen := newGatedGenerator()
	srv := startServer(t, gen)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	readUntil(t, conn, progressAt(1))

	sendCommand(t, conn, Command{Action: ActionCancel})
	events := readUntil(t, conn, toState(orchestrator.StateIdle))
	for _, ev := range events {
		if ev.Type == EventComplete || ev.Type == EventError {
			t.Fatalf("unexpected %s event after cancel", ev.Type)
		}
	}

	// The wizard accepts a new request right away.
	close(gen.release)
	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 30 chefs rate a recipe"})
	events = readUntil(t, conn, ofType(EventComplete))
	if n := len(events[len(events)-1].Suggestion.Nodes); n != 33 {
		t.Errorf("expected 33 nodes, got %d", n)
	}
}

func TestPauseAndResume(t *testing.T) {
	gen := newGatedGenerator()
	srv := startServer(t, gen)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	readUntil(t, conn, progressAt(1))

	sendCommand(t, conn, Command{Action: ActionPause})
	close(gen.release)
	events := readUntil(t, conn, progressAt(2))
	if !events[len(events)-1].Progress.Paused {
		t.Error("expected the in-flight batch to report a paused run")
	}

	sendCommand(t, conn, Command{Action: ActionResume})
	events = readUntil(t, conn, ofType(EventComplete))
	for _, ev := range events {
		if ev.Type == EventError {
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
	}
	if n := len(events[len(events)-1].Suggestion.Nodes); n != 60 {
		t.Errorf("expected 60 nodes, got %d", n)
	}
}

func TestBatchFailureReportsBatchNumber(t *testing.T) {
	gen := newGatedGenerator()
	gen.failAt = 1
	srv := startServer(t, gen)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	events := readUntil(t, conn, ofType(EventError))
	last := events[len(events)-1]
	if last.Batch == nil || *last.Batch != 2 {
		t.Fatalf("expected failure on batch 2, got %+v", last)
	}

	sendCommand(t, conn, Command{Action: ActionReset})
	readUntil(t, conn, toState(orchestrator.StateIdle))
}

func TestInvalidCommands(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)

	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Action: "dance"}, "unknown action"},
		{Command{Action: ActionSubmit}, "query is required"},
		{Command{Action: ActionPause}, "invalid state transition"},
		{Command{Action: ActionCancel}, "invalid state transition"},
	}
	for _, tt := range tests {
		sendCommand(t, conn, tt.cmd)
		events := readUntil(t, conn, ofType(EventError))
		if got := events[len(events)-1].Error; !strings.Contains(got, tt.want) {
			t.Errorf("%s: expected error containing %q, got %q", tt.cmd.Action, tt.want, got)
		}
	}
}

func TestCloseAction(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionClose})
	readUntil(t, conn, ofType(EventClosed))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestDisconnectCancelsRun(t *testing.T) {
	gen := newGatedGenerator()
	srv := startServer(t, gen)
	conn := dial(t, srv)

	sendCommand(t, conn, Command{Action: ActionSubmit, Query: "Have 57 chefs rate a recipe"})
	readUntil(t, conn, progressAt(1))
	_ = conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for gen.abortedCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("in-flight batch was not cancelled on disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
