package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"golang.org/x/time/rate"
)

// stubBatches generates actors on demand. When block is set every call
// after the first waits for a release or for its context.
type stubBatches struct {
	mu      sync.Mutex
	reqs    []ai.BatchRequest
	failAt  int
	block   chan struct{}
	started chan int
	ctxErrs []error
}

func newStubBatches() *stubBatches {
	return &stubBatches{failAt: -1, started: make(chan int, 64)}
}

func (s *stubBatches) GenerateBatch(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	block := s.block
	s.mu.Unlock()
	s.started <- req.BatchNumber

	if block != nil && req.BatchNumber > 0 {
		select {
		case <-block:
		case <-ctx.Done():
			s.mu.Lock()
			s.ctxErrs = append(s.ctxErrs, ctx.Err())
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if req.BatchNumber == s.failAt {
		return nil, errors.New("upstream returned 500")
	}

	actors := make([]graph.GeneratedActor, req.BatchSize)
	for i := range actors {
		name := fmt.Sprintf("%s %d-%d", req.AgentNoun, req.BatchNumber, i)
		actors[i] = graph.GeneratedActor{Persona: graph.Persona{Name: name, DisplayName: name}}
	}
	return actors, nil
}

func (s *stubBatches) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.reqs))
	for i, r := range s.reqs {
		out[i] = r.BatchSize
	}
	return out
}

type failingIntents struct{}

func (failingIntents) Parse(context.Context, string) (*ai.ParseResponse, error) {
	return nil, errors.New("intent service unavailable")
}

type nilIntents struct{}

func (nilIntents) Parse(context.Context, string) (*ai.ParseResponse, error) { return nil, nil }

// fixedIntents returns the same parse response for every query.
type fixedIntents struct{ resp *ai.ParseResponse }

func (f fixedIntents) Parse(context.Context, string) (*ai.ParseResponse, error) { return f.resp, nil }

type nilLegacy struct{}

func (nilLegacy) Generate(context.Context, string) (*graph.WizardSuggestion, error) { return nil, nil }

type stubLegacy struct {
	calls int
	err   error
}

func (s *stubLegacy) Generate(_ context.Context, query string) (*graph.WizardSuggestion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &graph.WizardSuggestion{
		ID:          "legacy",
		Name:        query,
		Nodes:       []graph.Node{{Type: "textInputNode"}, {Type: "outputNode"}},
		Connections: []graph.Connection{{From: 0, To: 1}},
	}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	batches  []string
}

func (r *countingRecorder) RunStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) RunFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) BatchFinished(status string, _ time.Duration, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, status)
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run result")
		return Result{}
	}
}

func waitStarted(t *testing.T, s *stubBatches, batch int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case b := <-s.started:
			if b == batch {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for batch %d", batch)
		}
	}
}

func TestRunGeneratesAllBatches(t *testing.T) {
	batches := newStubBatches()
	runs := store.NewInMemoryRunStore()
	rec := &countingRecorder{}

	var (
		progress []Progress
		selected []graph.WizardSuggestion
	)
	o := New(ai.NewService(nil), batches,
		WithRunStore(runs),
		WithRecorder(rec),
		WithLimiter(rate.NewLimiter(rate.Every(time.Millisecond), 1)),
		WithOnProgress(func(p Progress) { progress = append(progress, p) }),
		WithOnSelectWorkflow(func(s graph.WizardSuggestion) { selected = append(selected, s) }),
	)

	sug, err := o.Run(context.Background(), "Have 57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := batches.sizes(); fmt.Sprint(got) != "[25 25 7]" {
		t.Errorf("expected batch sizes [25 25 7], got %v", got)
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress callbacks, got %d", len(progress))
	}
	last := progress[2]
	if last.BatchesCompleted != 3 || last.BatchCount != 3 || last.Actors != 57 || last.TotalActors != 57 {
		t.Errorf("unexpected final progress: %+v", last)
	}
	if last.Fraction() != 1 {
		t.Errorf("expected fraction 1, got %f", last.Fraction())
	}

	if len(selected) != 1 {
		t.Fatalf("expected OnSelectWorkflow once, got %d", len(selected))
	}
	if len(sug.Nodes) != 60 || len(sug.Connections) != 115 {
		t.Errorf("expected 60 nodes and 115 connections, got %d and %d", len(sug.Nodes), len(sug.Connections))
	}
	if o.State() != StateComplete {
		t.Errorf("expected complete, got %s", o.State())
	}

	tl, err := runs.GetTimeline(context.Background(), o.Progress().RunID)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if tl.Status != store.StatusCompleted || tl.BatchCount != 3 || tl.ActorCount != 57 || len(tl.Batches) != 3 {
		t.Errorf("unexpected timeline: %+v", tl)
	}

	if rec.started != 1 || fmt.Sprint(rec.outcomes) != "[complete]" || len(rec.batches) != 3 {
		t.Errorf("unexpected recorder: %+v", rec)
	}
}

func TestRunWithSmallerBatchSize(t *testing.T) {
	batches := newStubBatches()
	o := New(ai.NewService(nil), batches, WithBatchSize(10))

	if _, err := o.Run(context.Background(), "57 chefs rate a recipe"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := batches.sizes(); fmt.Sprint(got) != "[10 10 10 10 10 7]" {
		t.Errorf("unexpected batch sizes %v", got)
	}
}

func TestRunBatchFailure(t *testing.T) {
	batches := newStubBatches()
	batches.failAt = 1
	selected := 0
	o := New(ai.NewService(nil), batches,
		WithOnSelectWorkflow(func(graph.WizardSuggestion) { selected++ }))

	_, err := o.Run(context.Background(), "57 chefs rate a recipe")
	var be *BatchError
	if !errors.As(err, &be) || be.Batch != 1 {
		t.Fatalf("expected BatchError for batch 1, got %v", err)
	}
	if o.State() != StateError || !errors.Is(o.Err(), err) {
		t.Errorf("expected error state with the batch error, got %s / %v", o.State(), o.Err())
	}
	if len(batches.sizes()) != 2 {
		t.Errorf("expected no batches after the failure, got %v", batches.sizes())
	}
	if selected != 0 {
		t.Error("OnSelectWorkflow must not fire on failure")
	}

	if _, err := o.Run(context.Background(), "57 chefs rate a recipe"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy before reset, got %v", err)
	}
	if err := o.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if o.State() != StateIdle || o.Err() != nil {
		t.Errorf("expected clean idle state, got %s / %v", o.State(), o.Err())
	}
}

func TestRunParseFailure(t *testing.T) {
	o := New(failingIntents{}, newStubBatches())

	_, err := o.Run(context.Background(), "anything")
	if !errors.Is(err, ErrUnderstand) {
		t.Fatalf("expected ErrUnderstand, got %v", err)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
}

func TestRunRejectsOversizedPanel(t *testing.T) {
	batches := newStubBatches()
	batches.failAt = 0
	o := New(ai.NewService(nil), batches)

	// The extractor clamps the count, so the run is bounded.
	_, err := o.Run(context.Background(), "50000000 chefs rating a recipe")
	var be *BatchError
	if !errors.As(err, &be) || be.Batch != 0 {
		t.Fatalf("expected the first batch to fail, got %v", err)
	}
	if got := batches.sizes(); len(got) != 1 || batches.reqs[0].TotalCount != intent.MaxAgentCount {
		t.Errorf("expected one request for %d actors, got %+v", intent.MaxAgentCount, batches.reqs)
	}

	// A parse response from elsewhere is checked before anything is allocated.
	in := intent.ExtractIntent("57 chefs rating a recipe")
	in.AgentCount = 9000000000000000000
	o = New(fixedIntents{&ai.ParseResponse{Intent: in, NeedsBatchGeneration: true}}, newStubBatches())
	if _, err := o.Run(context.Background(), "anything"); !errors.Is(err, ErrUnderstand) {
		t.Fatalf("expected ErrUnderstand, got %v", err)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
}

func TestRunNilResultsAreUnderstandErrors(t *testing.T) {
	tests := []struct {
		name    string
		intents IntentService
		legacy  LegacyGenerator
	}{
		{"nil parse response", nilIntents{}, nil},
		{"nil legacy suggestion", ai.NewService(nil), nilLegacy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(tt.intents, newStubBatches(), WithLegacy(tt.legacy))
			_, err := o.Run(context.Background(), "summarize my inbox")
			if !errors.Is(err, ErrUnderstand) {
				t.Fatalf("expected ErrUnderstand, got %v", err)
			}
			if o.State() != StateError {
				t.Errorf("expected error state, got %s", o.State())
			}
		})
	}
}

func TestCancelMidRun(t *testing.T) {
	batches := newStubBatches()
	batches.block = make(chan struct{})
	selected := 0
	runs := store.NewInMemoryRunStore()
	o := New(ai.NewService(nil), batches,
		WithRunStore(runs),
		WithOnSelectWorkflow(func(graph.WizardSuggestion) { selected++ }))

	results, err := o.Start(context.Background(), "57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, batches, 1)
	runID := o.Progress().RunID

	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if o.State() != StateIdle {
		t.Errorf("expected idle immediately after cancel, got %s", o.State())
	}

	res := waitResult(t, results)
	if !errors.Is(res.Err, ErrCancelled) || res.Suggestion != nil {
		t.Errorf("expected ErrCancelled and no suggestion, got %+v", res)
	}
	if _, open := <-results; open {
		t.Error("expected result channel to be closed")
	}
	if selected != 0 {
		t.Error("OnSelectWorkflow must not fire after cancel")
	}
	batches.mu.Lock()
	ctxErrs := batches.ctxErrs
	batches.mu.Unlock()
	if len(ctxErrs) != 1 || !errors.Is(ctxErrs[0], context.Canceled) {
		t.Errorf("expected the in-flight request to observe cancellation, got %v", ctxErrs)
	}
	if o.Err() != nil {
		t.Errorf("cancellation must not surface an error, got %v", o.Err())
	}

	tl, err := runs.GetTimeline(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if tl.Status != store.StatusCancelled {
		t.Errorf("expected cancelled timeline, got %s", tl.Status)
	}

	// A fresh run can start right away and carries none of the cancelled
	// run's actors.
	close(batches.block)
	sug, err := o.Run(context.Background(), "3 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	var actors int
	for _, n := range sug.Nodes {
		if n.Type == graph.DefaultActorType {
			actors++
		}
	}
	if actors != 3 || len(sug.Nodes) != 6 {
		t.Errorf("expected 3 actor nodes out of 6, got %d of %d", actors, len(sug.Nodes))
	}
}

func TestParentContextCancellation(t *testing.T) {
	batches := newStubBatches()
	batches.block = make(chan struct{})
	defer close(batches.block)
	o := New(ai.NewService(nil), batches)

	ctx, cancel := context.WithCancel(context.Background())
	results, err := o.Start(ctx, "57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, batches, 1)
	cancel()

	res := waitResult(t, results)
	if !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", res.Err)
	}
	if o.State() != StateIdle {
		t.Errorf("expected idle, got %s", o.State())
	}
}

func TestPauseResume(t *testing.T) {
	batches := newStubBatches()
	var o *Orchestrator
	progressed := make(chan Progress, 8)
	o = New(ai.NewService(nil), batches,
		WithOnProgress(func(p Progress) {
			if p.BatchesCompleted == 1 {
				if err := o.Pause(); err != nil {
					t.Errorf("Pause: %v", err)
				}
			}
			progressed <- p
		}))

	results, err := o.Start(context.Background(), "57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-progressed

	time.Sleep(50 * time.Millisecond)
	if n := len(batches.sizes()); n != 1 {
		t.Fatalf("expected the run to hold after batch 1, got %d batches", n)
	}
	if !o.Progress().Paused || o.State() != StateGenerating {
		t.Errorf("expected paused while generating, got %+v in %s", o.Progress(), o.State())
	}
	if err := o.Pause(); err != nil {
		t.Errorf("second Pause should be a no-op, got %v", err)
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	res := waitResult(t, results)
	if res.Err != nil {
		t.Fatalf("run failed: %v", res.Err)
	}
	if got := len(batches.sizes()); got != 3 {
		t.Errorf("expected 3 batches, got %d", got)
	}
}

func TestCancelWhilePaused(t *testing.T) {
	batches := newStubBatches()
	var o *Orchestrator
	paused := make(chan struct{})
	o = New(ai.NewService(nil), batches,
		WithOnProgress(func(p Progress) {
			_ = o.Pause()
			close(paused)
		}))

	results, err := o.Start(context.Background(), "57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-paused
	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res := waitResult(t, results); !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", res.Err)
	}
}

func TestLegacyPath(t *testing.T) {
	batches := newStubBatches()
	legacy := &stubLegacy{}
	rec := &countingRecorder{}
	var states []State
	o := New(ai.NewService(nil), batches,
		WithLegacy(legacy),
		WithRecorder(rec),
		WithOnStateChange(func(ev TransitionEvent) { states = append(states, ev.ToState) }))

	sug, err := o.Run(context.Background(), "summarize my inbox")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sug.ID != "legacy" || legacy.calls != 1 || len(batches.sizes()) != 0 {
		t.Errorf("expected the single-shot path, got %+v, %d legacy calls, %v batches", sug, legacy.calls, batches.sizes())
	}
	if fmt.Sprint(states) != "[parsing complete]" {
		t.Errorf("unexpected transitions %v", states)
	}
	if fmt.Sprint(rec.outcomes) != "[legacy]" {
		t.Errorf("unexpected outcomes %v", rec.outcomes)
	}
}

func TestLegacyFailureIsUnderstandError(t *testing.T) {
	o := New(ai.NewService(nil), newStubBatches(), WithLegacy(&stubLegacy{err: errors.New("timeout")}))

	_, err := o.Run(context.Background(), "summarize my inbox")
	if !errors.Is(err, ErrUnderstand) {
		t.Errorf("expected ErrUnderstand, got %v", err)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
}

func TestGeneralRequestWithoutLegacyUsesBatches(t *testing.T) {
	batches := newStubBatches()
	o := New(ai.NewService(nil), batches)

	sug, err := o.Run(context.Background(), "summarize my inbox")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(batches.sizes()) != "[10]" || len(sug.Nodes) != 13 {
		t.Errorf("expected one batch of 10 default agents, got %v and %d nodes", batches.sizes(), len(sug.Nodes))
	}
}

func TestInvalidSignals(t *testing.T) {
	o := New(ai.NewService(nil), newStubBatches())

	for name, fn := range map[string]func() error{
		"pause":  o.Pause,
		"resume": o.Resume,
		"cancel": o.Cancel,
	} {
		if err := fn(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s in idle: expected ErrInvalidTransition, got %v", name, err)
		}
	}
	if err := o.Reset(); err != nil {
		t.Errorf("reset in idle should be a no-op, got %v", err)
	}

	batches := newStubBatches()
	batches.block = make(chan struct{})
	defer close(batches.block)
	o = New(ai.NewService(nil), batches)
	results, _ := o.Start(context.Background(), "57 chefs rate a recipe")
	waitStarted(t, batches, 1)

	if err := o.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reset while generating: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := o.Start(context.Background(), "again"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	_ = o.Cancel()
	waitResult(t, results)
}

func TestClose(t *testing.T) {
	batches := newStubBatches()
	batches.block = make(chan struct{})
	defer close(batches.block)
	closed, selected := 0, 0
	o := New(ai.NewService(nil), batches,
		WithOnClose(func() { closed++ }),
		WithOnSelectWorkflow(func(graph.WizardSuggestion) { selected++ }))

	results, err := o.Start(context.Background(), "57 chefs rate a recipe")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, batches, 1)

	o.Close()
	o.Close()

	if res := waitResult(t, results); !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", res.Err)
	}
	if closed != 1 || selected != 0 {
		t.Errorf("expected OnClose once and no selection, got closed=%d selected=%d", closed, selected)
	}
	if _, err := o.Run(context.Background(), "5 chefs rate a recipe"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateParsing, true},
		{StateParsing, StateGenerating, true},
		{StateParsing, StateComplete, true},
		{StateParsing, StateIdle, true},
		{StateGenerating, StateError, true},
		{StateGenerating, StateIdle, true},
		{StateComplete, StateIdle, true},
		{StateError, StateIdle, true},
		{StateIdle, StateGenerating, false},
		{StateComplete, StateParsing, false},
		{StateError, StateGenerating, false},
		{StateGenerating, StateParsing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{Batch: 2, Err: context.DeadlineExceeded}
	if err.Error() != "batch 3 failed: context deadline exceeded" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected BatchError to unwrap")
	}
}
