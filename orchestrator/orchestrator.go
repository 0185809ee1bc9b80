// Package orchestrator drives a wizard run: it parses the request, requests
// actor batches one at a time, and assembles the final workflow graph.
// Runs can be paused, resumed and cancelled from other goroutines.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/observability/tracing"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// IntentService parses a free-text request.
type IntentService interface {
	Parse(ctx context.Context, query string) (*ai.ParseResponse, error)
}

// BatchGenerator produces the actors of one batch.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error)
}

// LegacyGenerator produces a whole suggestion for requests that name no
// actor population.
type LegacyGenerator interface {
	Generate(ctx context.Context, query string) (*graph.WizardSuggestion, error)
}

// Recorder receives run and batch outcomes, typically a metrics collector.
type Recorder interface {
	RunStarted()
	RunFinished(outcome string)
	BatchFinished(status string, d time.Duration, actors int)
}

// Result is delivered by Start when the run ends.
type Result struct {
	Suggestion *graph.WizardSuggestion
	Err        error
}

// Orchestrator is the stateful driver of wizard runs. One run is active at
// a time; every exported method is safe for concurrent use.
type Orchestrator struct {
	intents   IntentService
	batches   BatchGenerator
	legacy    LegacyGenerator
	logger    *slog.Logger
	batchSize int
	limiter   *rate.Limiter
	runs      store.RunStore
	tracer    *tracing.WizardTracer
	recorder  Recorder

	onProgress func(Progress)
	onSelect   func(graph.WizardSuggestion)
	onClose    func()
	onState    func(TransitionEvent)

	mu       sync.Mutex
	state    State
	err      error
	progress Progress
	current  *run
	closed   bool
}

// run is the per-submission state. It is discarded when the run ends or is
// cancelled; a goroutine holding a stale run never touches the orchestrator.
type run struct {
	id     uuid.UUID
	query  string
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	gate   gate
	legacy bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBatchSize overrides ai.BatchSize. Values outside 1..ai.BatchSize are ignored.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 && n <= ai.BatchSize {
			o.batchSize = n
		}
	}
}

// WithLimiter paces batch requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithRunStore records run events.
func WithRunStore(rs store.RunStore) Option {
	return func(o *Orchestrator) { o.runs = rs }
}

// WithTracer sets the span helper.
func WithTracer(t *tracing.WizardTracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithRecorder reports run and batch outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLegacy enables the single-shot path for requests without a counted
// actor population.
func WithLegacy(g LegacyGenerator) Option {
	return func(o *Orchestrator) { o.legacy = g }
}

// WithOnProgress is called after every completed batch.
func WithOnProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithOnSelectWorkflow is called exactly once per successful run.
func WithOnSelectWorkflow(fn func(graph.WizardSuggestion)) Option {
	return func(o *Orchestrator) { o.onSelect = fn }
}

// WithOnClose is called once when the wizard is abandoned.
func WithOnClose(fn func()) Option {
	return func(o *Orchestrator) { o.onClose = fn }
}

// WithOnStateChange is called after every state transition.
func WithOnStateChange(fn func(TransitionEvent)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// New creates an idle orchestrator.
func New(intents IntentService, batches BatchGenerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		intents:   intents,
		batches:   batches,
		logger:    slog.Default(),
		batchSize: ai.BatchSize,
		tracer:    tracing.NewWizardTracer(nil),
		recorder:  nopRecorder{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error that moved the orchestrator to StateError, or nil.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Progress returns the progress of the current or last run.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.progress
	if o.current != nil {
		p.Paused = o.current.gate.paused()
	}
	return p
}

// Run executes one wizard run and blocks until it ends. Cancelling ctx has
// the same effect as Cancel.
func (o *Orchestrator) Run(ctx context.Context, query string) (*graph.WizardSuggestion, error) {
	r, err := o.begin(ctx, query)
	if err != nil {
		return nil, err
	}
	return o.finish(r, o.execute(r))
}

// Start begins a run in a new goroutine. Submission errors such as ErrBusy
// are returned directly; the run's outcome is delivered on the channel.
func (o *Orchestrator) Start(ctx context.Context, query string) (<-chan Result, error) {
	r, err := o.begin(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make(chan Result, 1)
	go func() {
		sug, err := o.finish(r, o.execute(r))
		results <- Result{Suggestion: sug, Err: err}
		close(results)
	}()
	return results, nil
}

// Pause holds the run before its next batch. The in-flight batch, if any,
// completes normally.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	r := o.current
	if r == nil || (o.state != StateParsing && o.state != StateGenerating) {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: pause in state %s", ErrInvalidTransition, state)
	}
	changed := r.gate.pause()
	o.mu.Unlock()

	if changed {
		o.logger.Info("wizard run paused", "runId", r.id)
		o.record(r, store.EventRunPaused, nil)
	}
	return nil
}

// Resume releases a paused run.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	r := o.current
	if r == nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: resume in state %s", ErrInvalidTransition, state)
	}
	changed := r.gate.resume()
	o.mu.Unlock()

	if changed {
		o.logger.Info("wizard run resumed", "runId", r.id)
		o.record(r, store.EventRunResumed, nil)
	}
	return nil
}

// Cancel aborts the active run, including the in-flight request. The
// orchestrator returns to idle immediately, the generated actors are
// dropped and OnSelectWorkflow is not called.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	r := o.current
	if r == nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cancel in state %s", ErrInvalidTransition, state)
	}
	ev := o.abandonLocked(r)
	o.mu.Unlock()

	o.cancelled(r, ev)
	return nil
}

// Reset returns a complete or failed orchestrator to idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	from := o.state
	switch {
	case from == StateIdle:
		o.mu.Unlock()
		return nil
	case !from.Terminal():
		o.mu.Unlock()
		return fmt.Errorf("%w: reset in state %s", ErrInvalidTransition, from)
	}
	o.state = StateIdle
	o.err = nil
	o.progress = Progress{}
	o.mu.Unlock()

	o.emit(TransitionEvent{FromState: from, ToState: StateIdle, Timestamp: time.Now()})
	return nil
}

// Close abandons the wizard: any run is cancelled and OnClose fires. Later
// submissions fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	r := o.current
	var ev TransitionEvent
	if r != nil {
		ev = o.abandonLocked(r)
	}
	o.mu.Unlock()

	if r != nil {
		o.cancelled(r, ev)
	}
	if o.onClose != nil {
		o.onClose()
	}
}

func (o *Orchestrator) begin(ctx context.Context, query string) (*run, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrBusy, state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{id: uuid.New(), query: query, parent: ctx, ctx: runCtx, cancel: cancel}
	o.current = r
	o.err = nil
	o.progress = Progress{RunID: r.id}
	o.state = StateParsing
	o.mu.Unlock()

	o.logger.Info("wizard run started", "runId", r.id, "query", query)
	o.recorder.RunStarted()
	o.record(r, store.EventRunStarted, map[string]any{"query": query})
	o.emit(TransitionEvent{RunID: r.id, FromState: StateIdle, ToState: StateParsing, Timestamp: time.Now()})
	return r, nil
}

type outcome struct {
	suggestion *graph.WizardSuggestion
	err        error
}

func (o *Orchestrator) execute(r *run) outcome {
	ctx, span := o.tracer.StartRun(r.ctx, r.id.String(), r.query)
	defer span.End()

	sug, err := o.pipeline(ctx, r)
	if err != nil {
		o.tracer.RecordError(span, err)
	} else {
		o.tracer.SetSuccess(span)
	}
	return outcome{suggestion: sug, err: err}
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) (*graph.WizardSuggestion, error) {
	if err := r.gate.wait(ctx); err != nil {
		return nil, err
	}

	pctx, pspan := o.tracer.StartParse(ctx)
	parsed, err := o.intents.Parse(pctx, r.query)
	if err != nil {
		o.tracer.RecordError(pspan, err)
		pspan.End()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnderstand, err)
	}
	pspan.End()
	if parsed == nil {
		return nil, fmt.Errorf("%w: empty parse response", ErrUnderstand)
	}

	useLegacy := !parsed.NeedsBatchGeneration && o.legacy != nil
	batchCount := 0
	if !useLegacy {
		if n := parsed.Intent.AgentCount; n > intent.MaxAgentCount {
			return nil, fmt.Errorf("%w: %d actors requested, at most %d allowed", ErrUnderstand, n, intent.MaxAgentCount)
		}
		batchCount = ai.EstimateBatches(parsed.Intent.AgentCount, o.batchSize)
		if batchCount == 0 {
			return nil, fmt.Errorf("%w: no actors requested", ErrUnderstand)
		}
	}
	o.record(r, store.EventIntentParsed, map[string]any{
		"workflowType": parsed.Intent.WorkflowType,
		"agentCount":   parsed.Intent.AgentCount,
		"batchCount":   batchCount,
	})

	if useLegacy {
		r.legacy = true
		sug, err := o.legacy.Generate(ctx, r.query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", ErrUnderstand, err)
		}
		if sug == nil {
			return nil, fmt.Errorf("%w: empty suggestion", ErrUnderstand)
		}
		if err := graph.Validate(*sug).Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnderstand, err)
		}
		return sug, nil
	}

	if !o.transition(r, StateGenerating) {
		return nil, ErrCancelled
	}
	o.setProgress(r, Progress{RunID: r.id, BatchCount: batchCount, TotalActors: parsed.Intent.AgentCount})

	actors, err := o.generate(ctx, r, parsed, batchCount)
	if err != nil {
		return nil, err
	}

	_, aspan := o.tracer.StartAssemble(ctx, len(actors))
	defer aspan.End()
	sug := graph.Assemble(parsed.Intent, parsed.Skeleton, actors)
	if err := graph.Validate(sug).Err(); err != nil {
		o.tracer.RecordError(aspan, err)
		return nil, err
	}
	return &sug, nil
}

// generate requests the batches strictly in sequence. The accumulator is
// local to the run and only escapes through a successful return.
func (o *Orchestrator) generate(ctx context.Context, r *run, parsed *ai.ParseResponse, batchCount int) ([]graph.GeneratedActor, error) {
	total := parsed.Intent.AgentCount
	actors := make([]graph.GeneratedActor, 0, min(total, o.batchSize))

	for b := range batchCount {
		if err := r.gate.wait(ctx); err != nil {
			return nil, err
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req := ai.NewBatchRequest(parsed.Intent, b, o.batchSize)
		req.BatchSize = min(o.batchSize, total-len(actors))
		if req.BatchSize <= 0 {
			break
		}

		start := time.Now()
		bctx, bspan := o.tracer.StartBatch(ctx, b, req.BatchSize, total)
		got, err := o.batches.GenerateBatch(bctx, req)
		elapsed := time.Since(start)
		if err != nil {
			o.tracer.RecordError(bspan, err)
			bspan.End()
			if ctx.Err() != nil {
				o.recorder.BatchFinished(BatchStatusCancelled, elapsed, 0)
				return nil, ctx.Err()
			}
			o.recorder.BatchFinished(BatchStatusError, elapsed, 0)
			o.record(r, store.EventBatchFailed, map[string]any{
				"batch": b, "size": req.BatchSize, "error": err.Error(),
			})
			return nil, &BatchError{Batch: b, Err: err}
		}
		bspan.End()

		if len(got) > req.BatchSize {
			got = got[:req.BatchSize]
		}
		actors = append(actors, got...)
		o.recorder.BatchFinished(BatchStatusOK, elapsed, len(got))
		o.record(r, store.EventBatchCompleted, map[string]any{
			"batch": b, "size": req.BatchSize, "actors": len(got),
		})
		o.logger.Debug("wizard batch completed",
			"runId", r.id, "batch", b+1, "of", batchCount, "actors", len(actors))

		p := Progress{
			RunID:            r.id,
			BatchesCompleted: b + 1,
			BatchCount:       batchCount,
			Actors:           len(actors),
			TotalActors:      total,
		}
		if o.setProgress(r, p) && o.onProgress != nil {
			p.Paused = r.gate.paused()
			o.onProgress(p)
		}
	}
	return actors, nil
}

func (o *Orchestrator) finish(r *run, out outcome) (*graph.WizardSuggestion, error) {
	defer r.cancel()

	o.mu.Lock()
	if o.current != r {
		// Cancel or Close already settled this run.
		o.mu.Unlock()
		return nil, ErrCancelled
	}

	from := o.state
	var to State
	err := out.err
	switch {
	case err == nil:
		to = StateComplete
	case r.ctx.Err() != nil || errors.Is(err, ErrCancelled):
		ev := o.abandonLocked(r)
		o.mu.Unlock()
		o.cancelled(r, ev)
		return nil, ErrCancelled
	default:
		to = StateError
		o.err = err
	}
	o.state = to
	o.current = nil
	o.mu.Unlock()

	o.emit(TransitionEvent{RunID: r.id, FromState: from, ToState: to, Timestamp: time.Now()})

	if err != nil {
		o.logger.Warn("wizard run failed", "runId", r.id, "error", err)
		o.recorder.RunFinished(OutcomeError)
		o.record(r, store.EventRunFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	result := OutcomeComplete
	if r.legacy {
		result = OutcomeLegacy
	}
	o.logger.Info("wizard run complete", "runId", r.id, "nodes", len(out.suggestion.Nodes))
	o.recorder.RunFinished(result)
	o.record(r, store.EventRunCompleted, map[string]any{
		"actorCount":   actorCount(out.suggestion),
		"suggestionId": out.suggestion.ID,
	})
	if o.onSelect != nil {
		o.onSelect(*out.suggestion)
	}
	return out.suggestion, nil
}

// abandonLocked detaches r and moves to idle. The caller must hold o.mu and
// pass the returned event to cancelled after unlocking.
func (o *Orchestrator) abandonLocked(r *run) TransitionEvent {
	from := o.state
	r.cancel()
	o.current = nil
	o.state = StateIdle
	o.progress = Progress{}
	return TransitionEvent{RunID: r.id, FromState: from, ToState: StateIdle, Timestamp: time.Now()}
}

func (o *Orchestrator) cancelled(r *run, ev TransitionEvent) {
	o.logger.Info("wizard run cancelled", "runId", r.id)
	o.recorder.RunFinished(OutcomeCancelled)
	o.record(r, store.EventRunCancelled, nil)
	o.emit(ev)
}

// transition moves r's orchestrator to the given state if r is still the
// active run.
func (o *Orchestrator) transition(r *run, to State) bool {
	o.mu.Lock()
	if o.current != r || !CanTransition(o.state, to) {
		o.mu.Unlock()
		return false
	}
	from := o.state
	o.state = to
	o.mu.Unlock()

	o.emit(TransitionEvent{RunID: r.id, FromState: from, ToState: to, Timestamp: time.Now()})
	return true
}

func (o *Orchestrator) setProgress(r *run, p Progress) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return false
	}
	o.progress = p
	return true
}

func (o *Orchestrator) emit(ev TransitionEvent) {
	o.logger.Debug("wizard state changed", "runId", ev.RunID, "from", ev.FromState, "to", ev.ToState)
	if o.onState != nil {
		o.onState(ev)
	}
}

func (o *Orchestrator) record(r *run, eventType string, data map[string]any) {
	if o.runs == nil {
		return
	}
	// History survives cancellation of the run.
	ctx := context.WithoutCancel(r.parent)
	if err := o.runs.Append(ctx, r.id, eventType, data); err != nil {
		o.logger.Warn("failed to record run event", "runId", r.id, "event", eventType, "error", err)
	}
}

func actorCount(s *graph.WizardSuggestion) int {
	n := 0
	for _, node := range s.Nodes {
		if _, ok := node.Data["actorIndex"]; ok {
			n++
		}
	}
	return n
}

type nopRecorder struct{}

func (nopRecorder) RunStarted()                              {}
func (nopRecorder) RunFinished(string)                       {}
func (nopRecorder) BatchFinished(string, time.Duration, int) {}
