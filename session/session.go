// Package session serves live wizard runs over a websocket. Each connection
// owns one orchestrator; the client drives it with commands and receives
// state, progress and result events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/gorilla/websocket"
)

// Client command actions.
const (
	ActionSubmit = "submit"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionCancel = "cancel"
	ActionReset  = "reset"
	ActionClose  = "close"
)

// Server event types.
const (
	EventState    = "state"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
	EventClosed   = "closed"
)

const (
	maxCommandBytes = 64 << 10
	writeWait       = 10 * time.Second
	outboxSize      = 64
)

// Command is a client message.
type Command struct {
	Action string `json:"action"`
	Query  string `json:"query,omitempty"`
}

// Event is a server message.
type Event struct {
	Type       string                        `json:"type"`
	Transition *orchestrator.TransitionEvent `json:"transition,omitempty"`
	Progress   *orchestrator.Progress        `json:"progress,omitempty"`
	Suggestion *graph.WizardSuggestion       `json:"suggestion,omitempty"`
	Error      string                        `json:"error,omitempty"`
	Batch      *int                          `json:"batch,omitempty"`
}

// Handler upgrades requests to wizard sessions.
type Handler struct {
	intents  orchestrator.IntentService
	batches  orchestrator.BatchGenerator
	opts     []orchestrator.Option
	logger   *slog.Logger
	upgrader websocket.Upgrader
	pingWait time.Duration

	wg sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOrchestratorOptions applies opts to every session's orchestrator.
// The session installs its own callbacks after them.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(h *Handler) { h.opts = append(h.opts, opts...) }
}

// WithCheckOrigin sets the origin check used during the upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// WithPingInterval sets how often the server pings the client. A client
// that misses two pings is disconnected.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingWait = d
		}
	}
}

// NewHandler creates a session handler.
func NewHandler(intents orchestrator.IntentService, batches orchestrator.BatchGenerator, opts ...Option) *Handler {
	h := &Handler{
		intents:  intents,
		batches:  batches,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		pingWait: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the session endpoint on a ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/wizard/ws", h)
}

// Wait blocks until every session has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ServeHTTP upgrades the connection and runs the session until the client
// disconnects or sends close.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	s := &session{
		conn:   conn,
		logger: h.logger,
		out:    make(chan Event, outboxSize),
		done:   make(chan struct{}),
		ping:   h.pingWait,
	}

	opts := append([]orchestrator.Option{}, h.opts...)
	opts = append(opts,
		orchestrator.WithOnStateChange(func(ev orchestrator.TransitionEvent) {
			s.send(Event{Type: EventState, Transition: &ev})
		}),
		orchestrator.WithOnProgress(func(p orchestrator.Progress) {
			s.send(Event{Type: EventProgress, Progress: &p})
		}),
		orchestrator.WithOnSelectWorkflow(func(sug graph.WizardSuggestion) {
			s.send(Event{Type: EventComplete, Suggestion: &sug})
		}),
		orchestrator.WithOnClose(func() {
			s.send(Event{Type: EventClosed})
		}),
	)
	s.orch = orchestrator.New(h.intents, h.batches, opts...)

	h.logger.Info("wizard session opened", "remote", r.RemoteAddr)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(r.Context())

	s.shutdown()
	<-writerDone
	_ = conn.Close()
	h.logger.Info("wizard session closed", "remote", r.RemoteAddr)
}

type session struct {
	conn   *websocket.Conn
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	ping   time.Duration

	out      chan Event
	done     chan struct{}
	doneOnce sync.Once
	runs     sync.WaitGroup
}

// send queues ev for the writer. Events are dropped once the session is
// shutting down.
func (s *session) send(ev Event) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

func (s *session) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *session) readLoop(ctx context.Context) {
	// Disconnecting abandons the wizard: any run is cancelled without
	// selecting a workflow.
	defer func() {
		s.orch.Close()
		s.runs.Wait()
	}()

	s.conn.SetReadLimit(maxCommandBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * s.ping))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(2 * s.ping))
	})

	for {
		var cmd Command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("wizard session read failed", "error", err)
			}
			return
		}
		if cmd.Action == ActionClose {
			return
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *session) dispatch(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Action {
	case ActionSubmit:
		err = s.submit(ctx, cmd.Query)
	case ActionPause:
		err = s.orch.Pause()
	case ActionResume:
		err = s.orch.Resume()
	case ActionCancel:
		err = s.orch.Cancel()
	case ActionReset:
		err = s.orch.Reset()
	default:
		err = errors.New("unknown action " + cmd.Action)
	}
	if err != nil {
		s.send(errorEvent(err))
	}
}

func (s *session) submit(ctx context.Context, query string) error {
	if query == "" {
		return errors.New("query is required")
	}
	results, err := s.orch.Start(ctx, query)
	if err != nil {
		return err
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		res := <-results
		if res.Err != nil && !errors.Is(res.Err, orchestrator.ErrCancelled) {
			s.send(errorEvent(res.Err))
		}
	}()
	return nil
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.out:
			if err := s.write(ev); err != nil {
				s.logger.Debug("wizard session write failed", "error", err)
				s.shutdown()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			s.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes the events queued before shutdown.
func (s *session) flush() {
	for {
		select {
		case ev := <-s.out:
			if s.write(ev) != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(ev Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

func errorEvent(err error) Event {
	ev := Event{Type: EventError, Error: err.Error()}
	var be *orchestrator.BatchError
	if errors.As(err, &be) {
		n := be.Batch + 1
		ev.Batch = &n
	}
	return ev
}
