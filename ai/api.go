package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the wizard service API.
type Handler struct {
	service *Service
	runs    store.RunStore
	logger  *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRunStore exposes run history from rs on the runs endpoints.
func WithRunStore(rs store.RunStore) HandlerOption {
	return func(h *Handler) { h.runs = rs }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a new wizard API handler.
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the wizard API routes on a ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/wizard/parse", h.HandleParse)
	mux.HandleFunc("POST /api/wizard/generate-batch", h.HandleGenerateBatch)
	mux.HandleFunc("POST /api/wizard/generate", h.HandleGenerate)
	mux.HandleFunc("GET /api/wizard/providers", h.HandleProviders)
	mux.HandleFunc("GET /api/wizard/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/wizard/runs/{id}", h.HandleGetRun)
}

// HandleParse handles POST /api/wizard/parse
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.service.Parse(r.Context(), req.Query)
	if err != nil {
		h.fail(w, r, "parse failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGenerateBatch handles POST /api/wizard/generate-batch
func (h *Handler) HandleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}

	agents, err := h.service.GenerateBatch(r.Context(), req)
	if err != nil {
		h.fail(w, r, "batch generation failed", err)
		return
	}
	if agents == nil {
		agents = []graph.GeneratedActor{}
	}
	writeJSON(w, http.StatusOK, BatchResponse{Agents: agents})
}

// HandleGenerate handles POST /api/wizard/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sug, err := h.service.Generate(r.Context(), req.Query)
	if err != nil {
		h.fail(w, r, "generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Suggestion: *sug})
}

// HandleProviders handles GET /api/wizard/providers
func (h *Handler) HandleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": h.service.Providers(),
	})
}

// HandleListRuns handles GET /api/wizard/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{Status: q.Get("status")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}
	for name, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name+": want RFC3339")
				return
			}
			*dst = &t
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list runs failed", err)
		return
	}
	if runs == nil {
		runs = []store.RunTimeline{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// HandleGetRun handles GET /api/wizard/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	timeline, err := h.runs.GetTimeline(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg+": "+err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		// Client went away.
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
