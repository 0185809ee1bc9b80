package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/cache"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
)

// Service answers the three wizard boundaries: request parsing, batched
// actor generation and the single-shot legacy suggestion. It selects an
// actor generator by provider. A failed batch is returned to the caller
// unless template fallback is enabled.
type Service struct {
	extractor        atomic.Pointer[intent.Extractor]
	vocabGen         atomic.Uint64
	skeletons        *skeleton.Generator
	fallback         ActorGenerator
	templateFallback bool
	cache            cache.Cache
	cacheTTL         time.Duration
	logger           *slog.Logger

	mu         sync.RWMutex
	generators map[Provider]ActorGenerator
	preferred  Provider
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache caches parse responses in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithVocabulary sets the intent vocabulary.
func WithVocabulary(v *intent.Vocabulary) ServiceOption {
	return func(s *Service) {
		s.extractor.Store(intent.New(v))
	}
}

// WithTemplates sets the skeleton node templates.
func WithTemplates(t *skeleton.Templates) ServiceOption {
	return func(s *Service) {
		s.skeletons = skeleton.NewGenerator(t)
	}
}

// WithTemplateFallback retries a batch on the template generator when the
// selected provider fails. Off by default: the failure is returned as is.
func WithTemplateFallback(enabled bool) ServiceOption {
	return func(s *Service) {
		s.templateFallback = enabled
	}
}

// WithPreferred selects the preferred provider.
func WithPreferred(p Provider) ServiceOption {
	return func(s *Service) {
		s.preferred = p
	}
}

// NewService creates a service. fallback is registered as the template
// provider.
func NewService(fallback ActorGenerator, opts ...ServiceOption) *Service {
	s := &Service{
		skeletons:  skeleton.NewGenerator(nil),
		fallback:   fallback,
		logger:     slog.Default(),
		generators: make(map[Provider]ActorGenerator),
		preferred:  ProviderAuto,
	}
	s.extractor.Store(intent.Default())
	if fallback != nil {
		s.generators[ProviderTemplate] = fallback
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterGenerator registers an actor generator for a provider.
func (s *Service) RegisterGenerator(provider Provider, gen ActorGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generators[provider] = gen
}

// SetPreferred sets the preferred provider. Use ProviderAuto to auto-select.
func (s *Service) SetPreferred(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred = provider
}

// Providers returns the registered provider names, sorted.
func (s *Service) Providers() []Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	providers := make([]Provider, 0, len(s.generators))
	for p := range s.generators {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// SetVocabulary swaps the intent vocabulary. Cached parse responses produced
// under the previous vocabulary are no longer served.
func (s *Service) SetVocabulary(v *intent.Vocabulary) {
	s.extractor.Store(intent.New(v))
	s.vocabGen.Add(1)
	s.logger.Info("intent vocabulary replaced", "generation", s.vocabGen.Load())
}

func (s *Service) generator() (ActorGenerator, Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.preferred != ProviderAuto {
		gen, ok := s.generators[s.preferred]
		if !ok {
			return nil, "", fmt.Errorf("%w: provider %q", ErrNoGenerator, s.preferred)
		}
		return gen, s.preferred, nil
	}

	for _, p := range []Provider{ProviderAnthropic, ProviderTemplate} {
		if gen, ok := s.generators[p]; ok {
			return gen, p, nil
		}
	}

	names := make([]string, 0, len(s.generators))
	for p := range s.generators {
		names = append(names, string(p))
	}
	if len(names) == 0 {
		return nil, "", ErrNoGenerator
	}
	sort.Strings(names)
	p := Provider(names[0])
	return s.generators[p], p, nil
}

// Parse extracts the intent from query and builds its skeleton. Only the
// intent is cached; the skeleton is rebuilt on every call so cached and
// fresh responses carry identical payloads.
func (s *Service) Parse(ctx context.Context, query string) (*ParseResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errorf("query is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.cacheKey(query)
	if s.cache != nil {
		data, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var in intent.ParsedIntent
			if err := json.Unmarshal(data, &in); err == nil {
				return s.respond(in), nil
			}
			s.logger.Warn("discarding undecodable cached parse", "key", key)
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("parse cache read failed", "error", err)
		}
	}

	in := s.extractor.Load().Extract(query)
	resp := s.respond(in)
	s.logger.Debug("parsed wizard request",
		"workflowType", in.WorkflowType,
		"agentCount", in.AgentCount,
		"agentNoun", in.AgentNoun,
		"taskType", in.TaskType,
	)

	if s.cache != nil {
		if data, err := json.Marshal(in); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.logger.Warn("parse cache write failed", "error", err)
			}
		}
	}
	return resp, nil
}

func (s *Service) respond(in intent.ParsedIntent) *ParseResponse {
	resp := &ParseResponse{
		Intent:               in,
		Skeleton:             s.skeletons.Build(in),
		NeedsBatchGeneration: in.NeedsBatchGeneration(),
	}
	if resp.NeedsBatchGeneration {
		resp.EstimatedBatches = EstimateBatches(in.AgentCount, BatchSize)
	}
	return resp
}

// GenerateBatch produces the actors for one batch.
func (s *Service) GenerateBatch(ctx context.Context, req BatchRequest) ([]graph.GeneratedActor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	gen, provider, err := s.generator()
	if err != nil {
		return nil, err
	}

	actors, err := gen.GenerateActors(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("batch %d: %w", req.BatchNumber, ctx.Err())
		}
		if !s.templateFallback || s.fallback == nil || provider == ProviderTemplate {
			return nil, fmt.Errorf("batch %d: %w", req.BatchNumber, err)
		}
		s.logger.Warn("actor generator failed, using template generator",
			"provider", provider, "batch", req.BatchNumber, "error", err)
		actors, err = s.fallback.GenerateActors(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch %d: template fallback: %w", req.BatchNumber, err)
		}
	}

	if len(actors) > req.BatchSize {
		actors = actors[:req.BatchSize]
	}
	return actors, nil
}

// Generate runs the single-shot legacy path: a suggestion from a
// SuggestionGenerator when the selected backend offers one, otherwise the
// skeleton assembled around a single generated actor.
func (s *Service) Generate(ctx context.Context, query string) (*graph.WizardSuggestion, error) {
	parsed, err := s.Parse(ctx, query)
	if err != nil {
		return nil, err
	}

	gen, provider, err := s.generator()
	if err != nil {
		return nil, err
	}
	if sg, ok := gen.(SuggestionGenerator); ok {
		sug, err := sg.GenerateSuggestion(ctx, query, *parsed)
		switch {
		case err == nil:
			if v := graph.Validate(*sug); v.Valid {
				return sug, nil
			}
			s.logger.Warn("discarding invalid generated suggestion", "provider", provider)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			s.logger.Warn("suggestion generator failed, assembling from skeleton",
				"provider", provider, "error", err)
		}
	}

	actors, err := s.GenerateBatch(ctx, NewBatchRequest(parsed.Intent, 0, 1))
	if err != nil {
		return nil, err
	}
	sug := graph.Assemble(parsed.Intent, parsed.Skeleton, actors)
	if err := graph.Validate(sug).Err(); err != nil {
		return nil, err
	}
	return &sug, nil
}

func (s *Service) cacheKey(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("intent:v%d:%s", s.vocabGen.Load(), hex.EncodeToString(sum[:]))
}
