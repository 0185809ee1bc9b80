package ai

import (
	"context"

	"github.com/GoCodeAlone/workflow-wizard/graph"
)

// ActorGenerator produces one batch of concrete actors. Implementations
// must honor ctx cancellation and return at most req.BatchSize actors.
type ActorGenerator interface {
	GenerateActors(ctx context.Context, req BatchRequest) ([]graph.GeneratedActor, error)
}

// SuggestionGenerator produces a complete suggestion in a single call.
// Backends that cannot do this only implement ActorGenerator.
type SuggestionGenerator interface {
	GenerateSuggestion(ctx context.Context, query string, parsed ParseResponse) (*graph.WizardSuggestion, error)
}

// ActorGeneratorFunc adapts a function to ActorGenerator.
type ActorGeneratorFunc func(ctx context.Context, req BatchRequest) ([]graph.GeneratedActor, error)

// GenerateActors calls f.
func (f ActorGeneratorFunc) GenerateActors(ctx context.Context, req BatchRequest) ([]graph.GeneratedActor, error) {
	return f(ctx, req)
}
