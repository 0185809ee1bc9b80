package ai

import (
	"fmt"

	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
)

// BatchSize is the number of actors requested per generation batch. The
// orchestrator and the batch endpoint must agree on it.
const BatchSize = 25

// ParseRequest is the body of POST /api/wizard/parse.
type ParseRequest struct {
	Query string `json:"query"`
}

// ParseResponse is the intent service result.
type ParseResponse struct {
	Intent               intent.ParsedIntent       `json:"intent"`
	Skeleton             skeleton.WorkflowSkeleton `json:"skeleton"`
	NeedsBatchGeneration bool                      `json:"needsBatchGeneration"`
	EstimatedBatches     int                       `json:"estimatedBatches"`
}

// BatchRequest is the body of POST /api/wizard/generate-batch.
type BatchRequest struct {
	BatchNumber     int                `json:"batchNumber"` // 0-indexed
	BatchSize       int                `json:"batchSize"`
	TotalCount      int                `json:"totalCount"`
	AgentNoun       string             `json:"agentNoun"`
	AgentNounPlural string             `json:"agentNounPlural"`
	NamingStyle     intent.NamingStyle `json:"namingStyle"`
	TaskType        intent.TaskType    `json:"taskType"`
	TaskVerb        string             `json:"taskVerb"`
	TaskContext     string             `json:"taskContext"`
	DemographicMix  []string           `json:"demographicMix,omitempty"`
}

// BatchResponse is the batch generation result.
type BatchResponse struct {
	Agents []graph.GeneratedActor `json:"agents"`
}

// GenerateRequest is the body of the legacy single-shot POST /api/wizard/generate.
type GenerateRequest struct {
	Query string `json:"query"`
}

// GenerateResponse carries a complete suggestion from the single-shot path.
type GenerateResponse struct {
	Suggestion graph.WizardSuggestion `json:"suggestion"`
}

// Provider identifies a generation backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderTemplate  Provider = "template"
	ProviderAuto      Provider = "auto"
)

// EstimateBatches returns ceil(total/size).
func EstimateBatches(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// NewBatchRequest builds the request for batch number batch (0-indexed) of
// in. The last batch asks only for the remaining actors.
func NewBatchRequest(in intent.ParsedIntent, batch, size int) BatchRequest {
	remaining := in.AgentCount - batch*size
	if remaining > size {
		remaining = size
	}
	if remaining < 0 {
		remaining = 0
	}
	return BatchRequest{
		BatchNumber:     batch,
		BatchSize:       remaining,
		TotalCount:      in.AgentCount,
		AgentNoun:       in.AgentNoun,
		AgentNounPlural: in.AgentNounPlural,
		NamingStyle:     in.NamingStyle,
		TaskType:        in.TaskType,
		TaskVerb:        in.TaskVerb,
		TaskContext:     in.TaskDescription,
		DemographicMix:  in.DemographicMix,
	}
}

// Validate checks a batch request received over the wire.
func (r BatchRequest) Validate() error {
	switch {
	case r.BatchNumber < 0:
		return errorf("batchNumber must not be negative")
	case r.BatchSize <= 0:
		return errorf("batchSize must be positive")
	case r.BatchSize > BatchSize:
		return fmt.Errorf("%w: batchSize %d exceeds the maximum of %d", ErrBatchTooLarge, r.BatchSize, BatchSize)
	case r.TotalCount <= 0:
		return errorf("totalCount must be positive")
	case r.TotalCount > intent.MaxAgentCount:
		return errorf("totalCount %d exceeds the maximum of %d", r.TotalCount, intent.MaxAgentCount)
	case r.AgentNoun == "":
		return errorf("agentNoun is required")
	}
	return nil
}
