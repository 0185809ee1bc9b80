package intent

// WorkflowType distinguishes persona-panel requests ("500 chefs rating a
// recipe") from requests without a count+noun pattern.
type WorkflowType string

const (
	WorkflowPersonaPanel WorkflowType = "persona-panel"
	WorkflowGeneral      WorkflowType = "general"
)

// NamingStyle controls how generated personas are named.
type NamingStyle string

const (
	NamingProfessional NamingStyle = "professional"
	NamingCasual       NamingStyle = "casual"
	NamingFantasy      NamingStyle = "fantasy"
	NamingNumbered     NamingStyle = "numbered"
)

// TaskType is what the generated actors are asked to do.
type TaskType string

const (
	TaskRating   TaskType = "rating"
	TaskReaction TaskType = "reaction"
	TaskAnalysis TaskType = "analysis"
	TaskTesting  TaskType = "testing"
	TaskCreation TaskType = "creation"
	TaskVoting   TaskType = "voting"
	TaskDebate   TaskType = "debate"
	TaskCustom   TaskType = "custom"
)

// InputType is the kind of content fed to every actor.
type InputType string

const (
	InputTest     InputType = "test"
	InputVideo    InputType = "video"
	InputArticle  InputType = "article"
	InputDocument InputType = "document"
	InputData     InputType = "data"
	InputFood     InputType = "food"
	InputProduct  InputType = "product"
	InputCustom   InputType = "custom"
)

// OutputType is the shape of the workflow's final output.
type OutputType string

const (
	OutputScores        OutputType = "scores"
	OutputReactions     OutputType = "reactions"
	OutputInsights      OutputType = "insights"
	OutputTestResults   OutputType = "test-results"
	OutputCollection    OutputType = "collection"
	OutputVoteTally     OutputType = "vote-tally"
	OutputDebateSummary OutputType = "debate-summary"
	OutputSummary       OutputType = "summary"
)

// AggregationType is how the aggregator node combines actor outputs.
type AggregationType string

const (
	AggregateAverage   AggregationType = "average"
	AggregateSentiment AggregationType = "sentiment"
	AggregateSynthesis AggregationType = "synthesis"
	AggregatePassFail  AggregationType = "pass-fail"
	AggregateCuration  AggregationType = "curation"
	AggregateMajority  AggregationType = "majority"
	AggregateConsensus AggregationType = "consensus"
	AggregateSummary   AggregationType = "summary"
)

// AllTaskTypes returns every task type, custom last.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskRating, TaskReaction, TaskAnalysis, TaskTesting,
		TaskCreation, TaskVoting, TaskDebate, TaskCustom,
	}
}

// AllInputTypes returns every input type, custom last.
func AllInputTypes() []InputType {
	return []InputType{
		InputTest, InputVideo, InputArticle, InputDocument,
		InputData, InputFood, InputProduct, InputCustom,
	}
}

// AllNamingStyles returns every naming style.
func AllNamingStyles() []NamingStyle {
	return []NamingStyle{NamingProfessional, NamingCasual, NamingFantasy, NamingNumbered}
}

func validTaskType(t TaskType) bool {
	for _, v := range AllTaskTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func validInputType(t InputType) bool {
	for _, v := range AllInputTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func validNamingStyle(s NamingStyle) bool {
	for _, v := range AllNamingStyles() {
		if v == s {
			return true
		}
	}
	return false
}

// ParsedIntent is the structured interpretation of a free-text workflow
// request. It is produced once per request and never mutated afterwards.
type ParsedIntent struct {
	WorkflowType    WorkflowType    `json:"workflowType" yaml:"workflowType"`
	AgentCount      int             `json:"agentCount" yaml:"agentCount"`
	AgentNoun       string          `json:"agentNoun" yaml:"agentNoun"`
	AgentNounPlural string          `json:"agentNounPlural" yaml:"agentNounPlural"`
	NamingStyle     NamingStyle     `json:"namingStyle" yaml:"namingStyle"`
	TaskDescription string          `json:"taskDescription" yaml:"taskDescription"`
	TaskVerb        string          `json:"taskVerb" yaml:"taskVerb"`
	TaskType        TaskType        `json:"taskType" yaml:"taskType"`
	InputType       InputType       `json:"inputType" yaml:"inputType"`
	OutputType      OutputType      `json:"outputType" yaml:"outputType"`
	AggregationType AggregationType `json:"aggregationType" yaml:"aggregationType"`
	DemographicMix  []string        `json:"demographicMix,omitempty" yaml:"demographicMix,omitempty"`
}

// NeedsBatchGeneration reports whether the request names a population of
// actors that has to be generated in batches.
func (p ParsedIntent) NeedsBatchGeneration() bool {
	return p.WorkflowType == WorkflowPersonaPanel && p.AgentCount > 0
}
