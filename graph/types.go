// Package graph turns a skeleton and a list of generated actors into the
// final workflow suggestion.
package graph

// DefaultActorType is the node type used for actors that do not name one.
const DefaultActorType = "personaAgentNode"

// Persona is the synthesized identity of one generated actor.
type Persona struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"displayName"`
	CulturalBackground string   `json:"culturalBackground"`
	AgeGroup           string   `json:"ageGroup"`
	Age                int      `json:"age"`
	Personality        string   `json:"personality"`
	Traits             []string `json:"traits"`
	Specialization     string   `json:"specialization,omitempty"`
	Title              string   `json:"title,omitempty"`
}

// GeneratedActor is one concrete participant produced by a generation batch.
type GeneratedActor struct {
	Type     string  `json:"type"`
	Label    string  `json:"label"`
	Persona  Persona `json:"persona"`
	Behavior string  `json:"behavior"`
}

// Node is a node of a finished graph.
type Node struct {
	Type  string         `json:"type"`
	Label string         `json:"label"`
	Data  map[string]any `json:"data"`
}

// Connection is a directed edge between two node indexes.
type Connection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// WizardSuggestion is the complete, renderable graph handed to the caller.
type WizardSuggestion struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}
