package graph

import (
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
)

// categories maps a task type to the suggestion category shown in the
// workflow gallery.
var categories = map[intent.TaskType]string{
	intent.TaskRating:   "evaluation",
	intent.TaskReaction: "feedback",
	intent.TaskAnalysis: "research",
	intent.TaskTesting:  "quality-assurance",
	intent.TaskCreation: "ideation",
	intent.TaskVoting:   "decision-making",
	intent.TaskDebate:   "deliberation",
	intent.TaskCustom:   "general",
}

// Category returns the gallery category for a task type.
func Category(tt intent.TaskType) string {
	if c, ok := categories[tt]; ok {
		return c
	}
	return categories[intent.TaskCustom]
}

// Assemble replaces the skeleton's placeholder with one node per actor and
// wires input -> actor, actor -> aggregator and aggregator -> output. Edges
// that need a missing anchor are omitted. Assemble is pure; neither the
// skeleton nor the actors are modified.
func Assemble(in intent.ParsedIntent, sk skeleton.WorkflowSkeleton, actors []GeneratedActor) WizardSuggestion {
	nodes := make([]Node, 0, len(sk.Nodes)+len(actors))
	inputIdx, aggIdx, outputIdx := -1, -1, -1

	for _, n := range sk.Nodes {
		if n.IsPlaceholder() {
			continue
		}
		switch n.Role {
		case skeleton.RoleInput:
			inputIdx = len(nodes)
		case skeleton.RoleAggregator:
			aggIdx = len(nodes)
		case skeleton.RoleOutput:
			outputIdx = len(nodes)
		}
		nodes = append(nodes, Node{Type: n.Type, Label: n.Label, Data: copyMap(n.Payload)})
	}

	actorStart := len(nodes)
	for i, a := range actors {
		nodes = append(nodes, actorNode(in, i, a))
	}

	conns := make([]Connection, 0, 2*len(actors)+1)
	if inputIdx >= 0 {
		for i := range actors {
			conns = append(conns, Connection{From: inputIdx, To: actorStart + i})
		}
	}
	if aggIdx >= 0 {
		for i := range actors {
			conns = append(conns, Connection{From: actorStart + i, To: aggIdx})
		}
	}
	if aggIdx >= 0 && outputIdx >= 0 {
		conns = append(conns, Connection{From: aggIdx, To: outputIdx})
	}

	return WizardSuggestion{
		ID:          sk.ID,
		Name:        sk.Name,
		Description: sk.Description,
		Category:    Category(in.TaskType),
		Nodes:       nodes,
		Connections: conns,
	}
}

func actorNode(in intent.ParsedIntent, index int, a GeneratedActor) Node {
	typ := a.Type
	if typ == "" {
		typ = DefaultActorType
	}
	label := a.Label
	if label == "" {
		label = a.Persona.DisplayName
	}
	p := a.Persona
	data := map[string]any{
		"actorIndex":         index,
		"name":               p.Name,
		"displayName":        p.DisplayName,
		"culturalBackground": p.CulturalBackground,
		"ageGroup":           p.AgeGroup,
		"age":                p.Age,
		"personality":        p.Personality,
		"traits":             append([]string(nil), p.Traits...),
		"behavior":           a.Behavior,
		"taskType":           string(in.TaskType),
		"taskVerb":           in.TaskVerb,
	}
	if p.Specialization != "" {
		data["specialization"] = p.Specialization
	}
	if p.Title != "" {
		data["title"] = p.Title
	}
	return Node{Type: typ, Label: label, Data: data}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
