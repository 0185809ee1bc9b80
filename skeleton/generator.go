package skeleton

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/workflow-wizard/intent"
)

// namespace seeds the name-based skeleton IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/GoCodeAlone/workflow-wizard/skeleton"))

// Generator builds skeletons from a fixed set of templates. It is safe for
// concurrent use.
type Generator struct {
	templates *Templates
}

// NewGenerator creates a Generator. A nil Templates selects the built-in
// tables.
func NewGenerator(t *Templates) *Generator {
	if t == nil {
		t = DefaultTemplates()
	}
	return &Generator{templates: t}
}

// Templates returns the tables the generator was built with.
func (g *Generator) Templates() *Templates { return g.templates }

// Build returns the input -> placeholder -> aggregator -> output skeleton for
// in. It always yields four nodes and three connections.
func (g *Generator) Build(in intent.ParsedIntent) WorkflowSkeleton {
	inTmpl := g.templates.input(in.InputType)
	outTmpl := g.templates.output(in.OutputType)
	aggLabel, aggDesc := g.templates.aggregator(in.AggregationType)

	nodes := []Node{
		{
			Type:    inTmpl.Type,
			Label:   inTmpl.Label,
			Role:    RoleInput,
			Payload: withConfig(inTmpl.Config, map[string]any{"inputType": string(in.InputType)}),
		},
		{
			Type:    PlaceholderType,
			Label:   fmt.Sprintf("%d %s", in.AgentCount, in.AgentNounPlural),
			Role:    RolePlaceholder,
			Payload: placeholderPayload(in),
		},
		{
			Type:  g.templates.Aggregator.Type,
			Label: aggLabel,
			Role:  RoleAggregator,
			Payload: map[string]any{
				"aggregationType": string(in.AggregationType),
				"description":     aggDesc,
			},
		},
		{
			Type:    outTmpl.Type,
			Label:   outTmpl.Label,
			Role:    RoleOutput,
			Payload: withConfig(outTmpl.Config, map[string]any{"outputType": string(in.OutputType)}),
		},
	}

	return WorkflowSkeleton{
		ID:          skeletonID(in),
		Name:        name(in),
		Description: description(in, aggLabel, outTmpl.Label),
		Nodes:       nodes,
		Connections: []Connection{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}},
	}
}

var defaultGenerator = NewGenerator(nil)

// Build builds a skeleton with the built-in templates.
func Build(in intent.ParsedIntent) WorkflowSkeleton { return defaultGenerator.Build(in) }

func placeholderPayload(in intent.ParsedIntent) map[string]any {
	p := map[string]any{
		"agentCount":      in.AgentCount,
		"agentNoun":       in.AgentNoun,
		"agentNounPlural": in.AgentNounPlural,
		"namingStyle":     string(in.NamingStyle),
		"taskType":        string(in.TaskType),
		"taskVerb":        in.TaskVerb,
		"taskDescription": in.TaskDescription,
	}
	if len(in.DemographicMix) > 0 {
		p["demographicMix"] = append([]string(nil), in.DemographicMix...)
	}
	return p
}

func withConfig(config map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(config)+len(extra))
	for k, v := range config {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func skeletonID(in intent.ParsedIntent) string {
	// ParsedIntent holds only strings, ints and string slices; Marshal cannot fail.
	data, _ := json.Marshal(in)
	return uuid.NewSHA1(namespace, data).String()
}

func name(in intent.ParsedIntent) string {
	title := cases.Title(language.English)
	if in.WorkflowType != intent.WorkflowPersonaPanel {
		desc := in.TaskDescription
		if desc == "" {
			desc = in.TaskVerb
		}
		return title.String(desc)
	}
	return title.String(fmt.Sprintf("%d %s %s", in.AgentCount, in.AgentNounPlural, in.TaskVerb))
}

func description(in intent.ParsedIntent, aggLabel, outLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", in.AgentCount, in.AgentNounPlural)
	if in.TaskDescription != "" {
		fmt.Fprintf(&b, " %s", in.TaskDescription)
	}
	if len(in.DemographicMix) > 0 {
		fmt.Fprintf(&b, " with a %s mix", strings.Join(in.DemographicMix, ", "))
	}
	fmt.Fprintf(&b, ". The %s combines their responses into a %s.", strings.ToLower(aggLabel), strings.ToLower(outLabel))
	return b.String()
}
