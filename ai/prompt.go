package ai

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/workflow-wizard/intent"
)

// SystemPrompt returns the system prompt shared by all wizard generation calls.
func SystemPrompt() string {
	return `You design personas for simulated panels in a visual workflow editor.
Each persona is one actor node in a graph: it receives the same input as its
peers, performs the requested task in its own voice, and hands its output to an
aggregator node.

Rules:
- Respond with JSON only. No prose before or after the JSON.
- Personas within a panel must be distinct: vary names, cultural backgrounds,
  ages, personalities and traits.
- "behavior" is a short instruction, in the second person, telling the actor
  how to perform the task.
- Ages are integers. "ageGroup" is one of: teen, young-adult, adult,
  middle-aged, senior.`
}

// BatchPrompt builds the user prompt for one actor batch.
func BatchPrompt(req BatchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d %s for batch %d of a panel of %d %s.\n",
		req.BatchSize, pluralFor(req), req.BatchNumber+1, req.TotalCount, req.AgentNounPlural)
	fmt.Fprintf(&b, "Task: %s (%s).\n", req.TaskContext, req.TaskType)
	fmt.Fprintf(&b, "Naming style: %s. %s\n", req.NamingStyle, namingHint(req.NamingStyle))
	if len(req.DemographicMix) > 0 {
		fmt.Fprintf(&b, "Spread the panel across these demographic dimensions: %s.\n",
			strings.Join(req.DemographicMix, ", "))
	}
	if req.BatchNumber > 0 {
		b.WriteString("Earlier batches of this panel already exist; avoid common names so they do not repeat.\n")
	}
	b.WriteString(`
Return exactly this shape:
{"agents": [{"type": "personaAgentNode", "label": "<display name>", "persona": {
  "name": "<slug>", "displayName": "<display name>", "culturalBackground": "...",
  "ageGroup": "...", "age": 0, "personality": "...", "traits": ["..."],
  "specialization": "<optional>", "title": "<optional>"},
  "behavior": "..."}]}`)
	return b.String()
}

// SuggestionPrompt builds the prompt for a single-shot suggestion.
func SuggestionPrompt(query string, parsed ParseResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a complete workflow graph for this request:\n\n%s\n\n", query)
	b.WriteString("The request was interpreted as:\n")
	fmt.Fprintf(&b, "- task: %s (%s)\n", parsed.Intent.TaskDescription, parsed.Intent.TaskType)
	fmt.Fprintf(&b, "- input: %s\n- output: %s via %s aggregation\n",
		parsed.Intent.InputType, parsed.Intent.OutputType, parsed.Intent.AggregationType)
	b.WriteString("\nStart from this skeleton and replace the _placeholder node with concrete personaAgentNode actors:\n")
	for i, n := range parsed.Skeleton.Nodes {
		fmt.Fprintf(&b, "  %d. %s %q\n", i, n.Type, n.Label)
	}
	b.WriteString(`
Return exactly this shape, with connections referencing node indexes:
{"id": "...", "name": "...", "description": "...", "category": "...",
 "nodes": [{"type": "...", "label": "...", "data": {}}],
 "connections": [{"from": 0, "to": 1}]}`)
	return b.String()
}

func pluralFor(req BatchRequest) string {
	if req.BatchSize == 1 {
		return req.AgentNoun
	}
	return req.AgentNounPlural
}

func namingHint(style intent.NamingStyle) string {
	switch style {
	case intent.NamingProfessional:
		return "Use realistic full names with a professional title and a specialization."
	case intent.NamingFantasy:
		return "Use invented fantasy names with an epithet."
	case intent.NamingNumbered:
		return "Name each actor with the noun and its panel number."
	default:
		return "Use realistic first and last names."
	}
}
