package skeleton

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/workflow-wizard/intent"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// NodeTemplate describes one concrete node the generator can emit.
type NodeTemplate struct {
	Type   string         `yaml:"type" json:"type"`
	Label  string         `yaml:"label" json:"label"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// AggregatorTemplates holds the aggregator node type and the two parallel
// label and description tables keyed by aggregation type.
type AggregatorTemplates struct {
	Type         string                            `yaml:"type" json:"type"`
	Labels       map[intent.AggregationType]string `yaml:"labels" json:"labels"`
	Descriptions map[intent.AggregationType]string `yaml:"descriptions" json:"descriptions"`
}

// Templates are the lookup tables used to build a skeleton.
type Templates struct {
	Inputs     map[intent.InputType]NodeTemplate  `yaml:"inputs" json:"inputs"`
	Aggregator AggregatorTemplates                `yaml:"aggregator" json:"aggregator"`
	Outputs    map[intent.OutputType]NodeTemplate `yaml:"outputs" json:"outputs"`
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultTemplatesYAML)
	if err != nil {
		panic(fmt.Sprintf("skeleton: embedded templates: %v", err))
	}
	return t
}

// ParseTemplates overlays a YAML document on the built-in templates and
// validates the result. Overrides merge field by field: an entry that only
// sets a label keeps the default node type, and a config block replaces the
// default config of that entry. Keys absent from data keep their defaults.
func ParseTemplates(data []byte) (*Templates, error) {
	var t, overlay Templates
	if err := yaml.Unmarshal(defaultTemplatesYAML, &t); err != nil {
		return nil, fmt.Errorf("parse default templates: %w", err)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	t.Inputs = mergeNodes(t.Inputs, overlay.Inputs)
	t.Outputs = mergeNodes(t.Outputs, overlay.Outputs)
	if overlay.Aggregator.Type != "" {
		t.Aggregator.Type = overlay.Aggregator.Type
	}
	t.Aggregator.Labels = mergeStrings(t.Aggregator.Labels, overlay.Aggregator.Labels)
	t.Aggregator.Descriptions = mergeStrings(t.Aggregator.Descriptions, overlay.Aggregator.Descriptions)

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func mergeNodes[K comparable](base, over map[K]NodeTemplate) map[K]NodeTemplate {
	if base == nil {
		base = make(map[K]NodeTemplate, len(over))
	}
	for k, o := range over {
		n := base[k]
		if o.Type != "" {
			n.Type = o.Type
		}
		if o.Label != "" {
			n.Label = o.Label
		}
		if o.Config != nil {
			n.Config = o.Config
		}
		base[k] = n
	}
	return base
}

func mergeStrings[K comparable](base, over map[K]string) map[K]string {
	if base == nil {
		base = make(map[K]string, len(over))
	}
	for k, v := range over {
		if v != "" {
			base[k] = v
		}
	}
	return base
}

// LoadTemplates reads a template override file from disk.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	t, err := ParseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("templates: %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that every table carries its fallback entry.
func (t *Templates) Validate() error {
	if in, ok := t.Inputs[intent.InputCustom]; !ok || in.Type == "" {
		return fmt.Errorf("inputs: missing %q fallback", intent.InputCustom)
	}
	if t.Aggregator.Type == "" {
		return fmt.Errorf("aggregator: type is required")
	}
	if t.Aggregator.Labels[intent.AggregateSummary] == "" {
		return fmt.Errorf("aggregator.labels: missing %q fallback", intent.AggregateSummary)
	}
	if t.Aggregator.Descriptions[intent.AggregateSummary] == "" {
		return fmt.Errorf("aggregator.descriptions: missing %q fallback", intent.AggregateSummary)
	}
	if out, ok := t.Outputs[intent.OutputSummary]; !ok || out.Type == "" {
		return fmt.Errorf("outputs: missing %q fallback", intent.OutputSummary)
	}
	for k, v := range t.Inputs {
		if v.Type == "" {
			return fmt.Errorf("inputs: %q has no node type", k)
		}
	}
	for k, v := range t.Outputs {
		if v.Type == "" {
			return fmt.Errorf("outputs: %q has no node type", k)
		}
	}
	return nil
}

func (t *Templates) input(it intent.InputType) NodeTemplate {
	if n, ok := t.Inputs[it]; ok {
		return n
	}
	return t.Inputs[intent.InputCustom]
}

func (t *Templates) output(ot intent.OutputType) NodeTemplate {
	if n, ok := t.Outputs[ot]; ok {
		return n
	}
	return t.Outputs[intent.OutputSummary]
}

func (t *Templates) aggregator(at intent.AggregationType) (label, description string) {
	label, ok := t.Aggregator.Labels[at]
	if !ok {
		label = t.Aggregator.Labels[intent.AggregateSummary]
	}
	description, ok = t.Aggregator.Descriptions[at]
	if !ok {
		description = t.Aggregator.Descriptions[intent.AggregateSummary]
	}
	return label, description
}
