package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
)

func makeActors(n int) []GeneratedActor {
	actors := make([]GeneratedActor, n)
	for i := range actors {
		actors[i] = GeneratedActor{
			Label: fmt.Sprintf("Chef %d", i+1),
			Persona: Persona{
				Name:        fmt.Sprintf("chef-%d", i+1),
				DisplayName: fmt.Sprintf("Chef %d", i+1),
				AgeGroup:    "adult",
				Age:         30 + i,
				Personality: "meticulous",
				Traits:      []string{"precise"},
				Title:       "Head Chef",
			},
			Behavior: "Rates the recipe from 1 to 10.",
		}
	}
	return actors
}

func TestAssembleEdgeCounts(t *testing.T) {
	in := intent.ExtractIntent("500 chefs rating a recipe")
	sk := skeleton.Build(in)

	tests := []struct {
		name      string
		actors    int
		wantNodes int
		wantEdges int
	}{
		{"no actors", 0, 3, 1},
		{"one actor", 1, 4, 3},
		{"full batch", 25, 28, 51},
		{"odd count", 57, 60, 115},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Assemble(in, sk, makeActors(tt.actors))
			if len(s.Nodes) != tt.wantNodes {
				t.Errorf("nodes = %d, want %d", len(s.Nodes), tt.wantNodes)
			}
			if len(s.Connections) != tt.wantEdges {
				t.Errorf("connections = %d, want %d", len(s.Connections), tt.wantEdges)
			}
			if err := Validate(s).Err(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestAssembleWiring(t *testing.T) {
	in := intent.ExtractIntent("3 chefs rating a recipe")
	sk := skeleton.Build(in)
	s := Assemble(in, sk, makeActors(3))

	// input=0, aggregator=1, output=2, actors=3..5
	want := []Connection{
		{0, 3}, {0, 4}, {0, 5},
		{3, 1}, {4, 1}, {5, 1},
		{1, 2},
	}
	if len(s.Connections) != len(want) {
		t.Fatalf("connections = %v, want %v", s.Connections, want)
	}
	for i := range want {
		if s.Connections[i] != want[i] {
			t.Errorf("connection %d = %v, want %v", i, s.Connections[i], want[i])
		}
	}

	for i, n := range s.Nodes {
		if n.Type == skeleton.PlaceholderType {
			t.Errorf("placeholder survived at %d", i)
		}
	}
	actor := s.Nodes[3]
	if actor.Type != DefaultActorType || actor.Label != "Chef 1" {
		t.Errorf("actor node = %+v", actor)
	}
	if actor.Data["title"] != "Head Chef" || actor.Data["age"] != 30 || actor.Data["behavior"] == "" {
		t.Errorf("persona not flattened: %v", actor.Data)
	}
	if _, ok := actor.Data["specialization"]; ok {
		t.Error("empty specialization should be omitted")
	}
	if s.Category != "evaluation" {
		t.Errorf("Category = %q", s.Category)
	}
	if s.ID != sk.ID || s.Name != sk.Name {
		t.Errorf("suggestion identity not taken from skeleton: %q %q", s.ID, s.Name)
	}
}

func TestAssembleMissingAnchors(t *testing.T) {
	in := intent.ExtractIntent("4 chefs rating a recipe")
	full := skeleton.Build(in)

	drop := func(role skeleton.Role) skeleton.WorkflowSkeleton {
		sk := full
		sk.Nodes = nil
		for _, n := range full.Nodes {
			if n.Role != role {
				sk.Nodes = append(sk.Nodes, n)
			}
		}
		return sk
	}

	tests := []struct {
		name      string
		sk        skeleton.WorkflowSkeleton
		wantEdges int
	}{
		{"no input", drop(skeleton.RoleInput), 4 + 1},
		{"no aggregator", drop(skeleton.RoleAggregator), 4},
		{"no output", drop(skeleton.RoleOutput), 4 + 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Assemble(in, tt.sk, makeActors(4))
			if len(s.Connections) != tt.wantEdges {
				t.Errorf("connections = %d, want %d", len(s.Connections), tt.wantEdges)
			}
			if err := Validate(s).Err(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestAssembleDoesNotAliasInputs(t *testing.T) {
	in := intent.ExtractIntent("2 chefs rating a recipe")
	sk := skeleton.Build(in)
	actors := makeActors(2)
	s := Assemble(in, sk, actors)

	s.Nodes[0].Data["inputType"] = "mutated"
	if sk.Nodes[0].Payload["inputType"] == "mutated" {
		t.Error("suggestion node data aliases the skeleton payload")
	}
	traits := s.Nodes[3].Data["traits"].([]string)
	traits[0] = "mutated"
	if actors[0].Persona.Traits[0] == "mutated" {
		t.Error("suggestion node data aliases the actor traits")
	}
}

func TestCategoryIsTotal(t *testing.T) {
	for _, tt := range intent.AllTaskTypes() {
		if Category(tt) == "" {
			t.Errorf("Category(%q) is empty", tt)
		}
	}
	if Category("juggling") != "general" {
		t.Errorf("unknown task type category = %q", Category("juggling"))
	}
}

func TestValidate(t *testing.T) {
	nodes := []Node{{Type: "a"}, {Type: "b"}}
	tests := []struct {
		name  string
		s     WizardSuggestion
		valid bool
	}{
		{"ok", WizardSuggestion{Nodes: nodes, Connections: []Connection{{0, 1}}}, true},
		{"dangling", WizardSuggestion{Nodes: nodes, Connections: []Connection{{0, 2}}}, false},
		{"negative", WizardSuggestion{Nodes: nodes, Connections: []Connection{{-1, 0}}}, false},
		{"self loop", WizardSuggestion{Nodes: nodes, Connections: []Connection{{1, 1}}}, false},
		{"duplicate", WizardSuggestion{Nodes: nodes, Connections: []Connection{{0, 1}, {0, 1}}}, false},
		{"placeholder", WizardSuggestion{Nodes: []Node{{Type: skeleton.PlaceholderType}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.s)
			if res.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (%v)", res.Valid, tt.valid, res.Errors)
			}
			if !tt.valid && !errors.Is(res.Err(), ErrInvalidGraph) {
				t.Errorf("Err() = %v, want ErrInvalidGraph", res.Err())
			}
		})
	}
}
