package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/workflow-wizard/skeleton"
)

// ErrInvalidGraph is wrapped by ValidationResult.Err.
var ErrInvalidGraph = errors.New("invalid graph")

// ValidationResult holds the outcome of graph validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err returns nil for a valid graph and an error wrapping ErrInvalidGraph
// otherwise.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidGraph, strings.Join(r.Errors, "; "))
}

// Validate checks that every connection references an existing node, that
// there are no self-loops or duplicate edges, and that no placeholder node
// survived assembly.
func Validate(s WizardSuggestion) *ValidationResult {
	result := &ValidationResult{Valid: true}
	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	for i, n := range s.Nodes {
		if n.Type == skeleton.PlaceholderType {
			fail("node %d is an unresolved placeholder", i)
		}
	}

	seen := make(map[Connection]bool, len(s.Connections))
	for i, c := range s.Connections {
		if c.From < 0 || c.From >= len(s.Nodes) || c.To < 0 || c.To >= len(s.Nodes) {
			fail("connection %d (%d->%d) references a missing node", i, c.From, c.To)
			continue
		}
		if c.From == c.To {
			fail("connection %d is a self-loop on node %d", i, c.From)
		}
		if seen[c] {
			fail("connection %d duplicates %d->%d", i, c.From, c.To)
		}
		seen[c] = true
	}
	return result
}
