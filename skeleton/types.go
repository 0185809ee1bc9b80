// Package skeleton maps a ParsedIntent to a four-node workflow template in
// which a single placeholder node stands in for the generated actors.
package skeleton

// PlaceholderType marks the node that is replaced by generated actors during
// assembly. It never appears in a finished graph.
const PlaceholderType = "_placeholder"

// Role identifies the structural position of a skeleton node.
type Role string

const (
	RoleInput       Role = "input"
	RolePlaceholder Role = "placeholder"
	RoleAggregator  Role = "aggregator"
	RoleOutput      Role = "output"
)

// Node is one skeleton node.
type Node struct {
	Type    string         `json:"type"`
	Label   string         `json:"label"`
	Role    Role           `json:"role"`
	Payload map[string]any `json:"payload"`
}

// IsPlaceholder reports whether the node stands in for the actor block.
func (n Node) IsPlaceholder() bool { return n.Type == PlaceholderType }

// Connection is a provisional edge between two node indexes.
type Connection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// WorkflowSkeleton is the graph template produced before any actor exists.
type WorkflowSkeleton struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// Placeholder returns the placeholder node and its index, or -1 when the
// skeleton has none.
func (s WorkflowSkeleton) Placeholder() (Node, int) {
	for i, n := range s.Nodes {
		if n.IsPlaceholder() {
			return n, i
		}
	}
	return Node{}, -1
}
