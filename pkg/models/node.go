// Package models defines core node and connection models for generated workflow graphs
package models

// PortMain is the data-flow port used for every generated connection.
const PortMain = "main"

// TerminalParam marks a node whose lack of outgoing connections is intentional.
const TerminalParam = "terminal"

// CategoryType represents the category of node.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"  // Regular action nodes (http, email, transform, etc.)
	CategoryTypeTrigger CategoryType = "trigger" // Trigger nodes (webhook, schedule, form, etc.)
	CategoryTypeFlow    CategoryType = "flow"    // Control nodes (merge, condition, noop)
)

// Node is a node instance inside a workflow graph.
type Node struct {
	ID          string         `json:"id"          validate:"required"`
	Name        string         `json:"name"        validate:"required,min=1"`
	Type        string         `json:"type"        validate:"required"`
	TypeVersion int            `json:"typeVersion" validate:"min=1"`
	Position    [2]int         `json:"position"`
	Parameters  map[string]any `json:"parameters"`
}

// IsTerminal reports whether the node carries an explicit terminal marker.
func (n *Node) IsTerminal() bool {
	if n == nil || n.Parameters == nil {
		return false
	}

	switch v := n.Parameters[TerminalParam].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// ConnectionTarget is one edge endpoint in the connection map.
type ConnectionTarget struct {
	Node  string `json:"node"`  // Target node display name
	Port  string `json:"type"`  // Input port, always "main" for data flow
	Index int    `json:"index"` // Input index on the target port
}
