package tree

import "time"

// Node is one member of a tenant's hierarchy. Aggregate and formula slots
// are derived state stored alongside its regular property values; the node
// itself only owns its identity, type and parent edge.
type Node struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	TreeID     string    `json:"tree_id"`
	Type       string    `json:"type"`
	ParentID   *string   `json:"parent_id,omitempty"`
	Generation int64     `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Level binds one position of a tree structure to a node type.
type Level struct {
	Position int    `json:"position"`
	NodeType string `json:"node_type"`
}

// Structure is a named hierarchy of typed levels.
type Structure struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Levels    []Level   `json:"levels"`
	CreatedAt time.Time `json:"created_at"`
}
