package repository

// NodeMessage asks for a recompute of one aggregate slot on one node.
type NodeMessage struct {
	TenantID     string `json:"tenant_id"`
	NodeID       string `json:"node_id"`
	DefinitionID string `json:"aggregate_definition_id"`
	RequestedBy  string `json:"requesting_user_id,omitempty"`
}

// TenantMessage asks for a recompute of one aggregate across a whole tenant.
// It is never consumed by the recompute worker directly; the projects
// processor expands it into node messages first.
type TenantMessage struct {
	TenantID     string `json:"tenant_id"`
	DefinitionID string `json:"aggregate_definition_id"`
	RequestedBy  string `json:"requesting_user_id,omitempty"`
}

// NodeDelivery is a leased node message. The delivery ID acknowledges or
// releases the lease, not the message content.
type NodeDelivery struct {
	ID      int64
	Message NodeMessage
}

// TenantDelivery is a leased tenant message.
type TenantDelivery struct {
	ID      int64
	Message TenantMessage
}
