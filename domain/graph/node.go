package graph

import (
	"time"

	pkgerrors "mindscape/pkg/errors"
)

// NodeType classifies a node in the mindscape graph. Structural types
// describe work items; lens types carry steering state.
type NodeType string

const (
	// Structural node types
	NodeTypeIntent    NodeType = "intent"
	NodeTypeExecution NodeType = "execution"
	NodeTypeArtifact  NodeType = "artifact"
	NodeTypePlaybook  NodeType = "playbook"
	NodeTypeStep      NodeType = "step"

	// Lens-carrying node types
	NodeTypeValue     NodeType = "value"
	NodeTypeWorldview NodeType = "worldview"
	NodeTypeAesthetic NodeType = "aesthetic"
	NodeTypeKnowledge NodeType = "knowledge"
	NodeTypeStrategy  NodeType = "strategy"
	NodeTypeRole      NodeType = "role"
	NodeTypeRhythm    NodeType = "rhythm"
)

var nodeTypes = map[NodeType]bool{
	NodeTypeIntent: true, NodeTypeExecution: true, NodeTypeArtifact: true,
	NodeTypePlaybook: true, NodeTypeStep: true,
	NodeTypeValue: true, NodeTypeWorldview: true, NodeTypeAesthetic: true,
	NodeTypeKnowledge: true, NodeTypeStrategy: true, NodeTypeRole: true,
	NodeTypeRhythm: true,
}

// Valid reports whether the type belongs to the closed node type set.
func (t NodeType) Valid() bool {
	return nodeTypes[t]
}

// CarriesLens reports whether nodes of this type participate in lens resolution.
func (t NodeType) CarriesLens() bool {
	switch t {
	case NodeTypeValue, NodeTypeWorldview, NodeTypeAesthetic,
		NodeTypeKnowledge, NodeTypeStrategy, NodeTypeRole, NodeTypeRhythm:
		return true
	}
	return false
}

// NodeStatus represents the review state of a node
type NodeStatus string

const (
	StatusSuggested NodeStatus = "suggested"
	StatusAccepted  NodeStatus = "accepted"
	StatusRejected  NodeStatus = "rejected"
)

// Valid reports whether the status belongs to the closed status set.
func (s NodeStatus) Valid() bool {
	return s == StatusSuggested || s == StatusAccepted || s == StatusRejected
}

// Node is a unit of the materialized mindscape graph.
// Nodes are created and mutated only through approved changelog entries.
type Node struct {
	ID        string         `json:"id"`
	Type      NodeType       `json:"type"`
	Label     string         `json:"label"`
	Status    NodeStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NodeFromState builds a node from a changelog after_state map.
// Type and label are required; status defaults to suggested.
func NodeFromState(id string, state map[string]any, now time.Time) (*Node, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}
	nodeType, _ := state["type"].(string)
	if !NodeType(nodeType).Valid() {
		return nil, pkgerrors.NewValidationError("unknown node type: " + nodeType)
	}
	label, _ := state["label"].(string)
	if label == "" {
		return nil, pkgerrors.NewValidationError("node label cannot be empty")
	}

	node := &Node{
		ID:        id,
		Type:      NodeType(nodeType),
		Label:     label,
		Status:    StatusSuggested,
		CreatedAt: now,
	}
	if status, ok := state["status"].(string); ok {
		if !NodeStatus(status).Valid() {
			return nil, pkgerrors.NewValidationError("unknown node status: " + status)
		}
		node.Status = NodeStatus(status)
	}
	if metadata, ok := state["metadata"].(map[string]any); ok {
		node.Metadata = metadata
	}
	if createdAt, ok := state["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			node.CreatedAt = parsed
		}
	}
	return node, nil
}

// State returns the node's committed attributes as a changelog state map.
// created_at rides along so that undoing a delete restores the node exactly.
func (n *Node) State() map[string]any {
	state := map[string]any{
		"type":       string(n.Type),
		"label":      n.Label,
		"status":     string(n.Status),
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.Metadata != nil {
		state["metadata"] = n.Metadata
	}
	return state
}

// ApplyState mutates the node with the fields present in the given state map.
// Fields absent from the map are left untouched.
func (n *Node) ApplyState(state map[string]any) error {
	if nodeType, ok := state["type"].(string); ok {
		if !NodeType(nodeType).Valid() {
			return pkgerrors.NewValidationError("unknown node type: " + nodeType)
		}
		n.Type = NodeType(nodeType)
	}
	if label, ok := state["label"].(string); ok {
		if label == "" {
			return pkgerrors.NewValidationError("node label cannot be empty")
		}
		n.Label = label
	}
	if status, ok := state["status"].(string); ok {
		if !NodeStatus(status).Valid() {
			return pkgerrors.NewValidationError("unknown node status: " + status)
		}
		n.Status = NodeStatus(status)
	}
	if metadata, ok := state["metadata"].(map[string]any); ok {
		n.Metadata = metadata
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cloned := *n
	if n.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}
