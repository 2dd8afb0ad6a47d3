package graph

import (
	pkgerrors "mindscape/pkg/errors"
)

// EdgeType defines the kind of relationship between two nodes
type EdgeType string

const (
	EdgeTypeTemporal   EdgeType = "temporal"
	EdgeTypeCausal     EdgeType = "causal"
	EdgeTypeDependency EdgeType = "dependency"
	EdgeTypeSpawns     EdgeType = "spawns"
	EdgeTypeProduces   EdgeType = "produces"
	EdgeTypeRefersTo   EdgeType = "refers_to"
)

var edgeTypes = map[EdgeType]bool{
	EdgeTypeTemporal: true, EdgeTypeCausal: true, EdgeTypeDependency: true,
	EdgeTypeSpawns: true, EdgeTypeProduces: true, EdgeTypeRefersTo: true,
}

// Valid reports whether the type belongs to the closed edge type set.
func (t EdgeType) Valid() bool {
	return edgeTypes[t]
}

// EdgeOrigin records how an edge came to exist
type EdgeOrigin string

const (
	OriginDerived EdgeOrigin = "derived"
	OriginUser    EdgeOrigin = "user"
)

// Edge is a typed relationship in the materialized mindscape graph.
// Edges share the node ownership rules: mutation only via approved changes.
type Edge struct {
	ID         string         `json:"id"`
	FromID     string         `json:"from_id"`
	ToID       string         `json:"to_id"`
	Type       EdgeType       `json:"type"`
	Origin     EdgeOrigin     `json:"origin"`
	Confidence float64        `json:"confidence"`
	Status     NodeStatus     `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EdgeFromState builds an edge from a changelog after_state map.
func EdgeFromState(id string, state map[string]any) (*Edge, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("edge id cannot be empty")
	}
	fromID, _ := state["from_id"].(string)
	toID, _ := state["to_id"].(string)
	if fromID == "" || toID == "" {
		return nil, pkgerrors.NewValidationError("edge requires from_id and to_id")
	}
	edgeType, _ := state["type"].(string)
	if !EdgeType(edgeType).Valid() {
		return nil, pkgerrors.NewValidationError("unknown edge type: " + edgeType)
	}

	edge := &Edge{
		ID:         id,
		FromID:     fromID,
		ToID:       toID,
		Type:       EdgeType(edgeType),
		Origin:     OriginUser,
		Confidence: 1.0,
		Status:     StatusSuggested,
	}
	if origin, ok := state["origin"].(string); ok {
		if origin != string(OriginDerived) && origin != string(OriginUser) {
			return nil, pkgerrors.NewValidationError("unknown edge origin: " + origin)
		}
		edge.Origin = EdgeOrigin(origin)
	}
	if confidence, ok := state["confidence"].(float64); ok {
		if confidence < 0 || confidence > 1 {
			return nil, pkgerrors.NewValidationError("edge confidence must be within [0,1]")
		}
		edge.Confidence = confidence
	}
	if status, ok := state["status"].(string); ok {
		if !NodeStatus(status).Valid() {
			return nil, pkgerrors.NewValidationError("unknown edge status: " + status)
		}
		edge.Status = NodeStatus(status)
	}
	if metadata, ok := state["metadata"].(map[string]any); ok {
		edge.Metadata = metadata
	}
	return edge, nil
}

// State returns the edge's committed attributes as a changelog state map.
func (e *Edge) State() map[string]any {
	state := map[string]any{
		"from_id":    e.FromID,
		"to_id":      e.ToID,
		"type":       string(e.Type),
		"origin":     string(e.Origin),
		"confidence": e.Confidence,
		"status":     string(e.Status),
	}
	if e.Metadata != nil {
		state["metadata"] = e.Metadata
	}
	return state
}

// Touches reports whether the edge is incident to the given node.
func (e *Edge) Touches(nodeID string) bool {
	return e.FromID == nodeID || e.ToID == nodeID
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	cloned := *e
	if e.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}
