package memory

import (
	"context"
	"sort"

	"mindscape/domain/graph"
	pkgerrors "mindscape/pkg/errors"
)

// GetProjection returns the scope's committed graph. The whole projection is
// read under one lock so it is consistent with exactly one version.
func (s *Store) GetProjection(ctx context.Context, scopeType graph.ScopeType, scopeID string) (*graph.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[scopeID]
	projection := &graph.Projection{
		ScopeType: scopeType,
		ScopeID:   scopeID,
		Nodes:     []*graph.Node{},
		Edges:     []*graph.Edge{},
		Overlay:   graph.NewOverlay(),
		DerivedAt: nowUTC(),
	}
	if data == nil {
		return projection, nil
	}

	for _, node := range data.nodes {
		projection.Nodes = append(projection.Nodes, node.Clone())
	}
	for _, edge := range data.edges {
		projection.Edges = append(projection.Edges, edge.Clone())
	}
	sort.Slice(projection.Nodes, func(i, j int) bool { return projection.Nodes[i].ID < projection.Nodes[j].ID })
	sort.Slice(projection.Edges, func(i, j int) bool { return projection.Edges[i].ID < projection.Edges[j].ID })
	projection.Overlay = data.overlay.Clone()
	projection.Version = data.version
	return projection, nil
}

// GetNode retrieves a single committed node.
func (s *Store) GetNode(ctx context.Context, scopeID, nodeID string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[scopeID]
	if data == nil {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	node, ok := data.nodes[nodeID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	return node.Clone(), nil
}

// GetEdge retrieves a single committed edge.
func (s *Store) GetEdge(ctx context.Context, scopeID, edgeID string) (*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[scopeID]
	if data == nil {
		return nil, pkgerrors.NewNotFoundError("edge")
	}
	edge, ok := data.edges[edgeID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("edge")
	}
	return edge.Clone(), nil
}

// EdgesTouching returns the committed edges incident to a node.
func (s *Store) EdgesTouching(ctx context.Context, scopeID, nodeID string) ([]*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := []*graph.Edge{}
	data := s.scopes[scopeID]
	if data == nil {
		return edges, nil
	}
	for _, edge := range data.edges {
		if edge.Touches(nodeID) {
			edges = append(edges, edge.Clone())
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// GetOverlay returns the committed overlay for a scope. A scope that has
// never been written has an empty overlay at version zero.
func (s *Store) GetOverlay(ctx context.Context, scopeID string) (*graph.Overlay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[scopeID]
	if data == nil {
		return graph.NewOverlay(), nil
	}
	return data.overlay.Clone(), nil
}
