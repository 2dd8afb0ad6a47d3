package graph

import (
	"time"

	pkgerrors "mindscape/pkg/errors"
)

// NodePlacement is a node's presentation position within an overlay.
type NodePlacement struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// Viewport describes the saved camera for a scope.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Overlay is per-scope presentation metadata layered on the logical graph.
// Overlay mutations ride the changelog, so Version is the workspace version
// at which the overlay last changed; it is not an independent counter.
type Overlay struct {
	Positions map[string]NodePlacement `json:"positions"`
	Collapsed map[string]bool          `json:"collapsed"`
	Viewport  *Viewport                `json:"viewport,omitempty"`
	Version   int64                    `json:"version"`
}

// NewOverlay returns an empty overlay at version zero.
func NewOverlay() *Overlay {
	return &Overlay{
		Positions: make(map[string]NodePlacement),
		Collapsed: make(map[string]bool),
	}
}

// State returns the overlay's attributes as a changelog state map.
func (o *Overlay) State() map[string]any {
	positions := make(map[string]any, len(o.Positions))
	for id, p := range o.Positions {
		positions[id] = map[string]any{"x": p.X, "y": p.Y, "scale": p.Scale}
	}
	collapsed := make(map[string]any, len(o.Collapsed))
	for id, c := range o.Collapsed {
		collapsed[id] = c
	}
	state := map[string]any{
		"positions": positions,
		"collapsed": collapsed,
	}
	if o.Viewport != nil {
		state["viewport"] = map[string]any{"x": o.Viewport.X, "y": o.Viewport.Y, "zoom": o.Viewport.Zoom}
	}
	return state
}

// ApplyState mutates the overlay with the top-level keys present in the state
// map. Each present key replaces that section wholesale, which keeps undo a
// matter of re-applying the captured before_state.
func (o *Overlay) ApplyState(state map[string]any) error {
	if raw, ok := state["positions"]; ok {
		positionsMap, ok := raw.(map[string]any)
		if !ok {
			return pkgerrors.NewValidationError("overlay positions must be a map")
		}
		positions := make(map[string]NodePlacement, len(positionsMap))
		for id, rawPlacement := range positionsMap {
			placement, ok := rawPlacement.(map[string]any)
			if !ok {
				return pkgerrors.NewValidationError("overlay position must be a map")
			}
			x, _ := placement["x"].(float64)
			y, _ := placement["y"].(float64)
			scale, ok := placement["scale"].(float64)
			if !ok {
				scale = 1.0
			}
			positions[id] = NodePlacement{X: x, Y: y, Scale: scale}
		}
		o.Positions = positions
	}
	if raw, ok := state["collapsed"]; ok {
		collapsedMap, ok := raw.(map[string]any)
		if !ok {
			return pkgerrors.NewValidationError("overlay collapsed must be a map")
		}
		collapsed := make(map[string]bool, len(collapsedMap))
		for id, rawVal := range collapsedMap {
			val, _ := rawVal.(bool)
			collapsed[id] = val
		}
		o.Collapsed = collapsed
	}
	if raw, ok := state["viewport"]; ok {
		if raw == nil {
			o.Viewport = nil
		} else {
			viewport, ok := raw.(map[string]any)
			if !ok {
				return pkgerrors.NewValidationError("overlay viewport must be a map")
			}
			x, _ := viewport["x"].(float64)
			y, _ := viewport["y"].(float64)
			zoom, ok := viewport["zoom"].(float64)
			if !ok {
				zoom = 1.0
			}
			o.Viewport = &Viewport{X: x, Y: y, Zoom: zoom}
		}
	}
	return nil
}

// Clone returns a deep copy of the overlay.
func (o *Overlay) Clone() *Overlay {
	cloned := &Overlay{
		Positions: make(map[string]NodePlacement, len(o.Positions)),
		Collapsed: make(map[string]bool, len(o.Collapsed)),
		Version:   o.Version,
	}
	for id, p := range o.Positions {
		cloned.Positions[id] = p
	}
	for id, c := range o.Collapsed {
		cloned.Collapsed[id] = c
	}
	if o.Viewport != nil {
		viewport := *o.Viewport
		cloned.Viewport = &viewport
	}
	return cloned
}

// ScopeType identifies which namespace a graph scope lives in.
type ScopeType string

const (
	ScopeWorkspace      ScopeType = "workspace"
	ScopeWorkspaceGroup ScopeType = "workspace_group"
)

// Valid reports whether the scope type is known.
func (s ScopeType) Valid() bool {
	return s == ScopeWorkspace || s == ScopeWorkspaceGroup
}

// Projection is the materialized graph for one scope as of a single
// committed version.
type Projection struct {
	ScopeType ScopeType `json:"scope_type"`
	ScopeID   string    `json:"scope_id"`
	Nodes     []*Node   `json:"nodes"`
	Edges     []*Edge   `json:"edges"`
	Overlay   *Overlay  `json:"overlay"`
	Version   int64     `json:"version"`
	DerivedAt time.Time `json:"derived_at"`
}

// Mutation is the set of graph writes produced by applying one change.
// A mutation is applied atomically alongside its history entry.
type Mutation struct {
	PutNodes      []*Node
	DeleteNodeIDs []string
	PutEdges      []*Edge
	DeleteEdgeIDs []string
	Overlay       *Overlay
}

// Empty reports whether the mutation carries no writes.
func (m *Mutation) Empty() bool {
	return len(m.PutNodes) == 0 && len(m.DeleteNodeIDs) == 0 &&
		len(m.PutEdges) == 0 && len(m.DeleteEdgeIDs) == 0 && m.Overlay == nil
}
