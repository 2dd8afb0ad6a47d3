package lens

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	pkgerrors "mindscape/pkg/errors"
)

// State is a node's lens visibility state
type State string

const (
	StateOff       State = "off"
	StateKeep      State = "keep"
	StateEmphasize State = "emphasize"
)

// Valid reports whether the state belongs to the closed lens state set.
func (s State) Valid() bool {
	return s == StateOff || s == StateKeep || s == StateEmphasize
}

// DefaultWeight returns the conventional weight for a state when the caller
// does not supply one.
func DefaultWeight(s State) float64 {
	switch s {
	case StateOff:
		return 0
	case StateEmphasize:
		return 2.0
	default:
		return 1.0
	}
}

// Setting is the lens value assigned to one node at one scope.
type Setting struct {
	State  State   `json:"state"`
	Weight float64 `json:"weight"`
}

// DefaultSetting is the terminal fallback when no scope defines a node:
// the global preset always defines a default, and the default of the
// default is keep.
func DefaultSetting() Setting {
	return Setting{State: StateKeep, Weight: 1.0}
}

// Validate checks the setting fields.
func (s Setting) Validate() error {
	if !s.State.Valid() {
		return pkgerrors.NewValidationError("unknown lens state: " + string(s.State))
	}
	if s.Weight < 0 {
		return pkgerrors.NewValidationError("lens weight cannot be negative")
	}
	return nil
}

// Scope is the level at which a lens value was defined
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeWorkspace Scope = "workspace"
	ScopeSession   Scope = "session"
)

// Layer is one partial node→setting map at a given scope. Layers are folded
// left-to-right in fixed precedence order (global, workspace, session); the
// last layer that defines a node wins. Keeping resolution as an ordered fold
// leaves room for further scope levels without branching logic.
type Layer struct {
	Scope    Scope
	Settings map[string]Setting
}

// LensNode is one node's fully resolved lens value with provenance.
type LensNode struct {
	NodeID         string  `json:"node_id"`
	State          State   `json:"state"`
	Weight         float64 `json:"weight"`
	EffectiveScope Scope   `json:"effective_scope"`
	IsOverridden   bool    `json:"is_overridden"`
	OverriddenFrom Scope   `json:"overridden_from,omitempty"`
}

// EffectiveLens is the resolved per-node lens state for a profile plus
// optional workspace and session scopes. It is derived, never persisted as a
// source of truth, and recomputed on every read.
type EffectiveLens struct {
	ProfileID              string     `json:"profile_id"`
	WorkspaceID            string     `json:"workspace_id,omitempty"`
	SessionID              string     `json:"session_id,omitempty"`
	Nodes                  []LensNode `json:"nodes"`
	PresetID               string     `json:"global_preset_id,omitempty"`
	WorkspaceOverrideCount int        `json:"workspace_override_count"`
	SessionOverrideCount   int        `json:"session_override_count"`
	ContentHash            string     `json:"content_hash"`
	ComputedAt             time.Time  `json:"computed_at"`
}

// Resolve folds the layers over the node universe and returns the resolved
// nodes sorted by node id. Nodes referenced only by an override start from
// the implicit global default.
func Resolve(layers []Layer) []LensNode {
	type resolution struct {
		setting  Setting
		scope    Scope
		overrode Scope
		hasLower bool
	}

	resolved := make(map[string]*resolution)
	for _, layer := range layers {
		for nodeID, setting := range layer.Settings {
			current, ok := resolved[nodeID]
			if !ok {
				base := &resolution{setting: DefaultSetting(), scope: ScopeGlobal}
				if layer.Scope != ScopeGlobal {
					// Defined only by an override; the implicit global
					// default is what it replaces.
					base.setting = setting
					base.scope = layer.Scope
					base.overrode = ScopeGlobal
					base.hasLower = true
				} else {
					base.setting = setting
				}
				resolved[nodeID] = base
				continue
			}
			current.overrode = current.scope
			current.setting = setting
			current.scope = layer.Scope
			current.hasLower = true
		}
	}

	nodes := make([]LensNode, 0, len(resolved))
	for nodeID, r := range resolved {
		node := LensNode{
			NodeID:         nodeID,
			State:          r.setting.State,
			Weight:         r.setting.Weight,
			EffectiveScope: r.scope,
		}
		if r.scope != ScopeGlobal && r.hasLower {
			node.IsOverridden = true
			node.OverriddenFrom = r.overrode
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes
}

// ContentHash computes a stable hash over the sorted (node_id, state, weight)
// tuples for cheap client-side change detection.
func ContentHash(nodes []LensNode) string {
	var sb strings.Builder
	for _, node := range nodes {
		fmt.Fprintf(&sb, "%s|%s|%g;", node.NodeID, node.State, node.Weight)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
