package changelog

import (
	"encoding/json"
	"reflect"
	"time"

	pkgerrors "mindscape/pkg/errors"

	"github.com/google/uuid"
)

// Operation is the kind of graph mutation a change proposes
type Operation string

const (
	OpCreateNode    Operation = "create_node"
	OpUpdateNode    Operation = "update_node"
	OpDeleteNode    Operation = "delete_node"
	OpCreateEdge    Operation = "create_edge"
	OpDeleteEdge    Operation = "delete_edge"
	OpUpdateOverlay Operation = "update_overlay"
)

var operations = map[Operation]bool{
	OpCreateNode: true, OpUpdateNode: true, OpDeleteNode: true,
	OpCreateEdge: true, OpDeleteEdge: true, OpUpdateOverlay: true,
}

// Valid reports whether the operation belongs to the closed operation set.
func (o Operation) Valid() bool {
	return operations[o]
}

// RequiresBeforeState reports whether the operation must carry a before_state
// for conflict detection at approval time.
func (o Operation) RequiresBeforeState() bool {
	switch o {
	case OpUpdateNode, OpDeleteNode, OpDeleteEdge, OpUpdateOverlay:
		return true
	}
	return false
}

// TargetType identifies what kind of entity a change touches
type TargetType string

const (
	TargetNode    TargetType = "node"
	TargetEdge    TargetType = "edge"
	TargetOverlay TargetType = "overlay"
)

// TargetTypeFor returns the target type implied by an operation.
func TargetTypeFor(op Operation) TargetType {
	switch op {
	case OpCreateNode, OpUpdateNode, OpDeleteNode:
		return TargetNode
	case OpCreateEdge, OpDeleteEdge:
		return TargetEdge
	default:
		return TargetOverlay
	}
}

// Actor identifies who proposed a change
type Actor string

const (
	ActorUser     Actor = "user"
	ActorLLM      Actor = "llm"
	ActorSystem   Actor = "system"
	ActorPlaybook Actor = "playbook"
)

// Valid reports whether the actor belongs to the closed actor set.
func (a Actor) Valid() bool {
	return a == ActorUser || a == ActorLLM || a == ActorSystem || a == ActorPlaybook
}

// Status is the lifecycle state of a pending change
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusUndone   Status = "undone"
)

// CanTransition reports whether moving from the current status to the target
// is a legal lifecycle transition. Changes are append-only: they are never
// deleted, only status-transitioned.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusApplied || to == StatusRejected
	case StatusApplied:
		return to == StatusUndone
	}
	return false
}

// PendingChange is a proposed graph mutation awaiting review.
// Version is zero until the change is applied.
type PendingChange struct {
	ID           string         `json:"id"`
	WorkspaceID  string         `json:"workspace_id"`
	Version      int64          `json:"version,omitempty"`
	Operation    Operation      `json:"operation"`
	TargetType   TargetType     `json:"target_type"`
	TargetID     string         `json:"target_id"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Actor        Actor          `json:"actor"`
	ActorContext string         `json:"actor_context,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewPendingChange validates the proposal fields and returns a pending change.
// The before_state is not checked against the live graph here; that comparison
// happens only at approval time, so conflicting proposals may coexist.
func NewPendingChange(
	workspaceID string,
	op Operation,
	targetID string,
	beforeState, afterState map[string]any,
	actor Actor,
	actorContext string,
) (*PendingChange, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	if !op.Valid() {
		return nil, pkgerrors.NewValidationError("unknown operation: " + string(op))
	}
	if targetID == "" {
		return nil, pkgerrors.NewValidationError("target_id cannot be empty")
	}
	if !actor.Valid() {
		return nil, pkgerrors.NewValidationError("unknown actor: " + string(actor))
	}
	if op.RequiresBeforeState() && len(beforeState) == 0 {
		return nil, pkgerrors.NewValidationError("before_state is required for " + string(op))
	}
	if op != OpDeleteNode && op != OpDeleteEdge && len(afterState) == 0 {
		return nil, pkgerrors.NewValidationError("after_state is required for " + string(op))
	}

	return &PendingChange{
		ID:           uuid.New().String(),
		WorkspaceID:  workspaceID,
		Operation:    op,
		TargetType:   TargetTypeFor(op),
		TargetID:     targetID,
		BeforeState:  NormalizeState(beforeState),
		AfterState:   NormalizeState(afterState),
		Actor:        actor,
		ActorContext: actorContext,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// NormalizeState round-trips a state map through JSON so that values compare
// with the same dynamic types regardless of whether they arrived over the
// wire or from the materialized graph.
func NormalizeState(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return state
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return state
	}
	return normalized
}

// StateMatches compares a before_state against the committed state as a field
// subset: every field present in before must equal the committed value.
// Fields absent from before are not constrained.
func StateMatches(before, committed map[string]any) bool {
	committed = NormalizeState(committed)
	for field, want := range NormalizeState(before) {
		if !reflect.DeepEqual(want, committed[field]) {
			return false
		}
	}
	return true
}
