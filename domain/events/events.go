package events

import "time"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Changelog events

// ChangeApplied is raised when a pending change is approved and applied.
type ChangeApplied struct {
	BaseEvent
	WorkspaceID string `json:"workspace_id"`
	ChangeID    string `json:"change_id"`
	Version     int64  `json:"version"`
	Operation   string `json:"operation"`
	TargetID    string `json:"target_id"`
	Actor       string `json:"actor"`
}

// NewChangeApplied creates a ChangeApplied event
func NewChangeApplied(workspaceID, changeID string, version int64, operation, targetID, actor string, timestamp time.Time) ChangeApplied {
	return ChangeApplied{
		BaseEvent: BaseEvent{
			AggregateID: workspaceID,
			EventType:   "change.applied",
			Timestamp:   timestamp,
		},
		WorkspaceID: workspaceID,
		ChangeID:    changeID,
		Version:     version,
		Operation:   operation,
		TargetID:    targetID,
		Actor:       actor,
	}
}

// ChangeRejected is raised when a pending change is rejected.
type ChangeRejected struct {
	BaseEvent
	WorkspaceID string `json:"workspace_id"`
	ChangeID    string `json:"change_id"`
	Actor       string `json:"actor"`
}

// NewChangeRejected creates a ChangeRejected event
func NewChangeRejected(workspaceID, changeID, actor string, timestamp time.Time) ChangeRejected {
	return ChangeRejected{
		BaseEvent: BaseEvent{
			AggregateID: workspaceID,
			EventType:   "change.rejected",
			Timestamp:   timestamp,
		},
		WorkspaceID: workspaceID,
		ChangeID:    changeID,
		Actor:       actor,
	}
}

// ChangeUndone is raised when an applied change is reverted.
type ChangeUndone struct {
	BaseEvent
	WorkspaceID      string `json:"workspace_id"`
	OriginalChangeID string `json:"original_change_id"`
	Version          int64  `json:"version"`
	TargetID         string `json:"target_id"`
}

// NewChangeUndone creates a ChangeUndone event
func NewChangeUndone(workspaceID, originalChangeID string, version int64, targetID string, timestamp time.Time) ChangeUndone {
	return ChangeUndone{
		BaseEvent: BaseEvent{
			AggregateID: workspaceID,
			EventType:   "change.undone",
			Timestamp:   timestamp,
		},
		WorkspaceID:      workspaceID,
		OriginalChangeID: originalChangeID,
		Version:          version,
		TargetID:         targetID,
	}
}

// Lens events

// OverrideSet is raised when a workspace or session override is upserted.
type OverrideSet struct {
	BaseEvent
	Scope   string  `json:"scope"`
	ScopeID string  `json:"scope_id"`
	NodeID  string  `json:"node_id"`
	State   string  `json:"state"`
	Weight  float64 `json:"weight"`
}

// NewOverrideSet creates an OverrideSet event
func NewOverrideSet(scope, scopeID, nodeID, state string, weight float64, timestamp time.Time) OverrideSet {
	return OverrideSet{
		BaseEvent: BaseEvent{
			AggregateID: scopeID,
			EventType:   "lens.override_set",
			Timestamp:   timestamp,
		},
		Scope:   scope,
		ScopeID: scopeID,
		NodeID:  nodeID,
		State:   state,
		Weight:  weight,
	}
}

// OverrideRemoved is raised when an override is removed and resolution
// reverts to the next lower scope.
type OverrideRemoved struct {
	BaseEvent
	Scope   string `json:"scope"`
	ScopeID string `json:"scope_id"`
	NodeID  string `json:"node_id,omitempty"`
}

// NewOverrideRemoved creates an OverrideRemoved event
func NewOverrideRemoved(scope, scopeID, nodeID string, timestamp time.Time) OverrideRemoved {
	return OverrideRemoved{
		BaseEvent: BaseEvent{
			AggregateID: scopeID,
			EventType:   "lens.override_removed",
			Timestamp:   timestamp,
		},
		Scope:   scope,
		ScopeID: scopeID,
		NodeID:  nodeID,
	}
}

// ChangeSetApplied is raised when a changeset is consumed.
type ChangeSetApplied struct {
	BaseEvent
	ChangeSetID string `json:"changeset_id"`
	ProfileID   string `json:"profile_id"`
	ApplyTo     string `json:"apply_to"`
}

// NewChangeSetApplied creates a ChangeSetApplied event
func NewChangeSetApplied(changeSetID, profileID, applyTo string, timestamp time.Time) ChangeSetApplied {
	return ChangeSetApplied{
		BaseEvent: BaseEvent{
			AggregateID: changeSetID,
			EventType:   "lens.changeset_applied",
			Timestamp:   timestamp,
		},
		ChangeSetID: changeSetID,
		ProfileID:   profileID,
		ApplyTo:     applyTo,
	}
}

// PresetSnapshotted is raised when a new immutable preset is materialized.
type PresetSnapshotted struct {
	BaseEvent
	PresetID  string `json:"preset_id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
}

// NewPresetSnapshotted creates a PresetSnapshotted event
func NewPresetSnapshotted(presetID, profileID, name string, timestamp time.Time) PresetSnapshotted {
	return PresetSnapshotted{
		BaseEvent: BaseEvent{
			AggregateID: presetID,
			EventType:   "lens.preset_snapshotted",
			Timestamp:   timestamp,
		},
		PresetID:  presetID,
		ProfileID: profileID,
		Name:      name,
	}
}
