package changelog

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind distinguishes forward applies from undo applies
type EntryKind string

const (
	EntryApply EntryKind = "apply"
	EntryUndo  EntryKind = "undo"
)

// HistoryEntry is the immutable record of one committed version.
// Entries are in strict 1:1 correspondence with version numbers: the entry
// for version v is written in the same commit that moves the counter to v.
type HistoryEntry struct {
	ID               string     `json:"id"`
	WorkspaceID      string     `json:"workspace_id"`
	Version          int64      `json:"version"`
	Kind             EntryKind  `json:"kind"`
	Operation        Operation  `json:"operation"`
	TargetType       TargetType `json:"target_type"`
	TargetID         string     `json:"target_id"`
	Actor            Actor      `json:"actor"`
	ChangeID         string     `json:"change_id"`
	OriginalChangeID string     `json:"original_change_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AppliedAt        time.Time  `json:"applied_at"`
	AppliedBy        string     `json:"applied_by"`
}

// NewApplyEntry builds the history entry for approving a pending change at
// the given version.
func NewApplyEntry(change *PendingChange, version int64, appliedBy string, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:          uuid.New().String(),
		WorkspaceID: change.WorkspaceID,
		Version:     version,
		Kind:        EntryApply,
		Operation:   change.Operation,
		TargetType:  change.TargetType,
		TargetID:    change.TargetID,
		Actor:       change.Actor,
		ChangeID:    change.ID,
		CreatedAt:   change.CreatedAt,
		AppliedAt:   now,
		AppliedBy:   appliedBy,
	}
}

// NewUndoEntry builds the history entry for undoing a previously applied
// change. The entry references the original change and allocates its own
// version number.
func NewUndoEntry(original *PendingChange, version int64, appliedBy string, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:               uuid.New().String(),
		WorkspaceID:      original.WorkspaceID,
		Version:          version,
		Kind:             EntryUndo,
		Operation:        original.Operation,
		TargetType:       original.TargetType,
		TargetID:         original.TargetID,
		Actor:            original.Actor,
		ChangeID:         original.ID,
		OriginalChangeID: original.ID,
		CreatedAt:        now,
		AppliedAt:        now,
		AppliedBy:        appliedBy,
	}
}
