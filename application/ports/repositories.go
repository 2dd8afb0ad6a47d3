package ports

import (
	"context"
	"time"

	"mindscape/domain/changelog"
	"mindscape/domain/events"
	"mindscape/domain/graph"
	"mindscape/domain/lens"
)

// GraphRepository reads the materialized graph projection.
// This is a port in hexagonal architecture - the domain doesn't know about
// the implementation.
type GraphRepository interface {
	// GetProjection returns the graph for a scope, consistent with exactly
	// one committed version.
	GetProjection(ctx context.Context, scopeType graph.ScopeType, scopeID string) (*graph.Projection, error)

	// GetNode retrieves a single committed node
	GetNode(ctx context.Context, scopeID, nodeID string) (*graph.Node, error)

	// GetEdge retrieves a single committed edge
	GetEdge(ctx context.Context, scopeID, edgeID string) (*graph.Edge, error)

	// EdgesTouching returns the committed edges incident to a node
	EdgesTouching(ctx context.Context, scopeID, nodeID string) ([]*graph.Edge, error)

	// GetOverlay returns the committed overlay for a scope
	GetOverlay(ctx context.Context, scopeID string) (*graph.Overlay, error)
}

// Commit is one atomic changelog commit: the change's status transition, its
// history entry and the graph writes it produced land both-or-neither.
type Commit struct {
	Change   *changelog.PendingChange
	Entry    changelog.HistoryEntry
	Mutation graph.Mutation
}

// ChangelogRepository persists pending changes and the committed history.
type ChangelogRepository interface {
	// SavePending appends a new pending change
	SavePending(ctx context.Context, change *changelog.PendingChange) error

	// GetChange retrieves a change by id
	GetChange(ctx context.Context, changeID string) (*changelog.PendingChange, error)

	// ListPending returns pending changes for a workspace ordered by
	// created_at ascending, optionally filtered by actor
	ListPending(ctx context.Context, workspaceID string, actorFilter changelog.Actor) ([]*changelog.PendingChange, error)

	// MarkRejected transitions a pending change to rejected without touching
	// the version counter
	MarkRejected(ctx context.Context, change *changelog.PendingChange) error

	// CommitApplied atomically writes the commit: it fails without side
	// effects unless Entry.Version is exactly the workspace's next version
	CommitApplied(ctx context.Context, commit Commit) error

	// CurrentVersion returns the workspace's committed version counter
	CurrentVersion(ctx context.Context, workspaceID string) (int64, error)

	// History returns committed entries ordered by version descending plus
	// the total entry count
	History(ctx context.Context, workspaceID string, limit int) ([]changelog.HistoryEntry, int, error)

	// LaterAppliedExists reports whether an applied change with a higher
	// version touches the same target
	LaterAppliedExists(ctx context.Context, workspaceID, targetID string, afterVersion int64) (bool, error)
}

// LensRepository persists profiles, presets, overrides and changesets.
type LensRepository interface {
	// GetOrCreateProfile returns the profile, creating it on first reference
	GetOrCreateProfile(ctx context.Context, profileID string) (*lens.Profile, error)

	// SaveProfile persists profile mutations (active preset pointer)
	SaveProfile(ctx context.Context, profile *lens.Profile) error

	// SavePreset persists an immutable preset snapshot
	SavePreset(ctx context.Context, preset *lens.Preset) error

	// GetPreset retrieves a preset by id
	GetPreset(ctx context.Context, presetID string) (*lens.Preset, error)

	// WorkspaceOverrides returns the workspace's override map
	WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.Setting, error)

	// SetWorkspaceOverride upserts one workspace override
	SetWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, setting lens.Setting) error

	// RemoveWorkspaceOverride deletes one workspace override
	RemoveWorkspaceOverride(ctx context.Context, workspaceID, nodeID string) error

	// SessionOverrides returns the session's override map
	SessionOverrides(ctx context.Context, sessionID string) (map[string]lens.Setting, error)

	// SetSessionOverride upserts one session override
	SetSessionOverride(ctx context.Context, sessionID, nodeID string, setting lens.Setting) error

	// RemoveSessionOverride deletes one session override
	RemoveSessionOverride(ctx context.Context, sessionID, nodeID string) error

	// ClearSessionOverrides deletes all of a session's overrides
	ClearSessionOverrides(ctx context.Context, sessionID string) error

	// SaveChangeSet persists a new changeset
	SaveChangeSet(ctx context.Context, changeSet *lens.ChangeSet) error

	// GetChangeSet retrieves a changeset by id
	GetChangeSet(ctx context.Context, changeSetID string) (*lens.ChangeSet, error)

	// ConsumeChangeSet flips the consumed flag; it fails with a STATE error
	// if the changeset was already consumed
	ConsumeChangeSet(ctx context.Context, changeSetID string) error
}

// ReceiptSource reads execution receipts, the external evidence input for
// drift analysis. Receipts are never written by this service.
type ReceiptSource interface {
	// ListReceipts returns a profile's receipts executed at or after since
	ListReceipts(ctx context.Context, profileID string, since time.Time) ([]lens.ExecutionReceipt, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// WorkspaceLocker serializes workspace-mutating operations: one active
// writer per workspace, so version allocation stays strictly ordered and
// gapless. Reads never take this lock.
type WorkspaceLocker interface {
	// Acquire blocks until the workspace write lock is held or ctx ends;
	// the returned release function must be called exactly once
	Acquire(ctx context.Context, workspaceID string) (release func(), err error)
}
