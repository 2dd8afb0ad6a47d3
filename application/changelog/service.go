package changelog

import (
	"context"
	"fmt"
	"time"

	"mindscape/application/ports"
	"mindscape/domain/changelog"
	"mindscape/domain/events"
	"mindscape/domain/graph"
	pkgerrors "mindscape/pkg/errors"
	"mindscape/pkg/observability"

	"go.uber.org/zap"
)

// Action selects what a batch process call does with its change ids
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ItemStatus is the per-item outcome of a batch process call
type ItemStatus string

const (
	ItemApplied  ItemStatus = "applied"
	ItemRejected ItemStatus = "rejected"
	ItemConflict ItemStatus = "conflict"
	ItemError    ItemStatus = "error"
)

// ItemResult is one change's outcome inside a batch.
type ItemResult struct {
	ChangeID string     `json:"change_id"`
	Status   ItemStatus `json:"status"`
	Version  int64      `json:"version,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// BatchResult is the partial-success result of a batch process call: one
// outcome per requested item, never an all-or-nothing transaction.
type BatchResult struct {
	Processed    int          `json:"processed"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Results      []ItemResult `json:"results"`
}

// HistoryResult is the read model for a workspace's committed history.
type HistoryResult struct {
	CurrentVersion int64                      `json:"current_version"`
	TotalEntries   int                        `json:"total_entries"`
	History        []changelog.HistoryEntry   `json:"history"`
	Pending        []*changelog.PendingChange `json:"pending,omitempty"`
}

// Service is the changelog engine: it accepts proposed mutations, enforces
// optimistic conflict checks at approval time, applies approved mutations
// atomically and owns the per-workspace version counter.
type Service struct {
	changes   ports.ChangelogRepository
	graphs    ports.GraphRepository
	locker    ports.WorkspaceLocker
	publisher ports.EventPublisher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewService creates a changelog service
func NewService(
	changes ports.ChangelogRepository,
	graphs ports.GraphRepository,
	locker ports.WorkspaceLocker,
	publisher ports.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		changes:   changes,
		graphs:    graphs,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit records a proposed mutation as a pending change. The before_state
// is not compared against the live graph here; that happens only at approval
// time, so multiple conflicting proposals may coexist as pending.
func (s *Service) Submit(
	ctx context.Context,
	workspaceID string,
	op changelog.Operation,
	targetID string,
	beforeState, afterState map[string]any,
	actor changelog.Actor,
	actorContext string,
) (*changelog.PendingChange, error) {
	change, err := changelog.NewPendingChange(workspaceID, op, targetID, beforeState, afterState, actor, actorContext)
	if err != nil {
		return nil, err
	}
	if err := s.changes.SavePending(ctx, change); err != nil {
		return nil, err
	}

	s.logger.Debug("Change submitted",
		zap.String("changeID", change.ID),
		zap.String("workspaceID", workspaceID),
		zap.String("operation", string(op)),
		zap.String("actor", string(actor)),
	)
	return change, nil
}

// ListPending returns a workspace's pending changes ordered by created_at
// ascending, optionally filtered by actor.
func (s *Service) ListPending(ctx context.Context, workspaceID string, actorFilter changelog.Actor) ([]*changelog.PendingChange, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	if actorFilter != "" && !actorFilter.Valid() {
		return nil, pkgerrors.NewValidationError("unknown actor filter: " + string(actorFilter))
	}
	return s.changes.ListPending(ctx, workspaceID, actorFilter)
}

// Process approves or rejects a batch of pending changes. The ids are
// processed in request order inside one write critical section for the
// workspace; a conflict on one item does not abort or roll back the others.
func (s *Service) Process(ctx context.Context, workspaceID string, changeIDs []string, action Action, processedBy string) (*BatchResult, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	if len(changeIDs) == 0 {
		return nil, pkgerrors.NewValidationError("change_ids cannot be empty")
	}
	if action != ActionApprove && action != ActionReject {
		return nil, pkgerrors.NewValidationError("action must be approve or reject")
	}

	release, err := s.locker.Acquire(ctx, workspaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to acquire workspace write lock")
	}
	defer release()

	result := &BatchResult{Results: make([]ItemResult, 0, len(changeIDs))}
	for _, changeID := range changeIDs {
		item := s.processOne(ctx, workspaceID, changeID, action, processedBy)
		result.Results = append(result.Results, item)
		result.Processed++
		if item.Status == ItemApplied || item.Status == ItemRejected {
			result.SuccessCount++
		} else {
			result.ErrorCount++
		}
		s.metrics.RecordChangeOutcome(ctx, string(action), string(item.Status))
	}
	return result, nil
}

func (s *Service) processOne(ctx context.Context, workspaceID, changeID string, action Action, processedBy string) ItemResult {
	change, err := s.changes.GetChange(ctx, changeID)
	if err != nil {
		return itemFromError(changeID, err)
	}
	if change.WorkspaceID != workspaceID {
		return itemFromError(changeID, pkgerrors.NewValidationError("change belongs to a different workspace"))
	}

	if action == ActionReject {
		if !change.Status.CanTransition(changelog.StatusRejected) {
			return itemFromError(changeID, pkgerrors.NewStateError(
				fmt.Sprintf("cannot reject change in status %s", change.Status)))
		}
		change.Status = changelog.StatusRejected
		if err := s.changes.MarkRejected(ctx, change); err != nil {
			return itemFromError(changeID, err)
		}
		s.publish(ctx, events.NewChangeRejected(workspaceID, change.ID, string(change.Actor), time.Now().UTC()))
		return ItemResult{ChangeID: changeID, Status: ItemRejected}
	}

	version, err := s.approve(ctx, change, processedBy)
	if err != nil {
		s.logger.Info("Change not applied",
			zap.String("changeID", changeID),
			zap.String("workspaceID", workspaceID),
			zap.Error(err),
		)
		return itemFromError(changeID, err)
	}
	return ItemResult{ChangeID: changeID, Status: ItemApplied, Version: version}
}

// approve re-validates the change against the current committed snapshot,
// applies it and allocates the next version. Caller holds the workspace lock.
func (s *Service) approve(ctx context.Context, change *changelog.PendingChange, processedBy string) (int64, error) {
	if !change.Status.CanTransition(changelog.StatusApplied) {
		return 0, pkgerrors.NewStateError(fmt.Sprintf("cannot approve change in status %s", change.Status))
	}

	started := time.Now()
	now := started.UTC()

	mutation, fullBefore, err := s.buildMutation(ctx, change, now)
	if err != nil {
		return 0, err
	}

	current, err := s.changes.CurrentVersion(ctx, change.WorkspaceID)
	if err != nil {
		return 0, err
	}
	version := current + 1
	if mutation.Overlay != nil {
		mutation.Overlay.Version = version
	}

	change.Status = changelog.StatusApplied
	change.Version = version
	if fullBefore != nil {
		// Replace the caller's partial before_state with the complete
		// committed snapshot so undo can restore it exactly.
		change.BeforeState = changelog.NormalizeState(fullBefore)
	}

	commit := ports.Commit{
		Change:   change,
		Entry:    changelog.NewApplyEntry(change, version, processedBy, now),
		Mutation: mutation,
	}
	if err := s.changes.CommitApplied(ctx, commit); err != nil {
		return 0, err
	}

	s.metrics.RecordApplyLatency(ctx, string(change.Operation), time.Since(started))
	s.publish(ctx, events.NewChangeApplied(
		change.WorkspaceID, change.ID, version,
		string(change.Operation), change.TargetID, string(change.Actor), now,
	))
	return version, nil
}

// buildMutation validates the change against the committed graph and returns
// the writes it produces plus the complete before snapshot for undo.
func (s *Service) buildMutation(ctx context.Context, change *changelog.PendingChange, now time.Time) (graph.Mutation, map[string]any, error) {
	workspaceID := change.WorkspaceID

	switch change.Operation {
	case changelog.OpCreateNode:
		if _, err := s.graphs.GetNode(ctx, workspaceID, change.TargetID); err == nil {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("node already exists: " + change.TargetID)
		} else if !pkgerrors.IsNotFound(err) {
			return graph.Mutation{}, nil, err
		}
		node, err := graph.NodeFromState(change.TargetID, change.AfterState, now)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		return graph.Mutation{PutNodes: []*graph.Node{node}}, nil, nil

	case changelog.OpUpdateNode:
		node, err := s.getNodeForChange(ctx, workspaceID, change.TargetID)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		committed := node.State()
		if !changelog.StateMatches(change.BeforeState, committed) {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("before_state does not match committed node state")
		}
		updated := node.Clone()
		if err := updated.ApplyState(change.AfterState); err != nil {
			return graph.Mutation{}, nil, err
		}
		return graph.Mutation{PutNodes: []*graph.Node{updated}}, committed, nil

	case changelog.OpDeleteNode:
		node, err := s.getNodeForChange(ctx, workspaceID, change.TargetID)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		committed := node.State()
		if !changelog.StateMatches(change.BeforeState, committed) {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("before_state does not match committed node state")
		}
		incident, err := s.graphs.EdgesTouching(ctx, workspaceID, change.TargetID)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		if len(incident) > 0 {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("node has incident edges; delete them first")
		}
		return graph.Mutation{DeleteNodeIDs: []string{change.TargetID}}, committed, nil

	case changelog.OpCreateEdge:
		if _, err := s.graphs.GetEdge(ctx, workspaceID, change.TargetID); err == nil {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("edge already exists: " + change.TargetID)
		} else if !pkgerrors.IsNotFound(err) {
			return graph.Mutation{}, nil, err
		}
		edge, err := graph.EdgeFromState(change.TargetID, change.AfterState)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		for _, endpoint := range []string{edge.FromID, edge.ToID} {
			if _, err := s.graphs.GetNode(ctx, workspaceID, endpoint); err != nil {
				if pkgerrors.IsNotFound(err) {
					return graph.Mutation{}, nil, pkgerrors.NewConflictError("edge endpoint does not exist: " + endpoint)
				}
				return graph.Mutation{}, nil, err
			}
		}
		return graph.Mutation{PutEdges: []*graph.Edge{edge}}, nil, nil

	case changelog.OpDeleteEdge:
		edge, err := s.graphs.GetEdge(ctx, workspaceID, change.TargetID)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				return graph.Mutation{}, nil, pkgerrors.NewConflictError("edge no longer exists: " + change.TargetID)
			}
			return graph.Mutation{}, nil, err
		}
		committed := edge.State()
		if !changelog.StateMatches(change.BeforeState, committed) {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("before_state does not match committed edge state")
		}
		return graph.Mutation{DeleteEdgeIDs: []string{change.TargetID}}, committed, nil

	case changelog.OpUpdateOverlay:
		overlay, err := s.graphs.GetOverlay(ctx, workspaceID)
		if err != nil {
			return graph.Mutation{}, nil, err
		}
		committed := overlay.State()
		if !changelog.StateMatches(change.BeforeState, committed) {
			return graph.Mutation{}, nil, pkgerrors.NewConflictError("before_state does not match committed overlay state")
		}
		updated := overlay.Clone()
		if err := updated.ApplyState(change.AfterState); err != nil {
			return graph.Mutation{}, nil, err
		}
		return graph.Mutation{Overlay: updated}, committed, nil
	}
	return graph.Mutation{}, nil, pkgerrors.NewValidationError("unknown operation: " + string(change.Operation))
}

func (s *Service) getNodeForChange(ctx context.Context, workspaceID, nodeID string) (*graph.Node, error) {
	node, err := s.graphs.GetNode(ctx, workspaceID, nodeID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewConflictError("node no longer exists: " + nodeID)
		}
		return nil, err
	}
	return node, nil
}

// Undo reverts an applied change by applying its inverse transform as a new
// version. It is legal only while no later applied change touches the same
// target; otherwise the undo would silently discard newer state.
func (s *Service) Undo(ctx context.Context, changeID, undoneBy string) (int64, error) {
	if changeID == "" {
		return 0, pkgerrors.NewValidationError("change_id cannot be empty")
	}

	change, err := s.changes.GetChange(ctx, changeID)
	if err != nil {
		return 0, err
	}

	release, err := s.locker.Acquire(ctx, change.WorkspaceID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to acquire workspace write lock")
	}
	defer release()

	// Re-read under the lock; the status may have moved.
	change, err = s.changes.GetChange(ctx, changeID)
	if err != nil {
		return 0, err
	}
	if !change.Status.CanTransition(changelog.StatusUndone) {
		s.metrics.RecordUndoOutcome(ctx, "state_error")
		return 0, pkgerrors.NewStateError(fmt.Sprintf("cannot undo change in status %s", change.Status))
	}

	later, err := s.changes.LaterAppliedExists(ctx, change.WorkspaceID, change.TargetID, change.Version)
	if err != nil {
		return 0, err
	}
	if later {
		s.metrics.RecordUndoOutcome(ctx, "conflict")
		return 0, pkgerrors.NewConflictError("a later applied change touches the same target")
	}

	now := time.Now().UTC()
	mutation, err := s.buildInverse(ctx, change)
	if err != nil {
		s.metrics.RecordUndoOutcome(ctx, "conflict")
		return 0, err
	}

	current, err := s.changes.CurrentVersion(ctx, change.WorkspaceID)
	if err != nil {
		return 0, err
	}
	version := current + 1
	if mutation.Overlay != nil {
		mutation.Overlay.Version = version
	}

	change.Status = changelog.StatusUndone
	commit := ports.Commit{
		Change:   change,
		Entry:    changelog.NewUndoEntry(change, version, undoneBy, now),
		Mutation: mutation,
	}
	if err := s.changes.CommitApplied(ctx, commit); err != nil {
		return 0, err
	}

	s.metrics.RecordUndoOutcome(ctx, "undone")
	s.publish(ctx, events.NewChangeUndone(change.WorkspaceID, change.ID, version, change.TargetID, now))
	return version, nil
}

// buildInverse computes the mutation that reverts an applied change.
func (s *Service) buildInverse(ctx context.Context, change *changelog.PendingChange) (graph.Mutation, error) {
	workspaceID := change.WorkspaceID

	switch change.Operation {
	case changelog.OpCreateNode:
		incident, err := s.graphs.EdgesTouching(ctx, workspaceID, change.TargetID)
		if err != nil {
			return graph.Mutation{}, err
		}
		if len(incident) > 0 {
			return graph.Mutation{}, pkgerrors.NewConflictError("node has incident edges; delete them first")
		}
		return graph.Mutation{DeleteNodeIDs: []string{change.TargetID}}, nil

	case changelog.OpUpdateNode:
		node, err := s.getNodeForChange(ctx, workspaceID, change.TargetID)
		if err != nil {
			return graph.Mutation{}, err
		}
		restored := node.Clone()
		if err := restored.ApplyState(change.BeforeState); err != nil {
			return graph.Mutation{}, err
		}
		return graph.Mutation{PutNodes: []*graph.Node{restored}}, nil

	case changelog.OpDeleteNode:
		node, err := graph.NodeFromState(change.TargetID, change.BeforeState, change.CreatedAt)
		if err != nil {
			return graph.Mutation{}, err
		}
		return graph.Mutation{PutNodes: []*graph.Node{node}}, nil

	case changelog.OpCreateEdge:
		if _, err := s.graphs.GetEdge(ctx, workspaceID, change.TargetID); err != nil {
			if pkgerrors.IsNotFound(err) {
				return graph.Mutation{}, pkgerrors.NewConflictError("edge no longer exists: " + change.TargetID)
			}
			return graph.Mutation{}, err
		}
		return graph.Mutation{DeleteEdgeIDs: []string{change.TargetID}}, nil

	case changelog.OpDeleteEdge:
		edge, err := graph.EdgeFromState(change.TargetID, change.BeforeState)
		if err != nil {
			return graph.Mutation{}, err
		}
		return graph.Mutation{PutEdges: []*graph.Edge{edge}}, nil

	case changelog.OpUpdateOverlay:
		overlay, err := s.graphs.GetOverlay(ctx, workspaceID)
		if err != nil {
			return graph.Mutation{}, err
		}
		restored := overlay.Clone()
		if err := restored.ApplyState(change.BeforeState); err != nil {
			return graph.Mutation{}, err
		}
		return graph.Mutation{Overlay: restored}, nil
	}
	return graph.Mutation{}, pkgerrors.NewValidationError("unknown operation: " + string(change.Operation))
}

// History returns the workspace's committed history newest-first, the total
// entry count and the current version, read from a consistent snapshot
// without blocking writers.
func (s *Service) History(ctx context.Context, workspaceID string, limit int, includePending bool) (*HistoryResult, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}

	entries, total, err := s.changes.History(ctx, workspaceID, limit)
	if err != nil {
		return nil, err
	}

	// Entries are 1:1 with version numbers, gapless from 1, so the entry
	// count from the same snapshot is the current version. A separate
	// CurrentVersion read could race a concurrent writer.
	result := &HistoryResult{
		CurrentVersion: int64(total),
		TotalEntries:   total,
		History:        entries,
	}
	if includePending {
		pending, err := s.changes.ListPending(ctx, workspaceID, "")
		if err != nil {
			return nil, err
		}
		result.Pending = pending
	}
	return result, nil
}

// CurrentVersion returns the workspace's committed version counter.
func (s *Service) CurrentVersion(ctx context.Context, workspaceID string) (int64, error) {
	if workspaceID == "" {
		return 0, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	return s.changes.CurrentVersion(ctx, workspaceID)
}

func (s *Service) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish domain event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}

func itemFromError(changeID string, err error) ItemResult {
	status := ItemError
	if pkgerrors.IsConflict(err) {
		status = ItemConflict
	}
	return ItemResult{ChangeID: changeID, Status: status, Error: err.Error()}
}
