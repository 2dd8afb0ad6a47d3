package graphstore

import (
	"context"

	appchangelog "mindscape/application/changelog"
	"mindscape/application/ports"
	"mindscape/domain/changelog"
	"mindscape/domain/graph"
	pkgerrors "mindscape/pkg/errors"

	"go.uber.org/zap"
)

// Service serves the materialized graph projection and routes overlay edits
// through the changelog so presentation changes are versioned and undoable.
type Service struct {
	graphs    ports.GraphRepository
	changelog *appchangelog.Service
	logger    *zap.Logger
}

// NewService creates a graph store service
func NewService(graphs ports.GraphRepository, changelogService *appchangelog.Service, logger *zap.Logger) *Service {
	return &Service{
		graphs:    graphs,
		changelog: changelogService,
		logger:    logger,
	}
}

// ComputeGraph returns the committed graph for a scope. The projection is
// consistent with exactly one version; in-flight pending changes are invisible.
func (s *Service) ComputeGraph(ctx context.Context, scopeType graph.ScopeType, scopeID string) (*graph.Projection, error) {
	if !scopeType.Valid() {
		return nil, pkgerrors.NewValidationError("unknown scope type: " + string(scopeType))
	}
	if scopeID == "" {
		return nil, pkgerrors.NewValidationError("scope_id cannot be empty")
	}
	return s.graphs.GetProjection(ctx, scopeType, scopeID)
}

// UpdateOverlay records an overlay edit as a changelog entry and approves it
// immediately. Presentation metadata needs no human review but still rides the
// version counter, so moving nodes around is undoable like any other change.
func (s *Service) UpdateOverlay(ctx context.Context, workspaceID string, state map[string]any, actor changelog.Actor, updatedBy string) (int64, error) {
	if workspaceID == "" {
		return 0, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	if len(state) == 0 {
		return 0, pkgerrors.NewValidationError("overlay state cannot be empty")
	}
	if actor == "" {
		actor = changelog.ActorUser
	}

	overlay, err := s.graphs.GetOverlay(ctx, workspaceID)
	if err != nil {
		return 0, err
	}

	change, err := s.changelog.Submit(ctx, workspaceID, changelog.OpUpdateOverlay,
		workspaceID, overlay.State(), state, actor, "overlay update")
	if err != nil {
		return 0, err
	}

	result, err := s.changelog.Process(ctx, workspaceID, []string{change.ID}, appchangelog.ActionApprove, updatedBy)
	if err != nil {
		return 0, err
	}

	item := result.Results[0]
	switch item.Status {
	case appchangelog.ItemApplied:
		return item.Version, nil
	case appchangelog.ItemConflict:
		return 0, pkgerrors.NewConflictError(item.Error)
	default:
		return 0, pkgerrors.NewInternalError(item.Error)
	}
}

// GetOverlay returns the committed overlay for a workspace.
func (s *Service) GetOverlay(ctx context.Context, workspaceID string) (*graph.Overlay, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspace_id cannot be empty")
	}
	return s.graphs.GetOverlay(ctx, workspaceID)
}
