package lens

import (
	"context"
	"time"

	"mindscape/application/ports"
	"mindscape/domain/events"
	"mindscape/domain/lens"
	pkgerrors "mindscape/pkg/errors"

	"go.uber.org/zap"
)

// Service resolves effective lens state and manages the override scopes,
// presets and changesets behind it. Resolution is always recomputed from the
// stored layers; nothing here caches a resolved lens.
type Service struct {
	repo      ports.LensRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewService creates a lens service
func NewService(repo ports.LensRepository, publisher ports.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ComputeEffectiveLens folds the global preset, workspace overrides and
// session overrides in precedence order and returns the resolved per-node
// state with provenance. Workspace and session layers participate only when
// their ids are supplied.
func (s *Service) ComputeEffectiveLens(ctx context.Context, profileID, workspaceID, sessionID string) (*lens.EffectiveLens, error) {
	if profileID == "" {
		return nil, pkgerrors.NewValidationError("profile_id cannot be empty")
	}

	layers, presetID, counts, err := s.loadLayers(ctx, profileID, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}

	nodes := lens.Resolve(layers)
	return &lens.EffectiveLens{
		ProfileID:              profileID,
		WorkspaceID:            workspaceID,
		SessionID:              sessionID,
		Nodes:                  nodes,
		PresetID:               presetID,
		WorkspaceOverrideCount: counts.workspace,
		SessionOverrideCount:   counts.session,
		ContentHash:            lens.ContentHash(nodes),
		ComputedAt:             time.Now().UTC(),
	}, nil
}

type overrideCounts struct {
	workspace int
	session   int
}

// loadLayers assembles the ordered layer stack for resolution. The global
// layer is always present, even when the profile has no active preset yet.
func (s *Service) loadLayers(ctx context.Context, profileID, workspaceID, sessionID string) ([]lens.Layer, string, overrideCounts, error) {
	var counts overrideCounts

	profile, err := s.repo.GetOrCreateProfile(ctx, profileID)
	if err != nil {
		return nil, "", counts, err
	}

	var preset *lens.Preset
	if profile.ActivePresetID != "" {
		preset, err = s.repo.GetPreset(ctx, profile.ActivePresetID)
		if err != nil && !pkgerrors.IsNotFound(err) {
			return nil, "", counts, err
		}
	}

	layers := []lens.Layer{
		{Scope: lens.ScopeGlobal, Settings: preset.SettingsCopy()},
	}
	if workspaceID != "" {
		overrides, err := s.repo.WorkspaceOverrides(ctx, workspaceID)
		if err != nil {
			return nil, "", counts, err
		}
		counts.workspace = len(overrides)
		layers = append(layers, lens.Layer{Scope: lens.ScopeWorkspace, Settings: overrides})
	}
	if sessionID != "" {
		overrides, err := s.repo.SessionOverrides(ctx, sessionID)
		if err != nil {
			return nil, "", counts, err
		}
		counts.session = len(overrides)
		layers = append(layers, lens.Layer{Scope: lens.ScopeSession, Settings: overrides})
	}
	return layers, profile.ActivePresetID, counts, nil
}

// SetOverride upserts one node's override at the workspace or session scope.
// When weight is nil the state's conventional weight is used.
func (s *Service) SetOverride(ctx context.Context, scope lens.Scope, scopeID, nodeID string, state lens.State, weight *float64) (lens.Setting, error) {
	if scopeID == "" {
		return lens.Setting{}, pkgerrors.NewValidationError("scope id cannot be empty")
	}
	if nodeID == "" {
		return lens.Setting{}, pkgerrors.NewValidationError("node_id cannot be empty")
	}

	setting := lens.Setting{State: state, Weight: lens.DefaultWeight(state)}
	if weight != nil {
		setting.Weight = *weight
	}
	if err := setting.Validate(); err != nil {
		return lens.Setting{}, err
	}

	switch scope {
	case lens.ScopeWorkspace:
		if err := s.repo.SetWorkspaceOverride(ctx, scopeID, nodeID, setting); err != nil {
			return lens.Setting{}, err
		}
	case lens.ScopeSession:
		if err := s.repo.SetSessionOverride(ctx, scopeID, nodeID, setting); err != nil {
			return lens.Setting{}, err
		}
	default:
		return lens.Setting{}, pkgerrors.NewValidationError("overrides exist only at workspace or session scope")
	}

	s.publish(ctx, events.NewOverrideSet(string(scope), scopeID, nodeID, string(setting.State), setting.Weight, time.Now().UTC()))
	return setting, nil
}

// RemoveOverride deletes one node's override at the given scope, reverting
// that node to the next lower scope on the next resolution.
func (s *Service) RemoveOverride(ctx context.Context, scope lens.Scope, scopeID, nodeID string) error {
	if scopeID == "" {
		return pkgerrors.NewValidationError("scope id cannot be empty")
	}
	if nodeID == "" {
		return pkgerrors.NewValidationError("node_id cannot be empty")
	}

	switch scope {
	case lens.ScopeWorkspace:
		if err := s.repo.RemoveWorkspaceOverride(ctx, scopeID, nodeID); err != nil {
			return err
		}
	case lens.ScopeSession:
		if err := s.repo.RemoveSessionOverride(ctx, scopeID, nodeID); err != nil {
			return err
		}
	default:
		return pkgerrors.NewValidationError("overrides exist only at workspace or session scope")
	}

	s.publish(ctx, events.NewOverrideRemoved(string(scope), scopeID, nodeID, time.Now().UTC()))
	return nil
}

// ClearSessionOverrides drops every override for a session in one call, the
// reset path for abandoning an experiment.
func (s *Service) ClearSessionOverrides(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.NewValidationError("session_id cannot be empty")
	}
	if err := s.repo.ClearSessionOverrides(ctx, sessionID); err != nil {
		return err
	}
	s.publish(ctx, events.NewOverrideRemoved(string(lens.ScopeSession), sessionID, "", time.Now().UTC()))
	return nil
}

// ReplaceSessionOverrides swaps a session's entire override map in one call.
// Nodes absent from the new map lose their override.
func (s *Service) ReplaceSessionOverrides(ctx context.Context, sessionID string, overrides map[string]lens.Setting) error {
	if sessionID == "" {
		return pkgerrors.NewValidationError("session_id cannot be empty")
	}
	for nodeID, setting := range overrides {
		if nodeID == "" {
			return pkgerrors.NewValidationError("node_id cannot be empty")
		}
		if err := setting.Validate(); err != nil {
			return pkgerrors.Wrapf(err, "invalid setting for node %s", nodeID)
		}
	}

	if err := s.repo.ClearSessionOverrides(ctx, sessionID); err != nil {
		return err
	}
	for nodeID, setting := range overrides {
		if err := s.repo.SetSessionOverride(ctx, sessionID, nodeID, setting); err != nil {
			return err
		}
		s.publish(ctx, events.NewOverrideSet(string(lens.ScopeSession), sessionID, nodeID, string(setting.State), setting.Weight, time.Now().UTC()))
	}
	return nil
}

// CreateChangeSet bundles a session's overrides into a reviewable changeset,
// diffed against the effective state one scope down.
func (s *Service) CreateChangeSet(ctx context.Context, profileID, workspaceID, sessionID string) (*lens.ChangeSet, error) {
	if profileID == "" {
		return nil, pkgerrors.NewValidationError("profile_id cannot be empty")
	}
	if sessionID == "" {
		return nil, pkgerrors.NewValidationError("session_id cannot be empty")
	}

	session, err := s.repo.SessionOverrides(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	base, err := s.resolveBase(ctx, profileID, workspaceID)
	if err != nil {
		return nil, err
	}

	changeSet := lens.NewChangeSet(profileID, sessionID, workspaceID, base, session)
	if err := s.repo.SaveChangeSet(ctx, changeSet); err != nil {
		return nil, err
	}
	return changeSet, nil
}

// resolveBase resolves the lens state below the session scope: global preset
// plus workspace overrides when a workspace is given.
func (s *Service) resolveBase(ctx context.Context, profileID, workspaceID string) (map[string]lens.Setting, error) {
	layers, _, _, err := s.loadLayers(ctx, profileID, workspaceID, "")
	if err != nil {
		return nil, err
	}
	base := make(map[string]lens.Setting)
	for _, node := range lens.Resolve(layers) {
		base[node.NodeID] = lens.Setting{State: node.State, Weight: node.Weight}
	}
	return base, nil
}

// ApplyChangeSet consumes a changeset and promotes its node changes to the
// chosen target scope. A workspace promotion lands in targetWorkspaceID when
// given, otherwise in the changeset's own workspace. Every precondition that
// can fail is checked before the consume so a rejected apply never burns the
// changeset; once consumed it can never be applied twice, even partially.
func (s *Service) ApplyChangeSet(ctx context.Context, changeSetID string, target lens.ApplyTarget, targetWorkspaceID, presetName string) (*lens.ChangeSet, error) {
	if changeSetID == "" {
		return nil, pkgerrors.NewValidationError("changeset id cannot be empty")
	}
	if !target.Valid() {
		return nil, pkgerrors.NewValidationError("unknown apply target: " + string(target))
	}

	changeSet, err := s.repo.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return nil, err
	}
	workspaceID := targetWorkspaceID
	if workspaceID == "" {
		workspaceID = changeSet.WorkspaceID
	}
	if target == lens.ApplyWorkspace && workspaceID == "" {
		return nil, pkgerrors.NewValidationError("no workspace to promote into: changeset has none and no target_workspace_id was given")
	}

	if err := s.repo.ConsumeChangeSet(ctx, changeSetID); err != nil {
		return nil, err
	}
	changeSet.Consumed = true

	switch target {
	case lens.ApplySessionOnly:
		// The changes already live at session scope; consuming the changeset
		// just closes the review.

	case lens.ApplyWorkspace:
		for _, change := range changeSet.Changes {
			if err := s.repo.SetWorkspaceOverride(ctx, workspaceID, change.NodeID, change.ToState); err != nil {
				return nil, err
			}
		}
		if err := s.repo.ClearSessionOverrides(ctx, changeSet.SessionID); err != nil {
			return nil, err
		}

	case lens.ApplyPreset:
		if presetName == "" {
			presetName = "from changeset " + changeSet.ID
		}
		if err := s.snapshotWithChanges(ctx, changeSet, workspaceID, presetName); err != nil {
			return nil, err
		}
		if err := s.repo.ClearSessionOverrides(ctx, changeSet.SessionID); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, events.NewChangeSetApplied(changeSet.ID, changeSet.ProfileID, string(target), time.Now().UTC()))
	s.logger.Info("Changeset applied",
		zap.String("changeSetID", changeSet.ID),
		zap.String("target", string(target)),
		zap.Int("changes", len(changeSet.Changes)),
	)
	return changeSet, nil
}

// snapshotWithChanges materializes a new preset from the base resolution plus
// the changeset's node changes, and points the profile at it.
func (s *Service) snapshotWithChanges(ctx context.Context, changeSet *lens.ChangeSet, workspaceID, name string) error {
	base, err := s.resolveBase(ctx, changeSet.ProfileID, workspaceID)
	if err != nil {
		return err
	}
	for _, change := range changeSet.Changes {
		base[change.NodeID] = change.ToState
	}

	preset, err := lens.NewPreset(changeSet.ProfileID, name, "promoted from changeset", base)
	if err != nil {
		return err
	}
	preset.WorkspaceID = workspaceID
	preset.SessionID = changeSet.SessionID
	if err := s.repo.SavePreset(ctx, preset); err != nil {
		return err
	}
	if err := s.activate(ctx, changeSet.ProfileID, preset.ID); err != nil {
		return err
	}

	s.publish(ctx, events.NewPresetSnapshotted(preset.ID, preset.ProfileID, preset.Name, time.Now().UTC()))
	return nil
}

// SnapshotPreset captures the current effective state for a profile (plus
// optional workspace and session overrides) as a new immutable preset.
func (s *Service) SnapshotPreset(ctx context.Context, profileID, workspaceID, sessionID, name, description string) (*lens.Preset, error) {
	if profileID == "" {
		return nil, pkgerrors.NewValidationError("profile_id cannot be empty")
	}

	layers, _, _, err := s.loadLayers(ctx, profileID, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]lens.Setting)
	for _, node := range lens.Resolve(layers) {
		settings[node.NodeID] = lens.Setting{State: node.State, Weight: node.Weight}
	}

	preset, err := lens.NewPreset(profileID, name, description, settings)
	if err != nil {
		return nil, err
	}
	preset.WorkspaceID = workspaceID
	preset.SessionID = sessionID
	if err := s.repo.SavePreset(ctx, preset); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewPresetSnapshotted(preset.ID, preset.ProfileID, preset.Name, time.Now().UTC()))
	return preset, nil
}

// ActivatePreset points the profile at an existing preset. The preset itself
// is never mutated.
func (s *Service) ActivatePreset(ctx context.Context, profileID, presetID string) error {
	if profileID == "" {
		return pkgerrors.NewValidationError("profile_id cannot be empty")
	}
	if _, err := s.repo.GetPreset(ctx, presetID); err != nil {
		return err
	}
	return s.activate(ctx, profileID, presetID)
}

func (s *Service) activate(ctx context.Context, profileID, presetID string) error {
	profile, err := s.repo.GetOrCreateProfile(ctx, profileID)
	if err != nil {
		return err
	}
	profile.ActivePresetID = presetID
	profile.UpdatedAt = time.Now().UTC()
	return s.repo.SaveProfile(ctx, profile)
}

// GetPreset retrieves a preset snapshot.
func (s *Service) GetPreset(ctx context.Context, presetID string) (*lens.Preset, error) {
	if presetID == "" {
		return nil, pkgerrors.NewValidationError("preset id cannot be empty")
	}
	return s.repo.GetPreset(ctx, presetID)
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
