package memory

import (
	"context"
	"sort"
	"time"

	"mindscape/domain/lens"
	pkgerrors "mindscape/pkg/errors"
)

// GetOrCreateProfile returns the profile, creating an empty one on first
// reference. Profiles have no separate creation endpoint.
func (s *Store) GetOrCreateProfile(ctx context.Context, profileID string) (*lens.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[profileID]
	if !ok {
		now := nowUTC()
		profile = &lens.Profile{ID: profileID, CreatedAt: now, UpdatedAt: now}
		s.profiles[profileID] = profile
	}
	cloned := *profile
	return &cloned, nil
}

// SaveProfile persists the profile's mutable fields.
func (s *Store) SaveProfile(ctx context.Context, profile *lens.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *profile
	s.profiles[profile.ID] = &cloned
	return nil
}

// SavePreset persists an immutable preset snapshot. Overwriting an existing
// preset is a conflict.
func (s *Store) SavePreset(ctx context.Context, preset *lens.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.presets[preset.ID]; exists {
		return pkgerrors.NewConflictError("preset already exists: " + preset.ID)
	}
	cloned := *preset
	cloned.Nodes = preset.SettingsCopy()
	s.presets[preset.ID] = &cloned
	return nil
}

// GetPreset retrieves a preset by id.
func (s *Store) GetPreset(ctx context.Context, presetID string) (*lens.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	preset, ok := s.presets[presetID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("preset")
	}
	cloned := *preset
	cloned.Nodes = preset.SettingsCopy()
	return &cloned, nil
}

// WorkspaceOverrides returns a copy of the workspace's override map.
func (s *Store) WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.workspaceOverrides[workspaceID]), nil
}

// SetWorkspaceOverride upserts one workspace override.
func (s *Store) SetWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, setting lens.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, ok := s.workspaceOverrides[workspaceID]
	if !ok {
		overrides = make(map[string]lens.Setting)
		s.workspaceOverrides[workspaceID] = overrides
	}
	overrides[nodeID] = setting
	return nil
}

// RemoveWorkspaceOverride deletes one workspace override. Removing an
// override that does not exist is not an error.
func (s *Store) RemoveWorkspaceOverride(ctx context.Context, workspaceID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaceOverrides[workspaceID], nodeID)
	return nil
}

// SessionOverrides returns a copy of the session's override map.
func (s *Store) SessionOverrides(ctx context.Context, sessionID string) (map[string]lens.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.sessionOverrides[sessionID]), nil
}

// SetSessionOverride upserts one session override.
func (s *Store) SetSessionOverride(ctx context.Context, sessionID, nodeID string, setting lens.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, ok := s.sessionOverrides[sessionID]
	if !ok {
		overrides = make(map[string]lens.Setting)
		s.sessionOverrides[sessionID] = overrides
	}
	overrides[nodeID] = setting
	return nil
}

// RemoveSessionOverride deletes one session override.
func (s *Store) RemoveSessionOverride(ctx context.Context, sessionID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionOverrides[sessionID], nodeID)
	return nil
}

// ClearSessionOverrides deletes all of a session's overrides.
func (s *Store) ClearSessionOverrides(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionOverrides, sessionID)
	return nil
}

// SaveChangeSet persists a new changeset.
func (s *Store) SaveChangeSet(ctx context.Context, changeSet *lens.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changeSets[changeSet.ID]; exists {
		return pkgerrors.NewConflictError("changeset already exists: " + changeSet.ID)
	}
	cloned := *changeSet
	cloned.Changes = append([]lens.NodeChange(nil), changeSet.Changes...)
	s.changeSets[changeSet.ID] = &cloned
	return nil
}

// GetChangeSet retrieves a changeset by id.
func (s *Store) GetChangeSet(ctx context.Context, changeSetID string) (*lens.ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changeSet, ok := s.changeSets[changeSetID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("changeset")
	}
	cloned := *changeSet
	cloned.Changes = append([]lens.NodeChange(nil), changeSet.Changes...)
	return &cloned, nil
}

// ConsumeChangeSet flips the consumed flag exactly once.
func (s *Store) ConsumeChangeSet(ctx context.Context, changeSetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changeSet, ok := s.changeSets[changeSetID]
	if !ok {
		return pkgerrors.NewNotFoundError("changeset")
	}
	if changeSet.Consumed {
		return pkgerrors.NewStateError("changeset already consumed")
	}
	changeSet.Consumed = true
	return nil
}

// ListReceipts returns a profile's receipts executed at or after since,
// ordered by execution time ascending.
func (s *Store) ListReceipts(ctx context.Context, profileID string, since time.Time) ([]lens.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := []lens.ExecutionReceipt{}
	for _, receipt := range s.receipts[profileID] {
		if receipt.ExecutedAt.Before(since) {
			continue
		}
		receipts = append(receipts, receipt)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ExecutedAt.Before(receipts[j].ExecutedAt) })
	return receipts, nil
}
