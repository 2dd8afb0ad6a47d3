package memory

import (
	"context"
	"sort"

	"mindscape/application/ports"
	"mindscape/domain/changelog"
	pkgerrors "mindscape/pkg/errors"
)

// SavePending appends a new pending change.
func (s *Store) SavePending(ctx context.Context, change *changelog.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changes[change.ID]; exists {
		return pkgerrors.NewConflictError("change already exists: " + change.ID)
	}
	s.changes[change.ID] = cloneChange(change)
	return nil
}

// GetChange retrieves a change by id.
func (s *Store) GetChange(ctx context.Context, changeID string) (*changelog.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	change, ok := s.changes[changeID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("change")
	}
	return cloneChange(change), nil
}

// ListPending returns a workspace's pending changes ordered by created_at
// ascending, change id as tie-break.
func (s *Store) ListPending(ctx context.Context, workspaceID string, actorFilter changelog.Actor) ([]*changelog.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := []*changelog.PendingChange{}
	for _, change := range s.changes {
		if change.WorkspaceID != workspaceID || change.Status != changelog.StatusPending {
			continue
		}
		if actorFilter != "" && change.Actor != actorFilter {
			continue
		}
		pending = append(pending, cloneChange(change))
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// MarkRejected transitions a pending change to rejected. The version counter
// is untouched; rejections leave no history entry.
func (s *Store) MarkRejected(ctx context.Context, change *changelog.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.changes[change.ID]
	if !ok {
		return pkgerrors.NewNotFoundError("change")
	}
	stored.Status = changelog.StatusRejected
	return nil
}

// CommitApplied writes the change transition, its history entry and the graph
// mutation in one critical section. It refuses the commit unless the entry's
// version is exactly the scope's next version, which keeps the counter gapless
// even if a caller misbehaves.
func (s *Store) CommitApplied(ctx context.Context, commit ports.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.scope(commit.Entry.WorkspaceID)
	if commit.Entry.Version != data.version+1 {
		return pkgerrors.NewConflictError("commit version is not the next version")
	}
	stored, ok := s.changes[commit.Change.ID]
	if !ok {
		return pkgerrors.NewNotFoundError("change")
	}

	for _, node := range commit.Mutation.PutNodes {
		data.nodes[node.ID] = node.Clone()
	}
	for _, nodeID := range commit.Mutation.DeleteNodeIDs {
		delete(data.nodes, nodeID)
	}
	for _, edge := range commit.Mutation.PutEdges {
		data.edges[edge.ID] = edge.Clone()
	}
	for _, edgeID := range commit.Mutation.DeleteEdgeIDs {
		delete(data.edges, edgeID)
	}
	if commit.Mutation.Overlay != nil {
		data.overlay = commit.Mutation.Overlay.Clone()
	}

	*stored = *cloneChange(commit.Change)
	data.history = append(data.history, commit.Entry)
	data.version = commit.Entry.Version
	return nil
}

// CurrentVersion returns the workspace's committed version counter.
func (s *Store) CurrentVersion(ctx context.Context, workspaceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[workspaceID]
	if data == nil {
		return 0, nil
	}
	return data.version, nil
}

// History returns committed entries ordered by version descending plus the
// total entry count. limit <= 0 returns everything.
func (s *Store) History(ctx context.Context, workspaceID string, limit int) ([]changelog.HistoryEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.scopes[workspaceID]
	if data == nil {
		return []changelog.HistoryEntry{}, 0, nil
	}

	total := len(data.history)
	entries := make([]changelog.HistoryEntry, total)
	copy(entries, data.history)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version > entries[j].Version })
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, total, nil
}

// LaterAppliedExists reports whether a change in applied status with a higher
// version touches the same target. Changes that were themselves undone no
// longer block.
func (s *Store) LaterAppliedExists(ctx context.Context, workspaceID, targetID string, afterVersion int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, change := range s.changes {
		if change.WorkspaceID == workspaceID &&
			change.TargetID == targetID &&
			change.Status == changelog.StatusApplied &&
			change.Version > afterVersion {
			return true, nil
		}
	}
	return false, nil
}
