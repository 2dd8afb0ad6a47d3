package memory

import (
	"context"
	"testing"
	"time"

	"mindscape/application/ports"
	"mindscape/domain/changelog"
	"mindscape/domain/graph"
	pkgerrors "mindscape/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingChange(t *testing.T, workspaceID, targetID string) *changelog.PendingChange {
	t.Helper()
	change, err := changelog.NewPendingChange(workspaceID, changelog.OpCreateNode, targetID,
		nil, map[string]any{"type": "value", "label": "Test"}, changelog.ActorUser, "")
	require.NoError(t, err)
	return change
}

func commitFor(change *changelog.PendingChange, version int64) ports.Commit {
	applied := *change
	applied.Status = changelog.StatusApplied
	applied.Version = version
	node := &graph.Node{ID: change.TargetID, Type: graph.NodeTypeValue, Label: "Test",
		Status: graph.StatusSuggested, CreatedAt: time.Now().UTC()}
	return ports.Commit{
		Change:   &applied,
		Entry:    changelog.NewApplyEntry(&applied, version, "tester", time.Now().UTC()),
		Mutation: graph.Mutation{PutNodes: []*graph.Node{node}},
	}
}

func TestStore_SavePending_DuplicateConflicts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	change := pendingChange(t, "ws-1", "n1")

	require.NoError(t, store.SavePending(ctx, change))
	err := store.SavePending(ctx, change)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestStore_ListPending_OrderedByCreatedAt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := pendingChange(t, "ws-1", "n1")
	second := pendingChange(t, "ws-1", "n2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.SavePending(ctx, second))
	require.NoError(t, store.SavePending(ctx, first))

	pending, err := store.ListPending(ctx, "ws-1", "")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "n1", pending[0].TargetID)
	assert.Equal(t, "n2", pending[1].TargetID)
}

func TestStore_CommitApplied_RefusesNonNextVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	change := pendingChange(t, "ws-1", "n1")
	require.NoError(t, store.SavePending(ctx, change))

	err := store.CommitApplied(ctx, commitFor(change, 2))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	// Nothing was written.
	version, err := store.CurrentVersion(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	_, total, err := store.History(ctx, "ws-1", 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStore_CommitApplied_BumpsVersionAndWritesHistory(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	change := pendingChange(t, "ws-1", "n1")
	require.NoError(t, store.SavePending(ctx, change))
	require.NoError(t, store.CommitApplied(ctx, commitFor(change, 1)))

	version, err := store.CurrentVersion(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	node, err := store.GetNode(ctx, "ws-1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "Test", node.Label)

	stored, err := store.GetChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, changelog.StatusApplied, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestStore_LaterAppliedExists(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	change := pendingChange(t, "ws-1", "n1")
	require.NoError(t, store.SavePending(ctx, change))
	require.NoError(t, store.CommitApplied(ctx, commitFor(change, 1)))

	later, err := store.LaterAppliedExists(ctx, "ws-1", "n1", 0)
	require.NoError(t, err)
	assert.True(t, later)

	later, err = store.LaterAppliedExists(ctx, "ws-1", "n1", 1)
	require.NoError(t, err)
	assert.False(t, later)

	later, err = store.LaterAppliedExists(ctx, "ws-1", "other", 0)
	require.NoError(t, err)
	assert.False(t, later)
}

func TestStore_History_DescendingWithLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		change := pendingChange(t, "ws-1", string(rune('a'+i)))
		require.NoError(t, store.SavePending(ctx, change))
		require.NoError(t, store.CommitApplied(ctx, commitFor(change, i)))
	}

	entries, total, err := store.History(ctx, "ws-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Version)
	assert.Equal(t, int64(2), entries[1].Version)
}
