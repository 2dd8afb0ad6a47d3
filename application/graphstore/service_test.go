package graphstore

import (
	"context"
	"testing"

	appchangelog "mindscape/application/changelog"
	"mindscape/domain/changelog"
	"mindscape/domain/graph"
	"mindscape/infrastructure/concurrency"
	"mindscape/infrastructure/messaging/eventbridge"
	"mindscape/infrastructure/persistence/memory"
	pkgerrors "mindscape/pkg/errors"
	"mindscape/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *appchangelog.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	changelogService := appchangelog.NewService(
		store,
		store,
		concurrency.NewKeyedLocker(),
		eventbridge.NewNoopPublisher(),
		observability.NewNoopMetrics(),
		zap.NewNop(),
	)
	return NewService(store, changelogService, zap.NewNop()), changelogService, store
}

func applyCreateNode(t *testing.T, changelogService *appchangelog.Service, workspaceID, nodeID, label string) {
	t.Helper()
	ctx := context.Background()
	change, err := changelogService.Submit(ctx, workspaceID, changelog.OpCreateNode, nodeID,
		nil, map[string]any{"type": "value", "label": label}, changelog.ActorUser, "")
	require.NoError(t, err)
	result, err := changelogService.Process(ctx, workspaceID, []string{change.ID}, appchangelog.ActionApprove, "reviewer")
	require.NoError(t, err)
	require.Equal(t, appchangelog.ItemApplied, result.Results[0].Status)
}

func TestService_ComputeGraph_EmptyScope(t *testing.T) {
	service, _, _ := newTestService(t)

	projection, err := service.ComputeGraph(context.Background(), graph.ScopeWorkspace, "ws-1")

	require.NoError(t, err)
	assert.Empty(t, projection.Nodes)
	assert.Empty(t, projection.Edges)
	assert.Equal(t, int64(0), projection.Version)
	assert.NotNil(t, projection.Overlay)
}

func TestService_ComputeGraph_ReflectsCommittedChangesOnly(t *testing.T) {
	service, changelogService, _ := newTestService(t)
	ctx := context.Background()

	applyCreateNode(t, changelogService, "ws-1", "n1", "Committed")

	// A pending change is invisible to the projection.
	_, err := changelogService.Submit(ctx, "ws-1", changelog.OpCreateNode, "n2",
		nil, map[string]any{"type": "value", "label": "Pending"}, changelog.ActorLLM, "")
	require.NoError(t, err)

	projection, err := service.ComputeGraph(ctx, graph.ScopeWorkspace, "ws-1")
	require.NoError(t, err)
	require.Len(t, projection.Nodes, 1)
	assert.Equal(t, "n1", projection.Nodes[0].ID)
	assert.Equal(t, int64(1), projection.Version)
}

func TestService_ComputeGraph_Validation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.ComputeGraph(ctx, "galaxy", "ws-1")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = service.ComputeGraph(ctx, graph.ScopeWorkspace, "")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestService_UpdateOverlay_RidesTheChangelog(t *testing.T) {
	service, changelogService, _ := newTestService(t)
	ctx := context.Background()

	version, err := service.UpdateOverlay(ctx, "ws-1", map[string]any{
		"positions": map[string]any{"n1": map[string]any{"x": 10.0, "y": 20.0, "scale": 1.0}},
	}, changelog.ActorUser, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	overlay, err := service.GetOverlay(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, graph.NodePlacement{X: 10, Y: 20, Scale: 1}, overlay.Positions["n1"])
	assert.Equal(t, int64(1), overlay.Version)

	// The edit landed as a committed history entry.
	history, err := changelogService.History(ctx, "ws-1", 0, false)
	require.NoError(t, err)
	require.Len(t, history.History, 1)
	assert.Equal(t, changelog.OpUpdateOverlay, history.History[0].Operation)
}

func TestService_UpdateOverlay_SectionsReplaceWholesale(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.UpdateOverlay(ctx, "ws-1", map[string]any{
		"positions": map[string]any{
			"n1": map[string]any{"x": 1.0, "y": 1.0, "scale": 1.0},
			"n2": map[string]any{"x": 2.0, "y": 2.0, "scale": 1.0},
		},
	}, changelog.ActorUser, "alice")
	require.NoError(t, err)

	// A second update with only n1 drops n2: present sections replace, they
	// do not merge.
	_, err = service.UpdateOverlay(ctx, "ws-1", map[string]any{
		"positions": map[string]any{"n1": map[string]any{"x": 5.0, "y": 5.0, "scale": 1.0}},
	}, changelog.ActorUser, "alice")
	require.NoError(t, err)

	overlay, err := service.GetOverlay(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, overlay.Positions, 1)
	assert.Equal(t, 5.0, overlay.Positions["n1"].X)
	assert.Equal(t, int64(2), overlay.Version)
}

func TestService_UpdateOverlay_UndoRestoresPreviousLayout(t *testing.T) {
	service, changelogService, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.UpdateOverlay(ctx, "ws-1", map[string]any{
		"collapsed": map[string]any{"n1": true},
	}, changelog.ActorUser, "alice")
	require.NoError(t, err)

	_, err = service.UpdateOverlay(ctx, "ws-1", map[string]any{
		"collapsed": map[string]any{"n1": false, "n2": true},
	}, changelog.ActorUser, "alice")
	require.NoError(t, err)

	// Undo the second edit via its history entry's change id.
	history, err := changelogService.History(ctx, "ws-1", 1, false)
	require.NoError(t, err)
	version, err := changelogService.Undo(ctx, history.History[0].ChangeID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	overlay, err := service.GetOverlay(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"n1": true}, overlay.Collapsed)
}

func TestService_UpdateOverlay_EmptyStateRejected(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.UpdateOverlay(context.Background(), "ws-1", map[string]any{}, changelog.ActorUser, "alice")
	assert.True(t, pkgerrors.IsValidation(err))
}
