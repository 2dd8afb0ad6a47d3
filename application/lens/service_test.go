package lens

import (
	"context"
	"testing"

	"mindscape/domain/lens"
	"mindscape/infrastructure/messaging/eventbridge"
	"mindscape/infrastructure/persistence/memory"
	pkgerrors "mindscape/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, eventbridge.NewNoopPublisher(), zap.NewNop()), store
}

func floatPtr(f float64) *float64 {
	return &f
}

// activatePresetWith snapshots the given settings as a preset and makes it the
// profile's active preset.
func activatePresetWith(t *testing.T, service *Service, profileID string, nodes map[string]lens.Setting) *lens.Preset {
	t.Helper()
	ctx := context.Background()
	sessionID := "seed-session-" + profileID
	for nodeID, setting := range nodes {
		_, err := service.SetOverride(ctx, lens.ScopeSession, sessionID, nodeID, setting.State, floatPtr(setting.Weight))
		require.NoError(t, err)
	}
	preset, err := service.SnapshotPreset(ctx, profileID, "", sessionID, "baseline", "")
	require.NoError(t, err)
	require.NoError(t, service.ActivatePreset(ctx, profileID, preset.ID))
	require.NoError(t, service.ClearSessionOverrides(ctx, sessionID))
	return preset
}

func TestService_ComputeEffectiveLens_EmptyProfile(t *testing.T) {
	service, _ := newTestService(t)

	resolved, err := service.ComputeEffectiveLens(context.Background(), "p1", "", "")

	require.NoError(t, err)
	assert.Empty(t, resolved.Nodes)
	assert.Empty(t, resolved.PresetID)
	assert.Zero(t, resolved.WorkspaceOverrideCount)
	assert.Zero(t, resolved.SessionOverrideCount)
	assert.NotEmpty(t, resolved.ContentHash)
}

func TestService_ComputeEffectiveLens_PrecedenceAndProvenance(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
		"v2": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	_, err = service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "ws1", "s1")
	require.NoError(t, err)

	assert.Equal(t, 1, resolved.WorkspaceOverrideCount)
	assert.Equal(t, 1, resolved.SessionOverrideCount)
	require.Len(t, resolved.Nodes, 2)

	v1 := resolved.Nodes[0]
	assert.Equal(t, "v1", v1.NodeID)
	assert.Equal(t, lens.StateEmphasize, v1.State)
	assert.Equal(t, 2.0, v1.Weight)
	assert.Equal(t, lens.ScopeSession, v1.EffectiveScope)
	assert.True(t, v1.IsOverridden)
	assert.Equal(t, lens.ScopeWorkspace, v1.OverriddenFrom)

	v2 := resolved.Nodes[1]
	assert.Equal(t, lens.ScopeGlobal, v2.EffectiveScope)
	assert.False(t, v2.IsOverridden)
}

func TestService_ComputeEffectiveLens_SessionOverridesGlobalDirectly(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "ws1", "s1")
	require.NoError(t, err)

	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, lens.ScopeSession, resolved.Nodes[0].EffectiveScope)
	assert.Equal(t, lens.ScopeGlobal, resolved.Nodes[0].OverriddenFrom)
}

func TestService_SetOverride_DefaultWeightPerState(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	setting, err := service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, setting.Weight)

	setting, err = service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v2", lens.StateOff, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, setting.Weight)

	setting, err = service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v3", lens.StateKeep, floatPtr(1.7))
	require.NoError(t, err)
	assert.Equal(t, 1.7, setting.Weight)
}

func TestService_SetOverride_Validation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v1", "blur", nil)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = service.SetOverride(ctx, lens.ScopeGlobal, "p1", "v1", lens.StateKeep, nil)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = service.SetOverride(ctx, lens.ScopeWorkspace, "", "v1", lens.StateKeep, nil)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestService_RemoveOverride_RevertsToLowerScope(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	require.NoError(t, service.RemoveOverride(ctx, lens.ScopeWorkspace, "ws1", "v1"))

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "ws1", "")
	require.NoError(t, err)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, lens.StateKeep, resolved.Nodes[0].State)
	assert.Equal(t, lens.ScopeGlobal, resolved.Nodes[0].EffectiveScope)
}

func TestService_ClearSessionOverrides(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	_, err = service.SetOverride(ctx, lens.ScopeSession, "s1", "v2", lens.StateEmphasize, nil)
	require.NoError(t, err)

	require.NoError(t, service.ClearSessionOverrides(ctx, "s1"))

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "", "s1")
	require.NoError(t, err)
	assert.Zero(t, resolved.SessionOverrideCount)
}

func TestService_ReplaceSessionOverrides_SwapsWholeMap(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	_, err = service.SetOverride(ctx, lens.ScopeSession, "s1", "v2", lens.StateEmphasize, nil)
	require.NoError(t, err)

	// v1 is absent from the replacement map, so its override goes away.
	err = service.ReplaceSessionOverrides(ctx, "s1", map[string]lens.Setting{
		"v2": {State: lens.StateKeep, Weight: 1.5},
		"v3": {State: lens.StateOff, Weight: 0},
	})
	require.NoError(t, err)

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, resolved.SessionOverrideCount)
	byNode := make(map[string]lens.State, len(resolved.Nodes))
	for _, node := range resolved.Nodes {
		byNode[node.NodeID] = node.State
	}
	assert.NotContains(t, byNode, "v1")
	assert.Equal(t, lens.StateKeep, byNode["v2"])
	assert.Equal(t, lens.StateOff, byNode["v3"])
}

func TestService_ReplaceSessionOverrides_Validation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	err := service.ReplaceSessionOverrides(ctx, "", nil)
	assert.True(t, pkgerrors.IsValidation(err))

	_, setErr := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateOff, nil)
	require.NoError(t, setErr)

	// An invalid setting rejects the whole request before any replacement.
	err = service.ReplaceSessionOverrides(ctx, "s1", map[string]lens.Setting{
		"v2": {State: "glow", Weight: 1.0},
	})
	assert.True(t, pkgerrors.IsValidation(err))

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolved.SessionOverrideCount)
}

func TestService_CreateChangeSet_DiffsAgainstBase(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
		"v2": {State: lens.StateKeep, Weight: 1.0},
	})
	// v1 differs from base, v2 is set back to its base value.
	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)
	_, err = service.SetOverride(ctx, lens.ScopeSession, "s1", "v2", lens.StateKeep, floatPtr(1.0))
	require.NoError(t, err)

	changeSet, err := service.CreateChangeSet(ctx, "p1", "", "s1")
	require.NoError(t, err)

	require.Len(t, changeSet.Changes, 1)
	assert.Equal(t, "v1", changeSet.Changes[0].NodeID)
	assert.Equal(t, lens.StateKeep, changeSet.Changes[0].FromState.State)
	assert.Equal(t, lens.StateEmphasize, changeSet.Changes[0].ToState.State)
	assert.False(t, changeSet.Consumed)
}

func TestService_ApplyChangeSet_Workspace(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)

	changeSet, err := service.CreateChangeSet(ctx, "p1", "ws1", "s1")
	require.NoError(t, err)

	applied, err := service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplyWorkspace, "", "")
	require.NoError(t, err)
	assert.True(t, applied.Consumed)

	// The change now lives at workspace scope and the session is clean.
	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "ws1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolved.WorkspaceOverrideCount)
	assert.Zero(t, resolved.SessionOverrideCount)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, lens.StateEmphasize, resolved.Nodes[0].State)
	assert.Equal(t, lens.ScopeWorkspace, resolved.Nodes[0].EffectiveScope)
}

func TestService_ApplyChangeSet_WorkspaceTargetRequiresWorkspace(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	changeSet, err := service.CreateChangeSet(ctx, "p1", "", "s1")
	require.NoError(t, err)

	_, err = service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplyWorkspace, "", "")
	assert.True(t, pkgerrors.IsValidation(err))

	// The rejected apply must not consume the changeset; it is still usable.
	applied, err := service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplyPreset, "", "")
	require.NoError(t, err)
	assert.True(t, applied.Consumed)
}

func TestService_ApplyChangeSet_ExplicitTargetWorkspace(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)

	// The changeset carries no workspace of its own; the caller directs the
	// promotion at apply time.
	changeSet, err := service.CreateChangeSet(ctx, "p1", "", "s1")
	require.NoError(t, err)

	_, err = service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplyWorkspace, "ws2", "")
	require.NoError(t, err)

	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "ws2", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolved.WorkspaceOverrideCount)
	assert.Zero(t, resolved.SessionOverrideCount)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, lens.StateEmphasize, resolved.Nodes[0].State)
	assert.Equal(t, lens.ScopeWorkspace, resolved.Nodes[0].EffectiveScope)
}

func TestService_ApplyChangeSet_Preset(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	original := activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)
	changeSet, err := service.CreateChangeSet(ctx, "p1", "", "s1")
	require.NoError(t, err)

	_, err = service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplyPreset, "", "tuned baseline")
	require.NoError(t, err)

	// The profile now points at a new preset carrying the promoted change.
	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "", "s1")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, resolved.PresetID)
	assert.Zero(t, resolved.SessionOverrideCount)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, lens.StateEmphasize, resolved.Nodes[0].State)
	assert.Equal(t, lens.ScopeGlobal, resolved.Nodes[0].EffectiveScope)

	promoted, err := service.GetPreset(ctx, resolved.PresetID)
	require.NoError(t, err)
	assert.Equal(t, "tuned baseline", promoted.Name)
}

func TestService_ApplyChangeSet_ConsumedExactlyOnce(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetOverride(ctx, lens.ScopeSession, "s1", "v1", lens.StateOff, nil)
	require.NoError(t, err)
	changeSet, err := service.CreateChangeSet(ctx, "p1", "", "s1")
	require.NoError(t, err)

	_, err = service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplySessionOnly, "", "")
	require.NoError(t, err)

	_, err = service.ApplyChangeSet(ctx, changeSet.ID, lens.ApplySessionOnly, "", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsState(err))
}

func TestService_SnapshotPreset_CapturesEffectiveState(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	activatePresetWith(t, service, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
		"v2": {State: lens.StateKeep, Weight: 1.0},
	})
	_, err := service.SetOverride(ctx, lens.ScopeWorkspace, "ws1", "v1", lens.StateEmphasize, nil)
	require.NoError(t, err)

	preset, err := service.SnapshotPreset(ctx, "p1", "ws1", "", "with emphasis", "snapshot for review")
	require.NoError(t, err)

	assert.Equal(t, "with emphasis", preset.Name)
	assert.Equal(t, lens.Setting{State: lens.StateEmphasize, Weight: 2.0}, preset.Nodes["v1"])
	assert.Equal(t, lens.Setting{State: lens.StateKeep, Weight: 1.0}, preset.Nodes["v2"])

	// Snapshotting does not activate; the original preset stays active.
	resolved, err := service.ComputeEffectiveLens(ctx, "p1", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, preset.ID, resolved.PresetID)
}

func TestService_ActivatePreset_UnknownPreset(t *testing.T) {
	service, _ := newTestService(t)

	err := service.ActivatePreset(context.Background(), "p1", "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}
