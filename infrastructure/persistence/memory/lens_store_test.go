package memory

import (
	"context"
	"testing"

	"mindscape/domain/lens"
	pkgerrors "mindscape/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreateProfile(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	profile, err := store.GetOrCreateProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", profile.ID)
	assert.Empty(t, profile.ActivePresetID)

	profile.ActivePresetID = "preset-1"
	require.NoError(t, store.SaveProfile(ctx, profile))

	again, err := store.GetOrCreateProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "preset-1", again.ActivePresetID)
}

func TestStore_Overrides_SetRemoveClear(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	setting := lens.Setting{State: lens.StateOff, Weight: 0}

	require.NoError(t, store.SetWorkspaceOverride(ctx, "ws1", "v1", setting))
	require.NoError(t, store.SetSessionOverride(ctx, "s1", "v1", setting))
	require.NoError(t, store.SetSessionOverride(ctx, "s1", "v2", setting))

	workspace, err := store.WorkspaceOverrides(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(t, workspace, 1)

	require.NoError(t, store.RemoveWorkspaceOverride(ctx, "ws1", "v1"))
	// Removing an absent override is a no-op, not an error.
	require.NoError(t, store.RemoveWorkspaceOverride(ctx, "ws1", "v1"))

	require.NoError(t, store.ClearSessionOverrides(ctx, "s1"))
	session, err := store.SessionOverrides(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, session)
}

func TestStore_ConsumeChangeSet_ExactlyOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	changeSet := lens.NewChangeSet("p1", "s1", "", nil, map[string]lens.Setting{
		"v1": {State: lens.StateOff, Weight: 0},
	})
	require.NoError(t, store.SaveChangeSet(ctx, changeSet))

	require.NoError(t, store.ConsumeChangeSet(ctx, changeSet.ID))

	err := store.ConsumeChangeSet(ctx, changeSet.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsState(err))

	stored, err := store.GetChangeSet(ctx, changeSet.ID)
	require.NoError(t, err)
	assert.True(t, stored.Consumed)

	err = store.ConsumeChangeSet(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_SavePreset_Immutable(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	preset, err := lens.NewPreset("p1", "baseline", "", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	require.NoError(t, err)
	require.NoError(t, store.SavePreset(ctx, preset))

	err = store.SavePreset(ctx, preset)
	assert.True(t, pkgerrors.IsConflict(err))

	stored, err := store.GetPreset(ctx, preset.ID)
	require.NoError(t, err)
	assert.Equal(t, "baseline", stored.Name)
}
