package evidence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mindscape/domain/lens"
	"mindscape/infrastructure/persistence/memory"
	pkgerrors "mindscape/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, store, zap.NewNop()), store
}

func savePreset(t *testing.T, store *memory.Store, profileID string, nodes map[string]lens.Setting) *lens.Preset {
	t.Helper()
	preset, err := lens.NewPreset(profileID, "preset", "", nodes)
	require.NoError(t, err)
	require.NoError(t, store.SavePreset(context.Background(), preset))
	return preset
}

func activatePreset(t *testing.T, store *memory.Store, profileID, presetID string) {
	t.Helper()
	ctx := context.Background()
	profile, err := store.GetOrCreateProfile(ctx, profileID)
	require.NoError(t, err)
	profile.ActivePresetID = presetID
	require.NoError(t, store.SaveProfile(ctx, profile))
}

func TestService_DiffPresets(t *testing.T) {
	service, store := newTestService(t)

	from := savePreset(t, store, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
		"v2": {State: lens.StateKeep, Weight: 1.0},
	})
	to := savePreset(t, store, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateEmphasize, Weight: 2.0},
		"v2": {State: lens.StateOff, Weight: 0},
	})

	diff, err := service.DiffPresets(context.Background(), from.ID, to.ID)

	require.NoError(t, err)
	assert.Equal(t, from.ID, diff.FromPresetID)
	assert.Equal(t, to.ID, diff.ToPresetID)
	assert.Equal(t, 1, diff.Counts[lens.DiffStrengthened])
	assert.Equal(t, 1, diff.Counts[lens.DiffDisabled])
}

func TestService_DiffPresets_UnknownPreset(t *testing.T) {
	service, store := newTestService(t)
	known := savePreset(t, store, "p1", nil)

	_, err := service.DiffPresets(context.Background(), known.ID, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = service.DiffPresets(context.Background(), "", known.ID)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestService_DriftReport(t *testing.T) {
	service, store := newTestService(t)

	preset := savePreset(t, store, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
		"v2": {State: lens.StateEmphasize, Weight: 2.0},
	})
	activatePreset(t, store, "p1", preset.ID)

	now := time.Now().UTC()
	receipts := make([]lens.ExecutionReceipt, 0, 4)
	for i := 0; i < 4; i++ {
		nodeIDs := []string{"v1"}
		if i%2 == 0 {
			nodeIDs = append(nodeIDs, "v2")
		}
		receipts = append(receipts, lens.ExecutionReceipt{
			ID:         fmt.Sprintf("r-%d", i),
			ProfileID:  "p1",
			NodeIDs:    nodeIDs,
			ExecutedAt: now.AddDate(0, 0, -i-1),
		})
	}
	store.SeedReceipts("p1", receipts)

	report, err := service.DriftReport(context.Background(), "p1", 7)

	require.NoError(t, err)
	assert.Equal(t, 7, report.WindowDays)
	assert.Equal(t, 4, report.TotalExecutions)
	require.Len(t, report.Nodes, 2)
	assert.Equal(t, 4, report.Nodes[0].TriggerCount)
	assert.Equal(t, 1.0, report.Nodes[0].TriggerRate)
	assert.Equal(t, 2, report.Nodes[1].TriggerCount)
	assert.Equal(t, 0.5, report.Nodes[1].TriggerRate)
}

func TestService_DriftReport_DefaultWindow(t *testing.T) {
	service, _ := newTestService(t)

	report, err := service.DriftReport(context.Background(), "p1", 0)

	require.NoError(t, err)
	assert.Equal(t, 30, report.WindowDays)
	assert.Zero(t, report.TotalExecutions)
	assert.Empty(t, report.Nodes)
}

func TestService_DriftReport_ReceiptsOutsideWindowExcluded(t *testing.T) {
	service, store := newTestService(t)

	preset := savePreset(t, store, "p1", map[string]lens.Setting{
		"v1": {State: lens.StateKeep, Weight: 1.0},
	})
	activatePreset(t, store, "p1", preset.ID)

	now := time.Now().UTC()
	store.SeedReceipts("p1", []lens.ExecutionReceipt{
		{ID: "old", ProfileID: "p1", NodeIDs: []string{"v1"}, ExecutedAt: now.AddDate(0, 0, -40)},
		{ID: "recent", ProfileID: "p1", NodeIDs: []string{"v1"}, ExecutedAt: now.AddDate(0, 0, -2)},
	})

	report, err := service.DriftReport(context.Background(), "p1", 7)

	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalExecutions)
	assert.Equal(t, 1, report.Nodes[0].TriggerCount)
}
