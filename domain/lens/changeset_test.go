package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChangeSet_BundlesOnlyRealDifferences(t *testing.T) {
	base := map[string]Setting{
		"v1": {State: StateKeep, Weight: 1.0},
		"v2": {State: StateKeep, Weight: 1.0},
	}
	session := map[string]Setting{
		"v1": {State: StateEmphasize, Weight: 2.0}, // differs
		"v2": {State: StateKeep, Weight: 1.0},      // equal to base, dropped
		"v3": {State: StateOff, Weight: 0},         // differs from implicit default
	}

	changeSet := NewChangeSet("p1", "s1", "ws1", base, session)

	require.Len(t, changeSet.Changes, 2)
	assert.Equal(t, "v1", changeSet.Changes[0].NodeID)
	assert.Equal(t, "v3", changeSet.Changes[1].NodeID)
	assert.Equal(t, DefaultSetting(), changeSet.Changes[1].FromState)
	assert.False(t, changeSet.Consumed)
	assert.Contains(t, changeSet.Summary, "2 change(s)")
}

func TestNewChangeSet_NoSessionChanges(t *testing.T) {
	changeSet := NewChangeSet("p1", "s1", "", map[string]Setting{}, map[string]Setting{})

	assert.Empty(t, changeSet.Changes)
	assert.Equal(t, "no changes", changeSet.Summary)
}

func TestApplyTarget_Valid(t *testing.T) {
	assert.True(t, ApplySessionOnly.Valid())
	assert.True(t, ApplyWorkspace.Valid())
	assert.True(t, ApplyPreset.Valid())
	assert.False(t, ApplyTarget("profile").Valid())
}
