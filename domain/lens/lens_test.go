package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layersFor(global, workspace, session map[string]Setting) []Layer {
	layers := []Layer{{Scope: ScopeGlobal, Settings: global}}
	if workspace != nil {
		layers = append(layers, Layer{Scope: ScopeWorkspace, Settings: workspace})
	}
	if session != nil {
		layers = append(layers, Layer{Scope: ScopeSession, Settings: session})
	}
	return layers
}

func TestResolve_GlobalOnly(t *testing.T) {
	nodes := Resolve(layersFor(map[string]Setting{
		"v1": {State: StateKeep, Weight: 1.0},
		"v2": {State: StateOff, Weight: 0},
	}, nil, nil))

	require.Len(t, nodes, 2)
	assert.Equal(t, "v1", nodes[0].NodeID)
	assert.Equal(t, ScopeGlobal, nodes[0].EffectiveScope)
	assert.False(t, nodes[0].IsOverridden)
	assert.Empty(t, nodes[0].OverriddenFrom)
}

func TestResolve_SessionBeatsWorkspaceBeatsGlobal(t *testing.T) {
	nodes := Resolve(layersFor(
		map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}},
		map[string]Setting{"v1": {State: StateOff, Weight: 0}},
		map[string]Setting{"v1": {State: StateEmphasize, Weight: 2.0}},
	))

	require.Len(t, nodes, 1)
	node := nodes[0]
	assert.Equal(t, StateEmphasize, node.State)
	assert.Equal(t, 2.0, node.Weight)
	assert.Equal(t, ScopeSession, node.EffectiveScope)
	assert.True(t, node.IsOverridden)
	assert.Equal(t, ScopeWorkspace, node.OverriddenFrom)
}

func TestResolve_SessionOverridesGlobalDirectly(t *testing.T) {
	// No workspace layer defines v1, so provenance points at global.
	nodes := Resolve(layersFor(
		map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}},
		map[string]Setting{},
		map[string]Setting{"v1": {State: StateEmphasize, Weight: 2.0}},
	))

	require.Len(t, nodes, 1)
	assert.Equal(t, ScopeSession, nodes[0].EffectiveScope)
	assert.True(t, nodes[0].IsOverridden)
	assert.Equal(t, ScopeGlobal, nodes[0].OverriddenFrom)
}

func TestResolve_OverrideOnUnknownNodeReplacesImplicitDefault(t *testing.T) {
	// The node appears in no preset; the override still resolves and the
	// implicit global default is what it replaced.
	nodes := Resolve(layersFor(
		map[string]Setting{},
		map[string]Setting{"ghost": {State: StateOff, Weight: 0}},
		nil,
	))

	require.Len(t, nodes, 1)
	assert.Equal(t, StateOff, nodes[0].State)
	assert.Equal(t, ScopeWorkspace, nodes[0].EffectiveScope)
	assert.True(t, nodes[0].IsOverridden)
	assert.Equal(t, ScopeGlobal, nodes[0].OverriddenFrom)
}

func TestResolve_OverrideEqualToBaseStillCountsAsOverride(t *testing.T) {
	// Provenance tracks where the value was defined, not whether it differs.
	nodes := Resolve(layersFor(
		map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}},
		map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}},
		nil,
	))

	require.Len(t, nodes, 1)
	assert.Equal(t, ScopeWorkspace, nodes[0].EffectiveScope)
	assert.True(t, nodes[0].IsOverridden)
}

func TestResolve_SortedByNodeID(t *testing.T) {
	nodes := Resolve(layersFor(map[string]Setting{
		"zeta": DefaultSetting(), "alpha": DefaultSetting(), "mid": DefaultSetting(),
	}, nil, nil))

	require.Len(t, nodes, 3)
	assert.Equal(t, "alpha", nodes[0].NodeID)
	assert.Equal(t, "mid", nodes[1].NodeID)
	assert.Equal(t, "zeta", nodes[2].NodeID)
}

func TestContentHash_StableAndDiscriminating(t *testing.T) {
	nodes := Resolve(layersFor(map[string]Setting{
		"v1": {State: StateKeep, Weight: 1.0},
		"v2": {State: StateEmphasize, Weight: 2.0},
	}, nil, nil))

	hashA := ContentHash(nodes)
	hashB := ContentHash(nodes)
	assert.Equal(t, hashA, hashB)

	changed := Resolve(layersFor(map[string]Setting{
		"v1": {State: StateOff, Weight: 0},
		"v2": {State: StateEmphasize, Weight: 2.0},
	}, nil, nil))
	assert.NotEqual(t, hashA, ContentHash(changed))
}

func TestDefaultWeight(t *testing.T) {
	assert.Equal(t, 0.0, DefaultWeight(StateOff))
	assert.Equal(t, 1.0, DefaultWeight(StateKeep))
	assert.Equal(t, 2.0, DefaultWeight(StateEmphasize))
}

func TestSetting_Validate(t *testing.T) {
	assert.NoError(t, Setting{State: StateKeep, Weight: 1.0}.Validate())
	assert.Error(t, Setting{State: "blur", Weight: 1.0}.Validate())
	assert.Error(t, Setting{State: StateKeep, Weight: -0.5}.Validate())
}
