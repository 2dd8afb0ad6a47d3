package changelog

import (
	"testing"

	pkgerrors "mindscape/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to applied", StatusPending, StatusApplied, true},
		{"pending to rejected", StatusPending, StatusRejected, true},
		{"pending to undone", StatusPending, StatusUndone, false},
		{"applied to undone", StatusApplied, StatusUndone, true},
		{"applied to rejected", StatusApplied, StatusRejected, false},
		{"rejected is terminal", StatusRejected, StatusApplied, false},
		{"undone is terminal", StatusUndone, StatusApplied, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNewPendingChange_Success(t *testing.T) {
	change, err := NewPendingChange("ws-1", OpCreateNode, "node-1",
		nil, map[string]any{"title": "A"}, ActorUser, "manual edit")

	require.NoError(t, err)
	assert.NotEmpty(t, change.ID)
	assert.Equal(t, "ws-1", change.WorkspaceID)
	assert.Equal(t, StatusPending, change.Status)
	assert.Equal(t, TargetNode, change.TargetType)
	assert.Zero(t, change.Version)
	assert.False(t, change.CreatedAt.IsZero())
}

func TestNewPendingChange_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func() (*PendingChange, error)
	}{
		{"empty workspace", func() (*PendingChange, error) {
			return NewPendingChange("", OpCreateNode, "n", nil, map[string]any{"a": 1}, ActorUser, "")
		}},
		{"unknown operation", func() (*PendingChange, error) {
			return NewPendingChange("ws", "rename_node", "n", nil, map[string]any{"a": 1}, ActorUser, "")
		}},
		{"empty target", func() (*PendingChange, error) {
			return NewPendingChange("ws", OpCreateNode, "", nil, map[string]any{"a": 1}, ActorUser, "")
		}},
		{"unknown actor", func() (*PendingChange, error) {
			return NewPendingChange("ws", OpCreateNode, "n", nil, map[string]any{"a": 1}, "robot", "")
		}},
		{"update without before_state", func() (*PendingChange, error) {
			return NewPendingChange("ws", OpUpdateNode, "n", nil, map[string]any{"a": 1}, ActorUser, "")
		}},
		{"create without after_state", func() (*PendingChange, error) {
			return NewPendingChange("ws", OpCreateNode, "n", nil, nil, ActorUser, "")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := tt.mutate()
			assert.Nil(t, change)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestNewPendingChange_DeleteNeedsNoAfterState(t *testing.T) {
	change, err := NewPendingChange("ws-1", OpDeleteNode, "node-1",
		map[string]any{"title": "A"}, nil, ActorLLM, "cleanup")

	require.NoError(t, err)
	assert.Nil(t, change.AfterState)
}

func TestStateMatches_SubsetSemantics(t *testing.T) {
	committed := map[string]any{
		"title":  "Deploy service",
		"status": "active",
		"weight": 2,
	}

	// Only the fields present in before constrain the match.
	assert.True(t, StateMatches(map[string]any{"title": "Deploy service"}, committed))
	assert.True(t, StateMatches(map[string]any{"status": "active", "weight": 2}, committed))
	assert.True(t, StateMatches(nil, committed))

	assert.False(t, StateMatches(map[string]any{"title": "Old title"}, committed))
	assert.False(t, StateMatches(map[string]any{"missing": "x"}, committed))
}

func TestStateMatches_NumericNormalization(t *testing.T) {
	// An int that arrived from the wire decodes as float64; normalization
	// must make the two representations compare equal.
	committed := map[string]any{"weight": 2}
	before := map[string]any{"weight": float64(2)}

	assert.True(t, StateMatches(before, committed))
}

func TestStateMatches_NestedValues(t *testing.T) {
	committed := map[string]any{
		"positions": map[string]any{"n1": map[string]any{"x": 10, "y": 20}},
	}

	assert.True(t, StateMatches(map[string]any{
		"positions": map[string]any{"n1": map[string]any{"x": 10, "y": 20}},
	}, committed))
	assert.False(t, StateMatches(map[string]any{
		"positions": map[string]any{"n1": map[string]any{"x": 11, "y": 20}},
	}, committed))
}
