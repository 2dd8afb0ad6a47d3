package lens

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptsAt(profileID string, nodeIDs []string, times ...time.Time) []ExecutionReceipt {
	receipts := make([]ExecutionReceipt, 0, len(times))
	for i, ts := range times {
		receipts = append(receipts, ExecutionReceipt{
			ID:         fmt.Sprintf("r-%d", i),
			ProfileID:  profileID,
			NodeIDs:    nodeIDs,
			ExecutedAt: ts,
		})
	}
	return receipts
}

func TestComputeDrift_TriggerRates(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	windowStart := now.AddDate(0, 0, -30)
	settings := map[string]Setting{
		"v1": {State: StateKeep, Weight: 1.0},
		"v2": {State: StateOff, Weight: 0},
	}

	receipts := append(
		receiptsAt("p1", []string{"v1"}, now.AddDate(0, 0, -20), now.AddDate(0, 0, -5)),
		receiptsAt("p1", []string{"v2"}, now.AddDate(0, 0, -10))...,
	)

	report := ComputeDrift("p1", settings, receipts, windowStart, now, 30)

	assert.Equal(t, 3, report.TotalExecutions)
	require.Len(t, report.Nodes, 2)

	v1 := report.Nodes[0]
	assert.Equal(t, "v1", v1.NodeID)
	assert.Equal(t, 2, v1.TriggerCount)
	assert.InDelta(t, 2.0/3.0, v1.TriggerRate, 1e-9)

	// Off nodes never count as triggered even when referenced.
	v2 := report.Nodes[1]
	assert.Equal(t, 0, v2.TriggerCount)
	assert.Equal(t, 0.0, v2.TriggerRate)
}

func TestComputeDrift_ReceiptsOutsideWindowIgnored(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	windowStart := now.AddDate(0, 0, -7)
	settings := map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}}

	receipts := receiptsAt("p1", []string{"v1"},
		now.AddDate(0, 0, -30), // before the window
		now.AddDate(0, 0, -3),
	)

	report := ComputeDrift("p1", settings, receipts, windowStart, now, 7)

	assert.Equal(t, 1, report.TotalExecutions)
	assert.Equal(t, 1, report.Nodes[0].TriggerCount)
}

func TestComputeDrift_TrendClassification(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	windowStart := now.AddDate(0, 0, -30)
	settings := map[string]Setting{
		"rising":  {State: StateKeep, Weight: 1.0},
		"falling": {State: StateKeep, Weight: 1.0},
		"flat":    {State: StateKeep, Weight: 1.0},
	}

	firstHalf := now.AddDate(0, 0, -25)
	secondHalf := now.AddDate(0, 0, -5)

	var receipts []ExecutionReceipt
	// Both halves have 4 executions each. rising: 1 -> 4, falling: 4 -> 1,
	// flat: 2 -> 2.
	receipts = append(receipts, receiptsAt("p1", []string{"rising", "falling", "flat"}, firstHalf)...)
	receipts = append(receipts, receiptsAt("p1", []string{"falling", "flat"}, firstHalf)...)
	receipts = append(receipts, receiptsAt("p1", []string{"falling"}, firstHalf, firstHalf)...)
	receipts = append(receipts, receiptsAt("p1", []string{"rising", "falling", "flat"}, secondHalf)...)
	receipts = append(receipts, receiptsAt("p1", []string{"rising", "flat"}, secondHalf)...)
	receipts = append(receipts, receiptsAt("p1", []string{"rising"}, secondHalf, secondHalf)...)

	report := ComputeDrift("p1", settings, receipts, windowStart, now, 30)

	trends := map[string]Trend{}
	for _, node := range report.Nodes {
		trends[node.NodeID] = node.Trend
	}
	assert.Equal(t, TrendIncreasing, trends["rising"])
	assert.Equal(t, TrendDecreasing, trends["falling"])
	assert.Equal(t, TrendStable, trends["flat"])
}

func TestComputeDrift_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	settings := map[string]Setting{"v1": {State: StateKeep, Weight: 1.0}}

	report := ComputeDrift("p1", settings, nil, now.AddDate(0, 0, -30), now, 30)

	assert.Equal(t, 0, report.TotalExecutions)
	require.Len(t, report.Nodes, 1)
	assert.Equal(t, 0.0, report.Nodes[0].TriggerRate)
	assert.Equal(t, TrendStable, report.Nodes[0].Trend)
}
