package lens

import (
	"sort"
	"time"
)

// ExecutionReceipt is the read-only record of one AI execution and the lens
// nodes that contributed to it. Receipts are external input to drift
// analysis; this service never writes them.
type ExecutionReceipt struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	NodeIDs    []string  `json:"node_ids"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Trend classifies how a node's trigger rate moved across the window
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// trendThreshold is the relative first-half/second-half change above which a
// node's trigger rate counts as moving.
const trendThreshold = 0.15

// NodeDrift is one node's observed trigger behaviour over the window.
type NodeDrift struct {
	NodeID       string  `json:"node_id"`
	State        State   `json:"state"`
	Weight       float64 `json:"weight"`
	TriggerCount int     `json:"trigger_count"`
	TriggerRate  float64 `json:"trigger_rate"`
	Trend        Trend   `json:"trend"`
}

// DriftReport compares configured lens weighting against observed execution
// trigger rates over a day window.
type DriftReport struct {
	ProfileID       string      `json:"profile_id"`
	WindowDays      int         `json:"window_days"`
	TotalExecutions int         `json:"total_executions"`
	Nodes           []NodeDrift `json:"nodes"`
	ComputedAt      time.Time   `json:"computed_at"`
}

// ComputeDrift builds a drift report for the configured node settings from
// the receipts inside [windowStart, now]. Only non-off nodes can trigger; the
// trend compares the first-half trigger rate against the second-half rate.
func ComputeDrift(profileID string, settings map[string]Setting, receipts []ExecutionReceipt, windowStart, now time.Time, windowDays int) *DriftReport {
	report := &DriftReport{
		ProfileID:  profileID,
		WindowDays: windowDays,
		Nodes:      []NodeDrift{},
		ComputedAt: now,
	}

	midpoint := windowStart.Add(now.Sub(windowStart) / 2)
	total := 0
	firstHalfTotal := 0
	secondHalfTotal := 0
	counts := make(map[string]int)
	firstHalf := make(map[string]int)
	secondHalf := make(map[string]int)

	for _, receipt := range receipts {
		if receipt.ExecutedAt.Before(windowStart) || receipt.ExecutedAt.After(now) {
			continue
		}
		total++
		early := receipt.ExecutedAt.Before(midpoint)
		if early {
			firstHalfTotal++
		} else {
			secondHalfTotal++
		}
		for _, nodeID := range receipt.NodeIDs {
			setting, ok := settings[nodeID]
			if !ok || setting.State == StateOff {
				continue
			}
			counts[nodeID]++
			if early {
				firstHalf[nodeID]++
			} else {
				secondHalf[nodeID]++
			}
		}
	}
	report.TotalExecutions = total

	nodeIDs := make([]string, 0, len(settings))
	for nodeID := range settings {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		setting := settings[nodeID]
		drift := NodeDrift{
			NodeID:       nodeID,
			State:        setting.State,
			Weight:       setting.Weight,
			TriggerCount: counts[nodeID],
			Trend:        TrendStable,
		}
		if total > 0 {
			drift.TriggerRate = float64(counts[nodeID]) / float64(total)
		}
		drift.Trend = classifyTrend(
			rate(firstHalf[nodeID], firstHalfTotal),
			rate(secondHalf[nodeID], secondHalfTotal),
		)
		report.Nodes = append(report.Nodes, drift)
	}
	return report
}

func rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

func classifyTrend(firstRate, secondRate float64) Trend {
	if firstRate == 0 {
		if secondRate > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	relative := (secondRate - firstRate) / firstRate
	switch {
	case relative > trendThreshold:
		return TrendIncreasing
	case relative < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
