package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes operational metrics to CloudWatch. A Metrics with a nil
// client is a no-op, which is what development and tests run with.
type Metrics struct {
	client    *cloudwatch.Client
	namespace string
	logger    *zap.Logger
}

// NewMetrics creates a CloudWatch-backed metrics publisher
func NewMetrics(namespace string, client *cloudwatch.Client, logger *zap.Logger) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// NewNoopMetrics creates a metrics publisher that records nothing
func NewNoopMetrics() *Metrics {
	return &Metrics{}
}

// RecordChangeOutcome counts one processed changelog item by action and
// outcome (applied, rejected, conflict, error).
func (m *Metrics) RecordChangeOutcome(ctx context.Context, action, outcome string) {
	m.put(ctx, "ChangelogItems", 1, types.StandardUnitCount, map[string]string{
		"Action":  action,
		"Outcome": outcome,
	})
}

// RecordApplyLatency records how long one apply took inside the write
// critical section.
func (m *Metrics) RecordApplyLatency(ctx context.Context, operation string, d time.Duration) {
	m.put(ctx, "ApplyLatency", float64(d.Milliseconds()), types.StandardUnitMilliseconds, map[string]string{
		"Operation": operation,
	})
}

// RecordUndoOutcome counts one undo attempt by outcome.
func (m *Metrics) RecordUndoOutcome(ctx context.Context, outcome string) {
	m.put(ctx, "UndoAttempts", 1, types.StandardUnitCount, map[string]string{
		"Outcome": outcome,
	})
}

func (m *Metrics) put(ctx context.Context, name string, value float64, unit types.StandardUnit, dims map[string]string) {
	if m.client == nil {
		return
	}

	dimensions := make([]types.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("Failed to publish metric",
			zap.String("metric", name),
			zap.Error(err),
		)
	}
}
