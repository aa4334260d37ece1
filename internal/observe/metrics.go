// Package observe emits operational metrics for sweep runs and alert
// delivery to AWS CloudWatch.
package observe

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"farewatch/internal/types"
)

// Metric names published under the configured namespace.
const (
	MetricSweepDuration   = "SweepDuration"
	MetricWatchesSwept    = "WatchesSwept"
	MetricWatchesNotified = "WatchesNotified"
	MetricWatchesErrored  = "WatchesErrored"
	MetricAlertDelivery   = "AlertDelivery"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses *cloudwatch.Client from aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// SweepMetrics publishes per-sweep aggregates to CloudWatch. Emission is
// best effort: a metrics failure is logged, never propagated.
type SweepMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewSweepMetrics creates a SweepMetrics publisher for the given namespace.
func NewSweepMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *SweepMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordSweep emits the duration and outcome counts of one completed sweep
// in a single PutMetricData call.
func (m *SweepMetrics) RecordSweep(ctx context.Context, summary types.SweepSummary) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricSweepDuration),
				Value:      aws.Float64(float64(summary.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
			{
				MetricName: aws.String(MetricWatchesSwept),
				Value:      aws.Float64(float64(summary.Total)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(MetricWatchesNotified),
				Value:      aws.Float64(float64(summary.Notified)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(MetricWatchesErrored),
				Value:      aws.Float64(float64(summary.Errors)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to record sweep metrics", "error", err)
	}
}

// RecordDelivery emits one AlertDelivery datum with a Result dimension
// ("sent", "failed", "skipped").
func (m *SweepMetrics) RecordDelivery(ctx context.Context, status types.SendStatus) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricAlertDelivery),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String("Result"),
						Value: aws.String(string(status)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to record delivery metric", "error", err)
	}
}
