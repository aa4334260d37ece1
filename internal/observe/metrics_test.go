package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"farewatch/internal/types"
)

type mockCloudWatchClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestRecordSweep(t *testing.T) {
	client := &mockCloudWatchClient{}
	m := NewSweepMetrics(client, "Farewatch/Sweeps", nil)

	m.RecordSweep(context.Background(), types.SweepSummary{
		Total:    12,
		Notified: 2,
		Noop:     9,
		Errors:   1,
		Duration: 1500 * time.Millisecond,
	})

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if got := aws.ToString(input.Namespace); got != "Farewatch/Sweeps" {
		t.Errorf("namespace = %q", got)
	}
	if len(input.MetricData) != 4 {
		t.Fatalf("expected 4 datums, got %d", len(input.MetricData))
	}

	values := map[string]float64{}
	for _, d := range input.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
	}
	if values[MetricSweepDuration] != 1500 {
		t.Errorf("%s = %v, want 1500", MetricSweepDuration, values[MetricSweepDuration])
	}
	if values[MetricWatchesSwept] != 12 {
		t.Errorf("%s = %v, want 12", MetricWatchesSwept, values[MetricWatchesSwept])
	}
	if values[MetricWatchesNotified] != 2 {
		t.Errorf("%s = %v, want 2", MetricWatchesNotified, values[MetricWatchesNotified])
	}
	if values[MetricWatchesErrored] != 1 {
		t.Errorf("%s = %v, want 1", MetricWatchesErrored, values[MetricWatchesErrored])
	}
}

func TestRecordDelivery(t *testing.T) {
	client := &mockCloudWatchClient{}
	m := NewSweepMetrics(client, "Farewatch/Sweeps", nil)

	m.RecordDelivery(context.Background(), types.SendStatusSent)

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(client.inputs))
	}
	datum := client.inputs[0].MetricData[0]
	if got := aws.ToString(datum.MetricName); got != MetricAlertDelivery {
		t.Errorf("metric name = %q", got)
	}
	if len(datum.Dimensions) != 1 {
		t.Fatalf("expected 1 dimension, got %d", len(datum.Dimensions))
	}
	if got := aws.ToString(datum.Dimensions[0].Value); got != "sent" {
		t.Errorf("Result dimension = %q", got)
	}
}

func TestRecordSweepFailureIsSwallowed(t *testing.T) {
	client := &mockCloudWatchClient{err: errors.New("throttled")}
	m := NewSweepMetrics(client, "Farewatch/Sweeps", nil)

	// Must not panic or propagate.
	m.RecordSweep(context.Background(), types.SweepSummary{})
	m.RecordDelivery(context.Background(), types.SendStatusFailed)
}
