package report

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"zoneatlas/internal/types"
)

// Metric and dimension names for report pipeline telemetry.
const (
	metricPipelineStep     = "ReportPipelineStep"
	metricPipelineDuration = "ReportPipelineDuration"
	dimStep                = "Step"
	dimResult              = "Result"
)

// StepResult classifies one pipeline step outcome for metrics.
type StepResult string

const (
	StepSuccess StepResult = "success"
	StepFailure StepResult = "failure"
	StepSkipped StepResult = "skipped"
)

// Metrics records pipeline step outcomes. The no-op implementation is
// used in tests and local runs without AWS credentials.
type Metrics interface {
	RecordStep(ctx context.Context, step string, result StepResult)
	RecordDuration(ctx context.Context, duration time.Duration)
}

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes report pipeline metrics to CloudWatch.
// Metric failures are logged and swallowed: telemetry must never fail
// a report delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the
// given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordStep emits one ReportPipelineStep datum with Step and Result
// dimensions.
func (m *CloudWatchMetrics) RecordStep(ctx context.Context, step string, result StepResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricPipelineStep),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimStep), Value: aws.String(step)},
					{Name: aws.String(dimResult), Value: aws.String(string(result))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record pipeline step metric",
			"error", err.Error(),
			"step", step,
			"result", string(result),
		)
	}
}

// RecordDuration emits the end-to-end pipeline duration in milliseconds.
func (m *CloudWatchMetrics) RecordDuration(ctx context.Context, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricPipelineDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record pipeline duration metric",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// NopMetrics discards all metric data.
type NopMetrics struct{}

func (NopMetrics) RecordStep(context.Context, string, StepResult) {}
func (NopMetrics) RecordDuration(context.Context, time.Duration)  {}
