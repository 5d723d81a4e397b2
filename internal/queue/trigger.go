// Package queue provides the SQS producer that hands completed report
// purchases to the report worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"zoneatlas/internal/config"
	"zoneatlas/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReportTrigger enqueues report jobs onto the report queue. The worker
// is idempotent, so enqueueing the same purchase more than once (e.g.
// on a replayed webhook) is harmless.
type ReportTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReportTrigger creates a ReportTrigger reading the queue URL from
// the AWS configuration.
func NewReportTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ReportTrigger {
	return &ReportTrigger{
		client:   client,
		queueURL: awsCfg.ReportQueueURL,
		logger:   logger,
	}
}

// EnqueueReport serializes a ReportJob for the purchase and sends it to
// the report queue. source describes what triggered the job (e.g.
// "stripe_webhook", "ops_requeue") and rides along as a message
// attribute for queue-side filtering.
func (t *ReportTrigger) EnqueueReport(ctx context.Context, purchaseID uuid.UUID, source string) error {
	job := types.ReportJob{
		PurchaseID: purchaseID,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ReportJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(source),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ReportJob to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "report job enqueued",
		"queue_url", t.queueURL,
		"purchase_id", purchaseID.String(),
		"source", source,
	)

	return nil
}
