// Package main is the entrypoint for the Report Worker Lambda function.
//
// The worker consumes report jobs from the report SQS queue and drives
// each purchase through the delivery pipeline (zoning fetch, PDF
// render, email send). It uses the SQS Lambda handler pattern with
// partial batch responses: jobs that fail processing are returned in
// batchItemFailures so SQS redelivers only those messages, and the
// pipeline resumes each purchase from its stored state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"zoneatlas/internal/config"
	"zoneatlas/internal/db"
	"zoneatlas/internal/external"
	"zoneatlas/internal/report"
	"zoneatlas/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger
// interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Handler holds the dependencies for the report worker Lambda handler.
type Handler struct {
	pipeline *report.Pipeline
	logger   types.Logger
}

// Handle processes an SQS event containing one or more report jobs.
// Each job is processed independently; failures are reported through
// partial batch responses so SQS retries only the failed messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process report job",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage runs the pipeline for a single report job.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var job types.ReportJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		h.logger.Error("failed to unmarshal report job",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure, do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"purchase_id", job.PurchaseID.String(),
		"source", job.Source,
	)
	logger.Info("processing report job",
		"queue_lag_seconds", int(time.Since(job.EnqueuedAt).Seconds()),
	)

	return h.pipeline.Process(ctx, job.PurchaseID)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("report worker initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	zoningRepo := db.NewZoningRepo(pool, typedLogger)
	purchaseRepo := db.NewPurchaseRepo(pool)

	emailClient := external.NewSendGridClient(
		&http.Client{Timeout: 15 * time.Second},
		external.SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey.Value(),
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      typedLogger,
		},
	)

	renderer := report.NewChromeRenderer(cfg.Report.ChromePath, cfg.Report.RenderTimeout, typedLogger)
	metrics := report.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, typedLogger)
	policy := report.NewPolicy(cfg.Report.MaxAttempts, cfg.Report.RetryDelay)

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 15 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Value(),
			Logger:    typedLogger,
		},
	)

	pipeline := report.NewPipeline(purchaseRepo, zoningRepo, renderer, emailClient, metrics, policy, typedLogger).
		WithSessionResolver(stripeClient)
	if !cfg.Maps.GoogleMapsAPIKey.IsEmpty() {
		geocoder := external.NewGeocodeClient(
			&http.Client{Timeout: cfg.Maps.GeocodeTimeout},
			external.GeocodeClientConfig{
				APIKey: cfg.Maps.GoogleMapsAPIKey.Value(),
				Logger: typedLogger,
			},
		)
		pipeline = pipeline.WithAddressResolver(geocoder)
	}

	handler := &Handler{pipeline: pipeline, logger: typedLogger}

	logger.Info("report worker initialized",
		"report_queue", cfg.AWS.ReportQueueURL,
		"metric_namespace", cfg.AWS.MetricNamespace,
		"max_attempts", cfg.Report.MaxAttempts,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting
	// the Lambda runtime. Enables integration testing without the RIE.
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal feeds one stdin-supplied SQS event through the handler.
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("local mode: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse SQS event", "error", err)
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler error", "error", err)
		os.Exit(1)
	}
	if len(response.BatchItemFailures) > 0 {
		logger.Error("some jobs failed", "failed", len(response.BatchItemFailures))
		os.Exit(1)
	}

	fmt.Println("all jobs processed")
}
