// Package ops reports terminally failed deliveries to an operational
// alerting channel so an operator can follow up. The triggering user is
// never interrupted by exhaustion; it surfaces here instead.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExhaustedReport describes one delivery that consumed its retry budget.
type ExhaustedReport struct {
	AlertID     uuid.UUID `json:"alert_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Channel     string    `json:"channel"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	ReportedAt  int64     `json:"reported_at"`
}

// Reporter is the operational alerting channel.
type Reporter interface {
	ReportExhausted(ctx context.Context, report ExhaustedReport) error
}

// SQSConfig holds the ops queue settings.
type SQSConfig struct {
	Region   string
	QueueURL string
}

// SQSReporter publishes exhausted-delivery reports to an SQS queue
// consumed by the on-call tooling.
type SQSReporter struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewSQSReporter creates an SQS-backed reporter.
func NewSQSReporter(ctx context.Context, cfg SQSConfig, logger *zap.Logger) (*SQSReporter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("ops reporter initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &SQSReporter{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// ReportExhausted enqueues one report.
func (r *SQSReporter) ReportExhausted(ctx context.Context, report ExhaustedReport) error {
	if report.ReportedAt == 0 {
		report.ReportedAt = time.Now().Unix()
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal exhausted report: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := r.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs send failed: %w", err)
	}

	r.logger.Warn("exhausted delivery reported to ops queue",
		zap.String("alert_id", report.AlertID.String()),
		zap.String("recipient_id", report.RecipientID.String()),
		zap.String("channel", report.Channel),
		zap.Int("attempts", report.Attempts),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

// LogReporter writes reports to the log. Used when no ops queue is
// configured; the signal still lands somewhere an operator can see.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a log-backed reporter.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportExhausted(ctx context.Context, report ExhaustedReport) error {
	r.logger.Warn("exhausted delivery (no ops queue configured)",
		zap.String("alert_id", report.AlertID.String()),
		zap.String("recipient_id", report.RecipientID.String()),
		zap.String("channel", report.Channel),
		zap.Int("attempts", report.Attempts),
		zap.String("last_error", report.LastError),
	)
	return nil
}
