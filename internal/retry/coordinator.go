// Package retry re-attempts failed deliveries on a schedule that is
// independent of the triggering request. All resume state lives in the
// ledger, so a coordinator restart loses nothing and two coordinators
// running at once degrade to at-least-once, never to silence.
package retry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/ledger"
	"github.com/Art-555/CallOut/internal/metrics"
	"github.com/Art-555/CallOut/internal/ops"
)

// Ledger is the slice of the delivery ledger the coordinator needs.
type Ledger interface {
	ListRetryable(ctx context.Context, limit int) ([]*ledger.RetryableDelivery, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*ledger.RetryableDelivery, error)
	MarkSent(ctx context.Context, alertID, recipientID uuid.UUID, attempt int) error
	MarkFailed(ctx context.Context, alertID, recipientID uuid.UUID, attempt int, sendErr string, nextRetryAt time.Time) error
	MarkExhausted(ctx context.Context, alertID, recipientID uuid.UUID, attempt int, sendErr string) error
}

// Deliverer performs one channel attempt without recording it.
type Deliverer interface {
	Deliver(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error
}

// Config tunes the coordinator.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	// PendingGrace is how long a row may sit pending before the
	// coordinator claims it. Long enough that an in-flight initial
	// attempt (bounded by its attempt timeout) cannot still own the row.
	PendingGrace time.Duration
}

// Coordinator polls the ledger for due failed rows and re-attempts them.
type Coordinator struct {
	ledger    Ledger
	deliverer Deliverer
	reporter  ops.Reporter
	config    Config
	logger    *zap.Logger
}

// New creates a coordinator.
func New(l Ledger, d Deliverer, r ops.Reporter, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Minute
	}
	if cfg.PendingGrace <= 0 {
		cfg.PendingGrace = 2 * time.Minute
	}

	return &Coordinator{
		ledger:    l,
		deliverer: d,
		reporter:  r,
		config:    cfg,
		logger:    logger,
	}
}

// Start runs the polling loop until the context is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	c.logger.Info("retry coordinator started",
		zap.Duration("poll_interval", c.config.PollInterval),
		zap.Int("max_attempts", c.config.MaxAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retry coordinator stopping")
			return
		case <-ticker.C:
			c.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch retries every due failed row once, then sweeps up rows
// stranded in pending past the grace period (a crash between alert
// creation and the first attempt's outcome leaves rows this way; so
// does a lost ledger write after the attempt). Exported so tests can
// drive ticks directly.
func (c *Coordinator) ProcessBatch(ctx context.Context) {
	due, err := c.ledger.ListRetryable(ctx, c.config.BatchSize)
	if err != nil {
		c.logger.Error("failed to list retryable deliveries", zap.Error(err))
		return
	}

	for _, item := range due {
		c.retryOne(ctx, item.Alert, item.Recipient)
	}

	stale, err := c.ledger.ListStalePending(ctx, c.config.PendingGrace, c.config.BatchSize)
	if err != nil {
		c.logger.Error("failed to list stale pending deliveries", zap.Error(err))
		return
	}

	for _, item := range stale {
		c.logger.Warn("reclaiming delivery stranded in pending",
			zap.String("alert_id", item.Alert.ID.String()),
			zap.String("recipient_id", item.Recipient.RecipientID.String()),
			zap.String("channel", item.Recipient.Channel),
		)
		c.retryOne(ctx, item.Alert, item.Recipient)
	}
}

func (c *Coordinator) retryOne(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) {
	attempt := rcpt.Attempts + 1
	metrics.RecordRetry(rcpt.Channel)

	sendErr := c.deliverer.Deliver(ctx, alert, rcpt)
	if sendErr == nil {
		metrics.RecordDelivery(rcpt.Channel, "sent")
		metrics.RecordDeliveryLatency(rcpt.Channel, time.Since(alert.CreatedAt))
		if err := c.ledger.MarkSent(ctx, alert.ID, rcpt.RecipientID, attempt); err != nil {
			c.logger.Error("failed to mark retry sent",
				zap.Error(err),
				zap.String("alert_id", alert.ID.String()),
				zap.String("recipient_id", rcpt.RecipientID.String()),
			)
		}
		c.logger.Info("retry delivered",
			zap.String("alert_id", alert.ID.String()),
			zap.String("recipient_id", rcpt.RecipientID.String()),
			zap.Int("attempt", attempt),
		)
		return
	}

	c.logger.Warn("retry attempt failed",
		zap.Error(sendErr),
		zap.String("alert_id", alert.ID.String()),
		zap.String("recipient_id", rcpt.RecipientID.String()),
		zap.String("channel", rcpt.Channel),
		zap.Int("attempt", attempt),
	)

	if attempt >= c.config.MaxAttempts {
		metrics.RecordExhausted(rcpt.Channel)
		if err := c.ledger.MarkExhausted(ctx, alert.ID, rcpt.RecipientID, attempt, sendErr.Error()); err != nil {
			c.logger.Error("failed to mark delivery exhausted",
				zap.Error(err),
				zap.String("alert_id", alert.ID.String()),
				zap.String("recipient_id", rcpt.RecipientID.String()),
			)
			return
		}

		report := ops.ExhaustedReport{
			AlertID:     alert.ID,
			RecipientID: rcpt.RecipientID,
			Channel:     rcpt.Channel,
			Attempts:    attempt,
			LastError:   sendErr.Error(),
		}
		if err := c.reporter.ReportExhausted(ctx, report); err != nil {
			c.logger.Error("failed to report exhausted delivery", zap.Error(err))
		}
		return
	}

	nextRetry := time.Now().Add(Backoff(c.config.BackoffBase, c.config.BackoffMax, attempt))
	if err := c.ledger.MarkFailed(ctx, alert.ID, rcpt.RecipientID, attempt, sendErr.Error(), nextRetry); err != nil {
		c.logger.Error("failed to reschedule delivery",
			zap.Error(err),
			zap.String("alert_id", alert.ID.String()),
			zap.String("recipient_id", rcpt.RecipientID.String()),
		)
	}
}

// Backoff returns the delay after attempt n: base doubled per attempt,
// capped at max. Attempt 1 waits base, attempt 2 waits 2*base, and so on.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
