package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/metrics"
)

// ErrDispatchAborted signals a systemic failure: the ledger could not
// record the alert, so no deliveries were attempted. Per-recipient
// failures never produce this error.
var ErrDispatchAborted = errors.New("dispatch aborted")

// Ledger is the slice of the delivery ledger the dispatcher needs.
type Ledger interface {
	CreateAlert(ctx context.Context, alert *db.Alert) error
	MarkSent(ctx context.Context, alertID, recipientID uuid.UUID, attempt int) error
	MarkFailed(ctx context.Context, alertID, recipientID uuid.UUID, attempt int, sendErr string, nextRetryAt time.Time) error
}

// Config tunes the fan-out.
type Config struct {
	// Parallelism bounds concurrent channel attempts per alert.
	Parallelism int
	// AttemptTimeout caps a single channel attempt; an attempt that
	// exceeds it counts as failed.
	AttemptTimeout time.Duration
	// RetryBase is the delay before the first retry of a failed row.
	RetryBase time.Duration
}

// Summary counts the outcomes of an initial fan-out.
type Summary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher records an alert in the ledger and fans it out to all
// recipients with bounded parallelism. One recipient's failure never
// blocks or fails another's delivery.
type Dispatcher struct {
	ledger Ledger
	sender Sender
	config Config
	logger *zap.Logger
}

// New creates a dispatcher.
func New(ledger Ledger, sender Sender, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}

	return &Dispatcher{
		ledger: ledger,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Dispatch binds the resolved recipients to the alert, records it, and
// performs the first delivery attempt for every recipient. The call
// returns once initial attempts finish; retries happen in the
// background against the ledger.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *db.Alert, recipients []*db.Recipient) (Summary, error) {
	alert.Recipients = bindRecipients(alert.ID, recipients)

	if err := d.ledger.CreateAlert(ctx, alert); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrDispatchAborted, err)
	}

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, d.config.Parallelism)

	for _, rcpt := range alert.Recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(rcpt *db.RecipientDelivery) {
			defer wg.Done()
			defer func() { <-sem }()

			err := d.Deliver(ctx, alert, rcpt)

			mu.Lock()
			if err != nil {
				summary.Failed++
			} else {
				summary.Sent++
			}
			mu.Unlock()

			d.record(ctx, alert, rcpt, 1, err)
		}(rcpt)
	}

	wg.Wait()

	d.logger.Info("alert dispatched",
		zap.String("alert_id", alert.ID.String()),
		zap.String("category", alert.Category),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// Deliver performs one channel attempt for a single recipient, bounded
// by the attempt timeout. It does not touch the ledger; callers record
// the outcome with the attempt number they own.
func (d *Dispatcher) Deliver(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
	defer cancel()

	return d.sender.Send(attemptCtx, alert, rcpt)
}

// record writes the initial attempt outcome. Ledger write failures here
// are logged, not returned: the attempt already happened, and a row left
// pending is picked up by the coordinator's stale-pending sweep.
func (d *Dispatcher) record(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery, attempt int, sendErr error) {
	if sendErr == nil {
		metrics.RecordDelivery(rcpt.Channel, "sent")
		if err := d.ledger.MarkSent(ctx, alert.ID, rcpt.RecipientID, attempt); err != nil {
			d.logger.Error("failed to mark delivery sent",
				zap.Error(err),
				zap.String("alert_id", alert.ID.String()),
				zap.String("recipient_id", rcpt.RecipientID.String()),
			)
		}
		return
	}

	metrics.RecordDelivery(rcpt.Channel, "failed")
	d.logger.Warn("delivery attempt failed",
		zap.Error(sendErr),
		zap.String("alert_id", alert.ID.String()),
		zap.String("recipient_id", rcpt.RecipientID.String()),
		zap.String("channel", rcpt.Channel),
		zap.Int("attempt", attempt),
	)

	nextRetry := time.Now().Add(d.config.RetryBase)
	if err := d.ledger.MarkFailed(ctx, alert.ID, rcpt.RecipientID, attempt, sendErr.Error(), nextRetry); err != nil {
		d.logger.Error("failed to mark delivery failed",
			zap.Error(err),
			zap.String("alert_id", alert.ID.String()),
			zap.String("recipient_id", rcpt.RecipientID.String()),
		)
	}
}

// bindRecipients builds the pending delivery rows for an alert. The
// set is final: rows are only ever updated after this, never added.
func bindRecipients(alertID uuid.UUID, recipients []*db.Recipient) []*db.RecipientDelivery {
	rows := make([]*db.RecipientDelivery, 0, len(recipients))
	for _, r := range recipients {
		rows = append(rows, &db.RecipientDelivery{
			AlertID:     alertID,
			RecipientID: r.ID,
			Channel:     r.Channel,
			Address:     r.Address,
			DisplayName: r.DisplayName,
			State:       db.StatePending,
		})
	}
	return rows
}
