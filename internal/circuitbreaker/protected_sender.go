package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// Sender mirrors the dispatch.Sender interface to avoid circular imports.
type Sender interface {
	Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error
	SupportsChannel(channel string) bool
}

// ProtectedSender wraps any Sender with a CircuitBreaker.
// When the downstream channel (SES, SNS, a contact's webhook endpoint)
// starts failing, the circuit opens and attempts fail fast instead of
// piling up; the ledger keeps the rows and the retry loop tries again.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts a delivery through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately.
func (p *ProtectedSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("alert_id", alert.ID.String()),
			zap.String("channel", rcpt.Channel),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s channel unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.sender.Send(ctx, alert, rcpt)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
