// Package ledger is the durable record of every alert and the delivery
// state of each of its recipients. The dispatcher and retry coordinator
// never share in-memory state; the ledger's row-level conditional
// updates are their only coordination point.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// ErrAlertNotFound is returned when an alert id has no row.
var ErrAlertNotFound = errors.New("alert not found")

// Ledger persists alerts and their recipient delivery rows in Postgres.
type Ledger struct {
	db     *db.DB
	logger *zap.Logger
}

// New creates a ledger backed by the given database.
func New(database *db.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     database,
		logger: logger,
	}
}

// CreateAlert inserts the alert and all of its recipient rows in one
// transaction. The recipient set is fixed here; no rows are ever added
// to an alert afterwards.
func (l *Ledger) CreateAlert(ctx context.Context, alert *db.Alert) error {
	tx, err := l.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snapshot, err := json.Marshal(alert.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile snapshot: %w", err)
	}

	var lat, lon, accuracy *float64
	var locatedAt *time.Time
	if alert.Location != nil {
		lat = &alert.Location.Lat
		lon = &alert.Location.Lon
		accuracy = &alert.Location.AccuracyM
		locatedAt = &alert.Location.RecordedAt
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO alerts (id, sender_id, category, note, lat, lon, accuracy_m, located_at, profile_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, alert.ID, alert.SenderID, alert.Category, alert.Note, lat, lon, accuracy, locatedAt, snapshot).
		Scan(&alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	for _, rcpt := range alert.Recipients {
		_, err = tx.Exec(ctx, `
			INSERT INTO alert_recipients (alert_id, recipient_id, channel, address, display_name, state, attempts)
			VALUES ($1, $2, $3, $4, $5, $6, 0)
		`, alert.ID, rcpt.RecipientID, rcpt.Channel, rcpt.Address, rcpt.DisplayName, db.StatePending)
		if err != nil {
			return fmt.Errorf("insert recipient row: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	l.logger.Info("alert recorded",
		zap.String("alert_id", alert.ID.String()),
		zap.String("category", alert.Category),
		zap.Int("recipients", len(alert.Recipients)),
	)

	return nil
}

// MarkSent transitions a recipient row to sent. The state predicate
// keeps the transition monotonic: a row already sent or exhausted is
// left untouched, which makes redelivery after a coordinator race a
// no-op rather than a regression.
func (l *Ledger) MarkSent(ctx context.Context, alertID, recipientID uuid.UUID, attempt int) error {
	result, err := l.db.Pool().Exec(ctx, `
		UPDATE alert_recipients
		SET state = $1, attempts = $2, last_attempt_at = NOW(), next_retry_at = NULL, last_error = NULL
		WHERE alert_id = $3 AND recipient_id = $4 AND state IN ($5, $6)
	`, db.StateSent, attempt, alertID, recipientID, db.StatePending, db.StateFailed)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	if result.RowsAffected() == 0 {
		l.logger.Debug("mark sent skipped, row not in updatable state",
			zap.String("alert_id", alertID.String()),
			zap.String("recipient_id", recipientID.String()),
		)
	}

	return nil
}

// MarkFailed records a failed attempt and schedules the next retry.
// Rows that already reached sent or exhausted are not touched.
func (l *Ledger) MarkFailed(ctx context.Context, alertID, recipientID uuid.UUID, attempt int, sendErr string, nextRetryAt time.Time) error {
	result, err := l.db.Pool().Exec(ctx, `
		UPDATE alert_recipients
		SET state = $1, attempts = $2, last_attempt_at = NOW(), next_retry_at = $3, last_error = $4
		WHERE alert_id = $5 AND recipient_id = $6 AND state IN ($7, $8)
	`, db.StateFailed, attempt, nextRetryAt, sendErr, alertID, recipientID, db.StatePending, db.StateFailed)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		l.logger.Debug("mark failed skipped, row not in updatable state",
			zap.String("alert_id", alertID.String()),
			zap.String("recipient_id", recipientID.String()),
		)
	}

	return nil
}

// MarkExhausted terminally retires a failed row once the retry budget
// is gone. Exhausted rows are never revisited.
func (l *Ledger) MarkExhausted(ctx context.Context, alertID, recipientID uuid.UUID, attempt int, sendErr string) error {
	_, err := l.db.Pool().Exec(ctx, `
		UPDATE alert_recipients
		SET state = $1, attempts = $2, last_attempt_at = NOW(), next_retry_at = NULL, last_error = $3
		WHERE alert_id = $4 AND recipient_id = $5 AND state = $6
	`, db.StateExhausted, attempt, sendErr, alertID, recipientID, db.StateFailed)
	if err != nil {
		return fmt.Errorf("mark exhausted: %w", err)
	}

	l.logger.Warn("delivery exhausted",
		zap.String("alert_id", alertID.String()),
		zap.String("recipient_id", recipientID.String()),
		zap.Int("attempts", attempt),
	)

	return nil
}

// RetryableDelivery is a failed recipient row joined with the alert it
// belongs to, ready for another attempt.
type RetryableDelivery struct {
	Alert     *db.Alert
	Recipient *db.RecipientDelivery
}

// ListRetryable returns failed rows whose next retry time has elapsed,
// oldest due first. Alerts are hydrated so the coordinator can rebuild
// the channel payload without a second round trip per row.
func (l *Ledger) ListRetryable(ctx context.Context, limit int) ([]*RetryableDelivery, error) {
	rows, err := l.db.Pool().Query(ctx, `
		SELECT
			a.id, a.sender_id, a.category, a.note, a.lat, a.lon, a.accuracy_m, a.located_at, a.profile_snapshot, a.created_at,
			r.alert_id, r.recipient_id, r.channel, r.address, r.display_name, r.state, r.attempts, r.last_attempt_at, r.next_retry_at, r.last_error
		FROM alert_recipients r
		JOIN alerts a ON a.id = r.alert_id
		WHERE r.state = $1 AND r.next_retry_at <= NOW()
		ORDER BY r.next_retry_at ASC
		LIMIT $2
	`, db.StateFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable deliveries: %w", err)
	}
	defer rows.Close()

	var out []*RetryableDelivery
	for rows.Next() {
		alert, rcpt, err := scanAlertRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &RetryableDelivery{Alert: alert, Recipient: rcpt})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// ListStalePending returns pending rows whose alert is older than the
// grace period, oldest first. A row can be stranded pending when the
// process dies between recording the alert and recording the first
// attempt outcome, or when that outcome's ledger write fails; the
// coordinator sweeps these up so no recipient is silently dropped.
func (l *Ledger) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*RetryableDelivery, error) {
	cutoff := time.Now().Add(-olderThan)

	rows, err := l.db.Pool().Query(ctx, `
		SELECT
			a.id, a.sender_id, a.category, a.note, a.lat, a.lon, a.accuracy_m, a.located_at, a.profile_snapshot, a.created_at,
			r.alert_id, r.recipient_id, r.channel, r.address, r.display_name, r.state, r.attempts, r.last_attempt_at, r.next_retry_at, r.last_error
		FROM alert_recipients r
		JOIN alerts a ON a.id = r.alert_id
		WHERE r.state = $1 AND a.created_at <= $2
		ORDER BY a.created_at ASC
		LIMIT $3
	`, db.StatePending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending deliveries: %w", err)
	}
	defer rows.Close()

	var out []*RetryableDelivery
	for rows.Next() {
		alert, rcpt, err := scanAlertRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &RetryableDelivery{Alert: alert, Recipient: rcpt})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// GetAlert retrieves an alert with all its recipient delivery rows.
func (l *Ledger) GetAlert(ctx context.Context, id uuid.UUID) (*db.Alert, error) {
	var (
		alert    db.Alert
		lat, lon *float64
		accuracy *float64
		located  *time.Time
		snapshot []byte
	)

	err := l.db.Pool().QueryRow(ctx, `
		SELECT id, sender_id, category, note, lat, lon, accuracy_m, located_at, profile_snapshot, created_at
		FROM alerts
		WHERE id = $1
	`, id).Scan(&alert.ID, &alert.SenderID, &alert.Category, &alert.Note, &lat, &lon, &accuracy, &located, &snapshot, &alert.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}

	if lat != nil && lon != nil {
		alert.Location = &db.Location{Lat: *lat, Lon: *lon}
		if accuracy != nil {
			alert.Location.AccuracyM = *accuracy
		}
		if located != nil {
			alert.Location.RecordedAt = *located
		}
	}
	if err := json.Unmarshal(snapshot, &alert.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile snapshot: %w", err)
	}

	rows, err := l.db.Pool().Query(ctx, `
		SELECT alert_id, recipient_id, channel, address, display_name, state, attempts, last_attempt_at, next_retry_at, last_error
		FROM alert_recipients
		WHERE alert_id = $1
		ORDER BY recipient_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query recipient rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r db.RecipientDelivery
		err := rows.Scan(&r.AlertID, &r.RecipientID, &r.Channel, &r.Address, &r.DisplayName, &r.State, &r.Attempts, &r.LastAttemptAt, &r.NextRetryAt, &r.LastError)
		if err != nil {
			return nil, fmt.Errorf("scan recipient row: %w", err)
		}
		alert.Recipients = append(alert.Recipients, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &alert, nil
}

// ListAlertsBySender retrieves a user's alerts, newest first, without
// recipient rows.
func (l *Ledger) ListAlertsBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]*db.Alert, error) {
	rows, err := l.db.Pool().Query(ctx, `
		SELECT id, sender_id, category, note, lat, lon, accuracy_m, located_at, profile_snapshot, created_at
		FROM alerts
		WHERE sender_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, senderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*db.Alert
	for rows.Next() {
		var (
			alert    db.Alert
			lat, lon *float64
			accuracy *float64
			located  *time.Time
			snapshot []byte
		)
		err := rows.Scan(&alert.ID, &alert.SenderID, &alert.Category, &alert.Note, &lat, &lon, &accuracy, &located, &snapshot, &alert.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if lat != nil && lon != nil {
			alert.Location = &db.Location{Lat: *lat, Lon: *lon}
			if accuracy != nil {
				alert.Location.AccuracyM = *accuracy
			}
			if located != nil {
				alert.Location.RecordedAt = *located
			}
		}
		if err := json.Unmarshal(snapshot, &alert.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile snapshot: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return alerts, nil
}

func scanAlertRecipient(rows pgx.Rows) (*db.Alert, *db.RecipientDelivery, error) {
	var (
		alert    db.Alert
		rcpt     db.RecipientDelivery
		lat, lon *float64
		accuracy *float64
		located  *time.Time
		snapshot []byte
	)

	err := rows.Scan(
		&alert.ID, &alert.SenderID, &alert.Category, &alert.Note, &lat, &lon, &accuracy, &located, &snapshot, &alert.CreatedAt,
		&rcpt.AlertID, &rcpt.RecipientID, &rcpt.Channel, &rcpt.Address, &rcpt.DisplayName, &rcpt.State, &rcpt.Attempts, &rcpt.LastAttemptAt, &rcpt.NextRetryAt, &rcpt.LastError,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("scan retryable delivery: %w", err)
	}

	if lat != nil && lon != nil {
		alert.Location = &db.Location{Lat: *lat, Lon: *lon}
		if accuracy != nil {
			alert.Location.AccuracyM = *accuracy
		}
		if located != nil {
			alert.Location.RecordedAt = *located
		}
	}
	if err := json.Unmarshal(snapshot, &alert.Profile); err != nil {
		return nil, nil, fmt.Errorf("unmarshal profile snapshot: %w", err)
	}

	return &alert, &rcpt, nil
}
