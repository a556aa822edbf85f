package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const outboxColumns = `id, order_id, kind, payload, attempts, last_error, next_attempt_at, published_at, delivered_at, abandoned_at, created_at`

func insertOutbox(ctx context.Context, db execer, ev domain.OrderEvent, ignoreDuplicate bool) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `INSERT INTO notification_outbox (id, order_id, kind, payload) VALUES ($1, $2, $3, $4)`
	if ignoreDuplicate {
		query += ` ON CONFLICT (order_id, kind) DO NOTHING`
	}

	if _, err := db.ExecContext(ctx, query, uuid.New(), ev.OrderID, ev.Kind, string(payload)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateNotification
		}
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// EnqueueNotification returns ErrDuplicateNotification when the order already
// has a notification of the same kind.
func (r *Repository) EnqueueNotification(ctx context.Context, ev domain.OrderEvent) error {
	return insertOutbox(ctx, r.db, ev, false)
}

func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM notification_outbox
		WHERE published_at IS NULL AND delivered_at IS NULL AND abandoned_at IS NULL
		  AND next_attempt_at <= NOW()
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		ev, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

// MarkEventPublished records a hand-off to the sink. It only applies while
// the row still has the attempt count it was fetched with: a handler that
// already rescheduled or settled the row wins, and the mark is a no-op.
func (r *Repository) MarkEventPublished(ctx context.Context, id uuid.UUID, attempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET published_at = NOW()
		WHERE id = $1 AND attempts = $2
		  AND published_at IS NULL AND delivered_at IS NULL AND abandoned_at IS NULL`,
		id, attempts)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// RequeueStalledEvents clears published_at on rows that were handed off
// before publishedBefore and never settled, so a consumer that lost the
// message does not strand them. Each requeue counts as an attempt and rows
// at maxAttempts are left alone.
func (r *Repository) RequeueStalledEvents(ctx context.Context, publishedBefore time.Time, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET published_at = NULL, attempts = attempts + 1, last_error = 'not settled after publish'
		WHERE published_at < $1 AND attempts < $2
		  AND delivered_at IS NULL AND abandoned_at IS NULL`,
		publishedBefore, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeue stalled events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	return n, nil
}

func (r *Repository) GetNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+outboxColumns+` FROM notification_outbox WHERE order_id = $1 AND kind = $2`,
		orderID, kind)
	ev, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return ev, nil
}

func (r *Repository) MarkNotificationDelivered(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET delivered_at = NOW(), published_at = COALESCE(published_at, NOW()),
		    attempts = attempts + 1, last_error = ''
		WHERE order_id = $1 AND kind = $2`, orderID, kind)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	return expectRow(res, ErrNotificationNotFound)
}

// RescheduleNotification puts a failed delivery back in the outbox to be
// published again at next.
func (r *Repository) RescheduleNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string, next time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET published_at = NULL, attempts = attempts + 1, last_error = $1, next_attempt_at = $2
		WHERE order_id = $3 AND kind = $4 AND delivered_at IS NULL AND abandoned_at IS NULL`,
		lastErr, next, orderID, kind)
	if err != nil {
		return fmt.Errorf("reschedule notification: %w", err)
	}
	return expectRow(res, ErrNotificationNotFound)
}

// AbandonNotification stops automatic delivery of a notification. The row
// stays for the record and the email can still be resent by an admin.
func (r *Repository) AbandonNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET abandoned_at = NOW(), published_at = COALESCE(published_at, NOW()),
		    attempts = attempts + 1, last_error = $1
		WHERE order_id = $2 AND kind = $3 AND delivered_at IS NULL AND abandoned_at IS NULL`,
		lastErr, orderID, kind)
	if err != nil {
		return fmt.Errorf("abandon notification: %w", err)
	}
	return expectRow(res, ErrNotificationNotFound)
}

func (r *Repository) GetMissingNotifications(ctx context.Context, settledBefore time.Time, limit int) ([]*MissingNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, k.kind, o.failure_reason, o.updated_at
		FROM orders o
		CROSS JOIN LATERAL (
			VALUES ('order_confirmation'),
			       (CASE o.status
			            WHEN 'paid' THEN 'payment_succeeded'
			            WHEN 'failed' THEN 'payment_failed'
			            WHEN 'shipped' THEN 'order_shipped'
			        END)
		) AS k(kind)
		WHERE k.kind IS NOT NULL
		  AND o.updated_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM notification_outbox n WHERE n.order_id = o.id AND n.kind = k.kind
		  )
		ORDER BY o.updated_at
		LIMIT $2`, settledBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing notifications: %w", err)
	}
	defer rows.Close()

	var missing []*MissingNotification
	for rows.Next() {
		m := &MissingNotification{}
		if err := rows.Scan(&m.OrderID, &m.UserID, &m.Kind, &m.FailureReason, &m.SettledAt); err != nil {
			return nil, fmt.Errorf("scan missing notification: %w", err)
		}
		missing = append(missing, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return missing, nil
}

func (r *Repository) LogEmail(ctx context.Context, e EmailLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_log (order_id, kind, recipient, success, message_id, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.OrderID, e.Kind, e.Recipient, e.Success, e.MessageID, e.Error)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func scanOutbox(row interface{ Scan(...any) error }) (*OutboxEvent, error) {
	ev := &OutboxEvent{}
	var published, delivered, abandoned sql.NullTime
	err := row.Scan(
		&ev.ID,
		&ev.OrderID,
		&ev.Kind,
		&ev.Payload,
		&ev.Attempts,
		&ev.LastError,
		&ev.NextAttemptAt,
		&published,
		&delivered,
		&abandoned,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		ev.PublishedAt = &published.Time
	}
	if delivered.Valid {
		ev.DeliveredAt = &delivered.Time
	}
	if abandoned.Valid {
		ev.AbandonedAt = &abandoned.Time
	}
	return ev, nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
