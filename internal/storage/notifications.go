// Package storage - outbound notification queue, adapted from the
// teacher's message-outbox retry/dedup design and generalized from P2P wire
// messages to user-facing notifications.
package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// OutboxStatus represents the delivery status of a queued notification.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxNotification is a notification awaiting delivery through the
// Notification Port.
type OutboxNotification struct {
	ID            int64
	MessageID     string
	UserID        string
	Kind          string
	Payload       []byte
	CreatedAt     time.Time
	RetryCount    int
	LastAttemptAt *time.Time
	NextRetryAt   time.Time
	DeliveredAt   *time.Time
	Status        OutboxStatus
	ErrorMessage  string
}

// EnqueueNotification adds a notification to the outbox for delivery.
func (s *Storage) EnqueueNotification(n *OutboxNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO notification_outbox (
			message_id, user_id, kind, payload, created_at, retry_count, next_retry_at, status
		) VALUES (?, ?, ?, ?, ?, 0, ?, 'pending')
	`, n.MessageID, n.UserID, n.Kind, n.Payload, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// GetPendingNotifications returns notifications due for delivery/retry.
func (s *Storage) GetPendingNotifications(now time.Time, limit int) ([]*OutboxNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, message_id, user_id, kind, payload, created_at, retry_count,
			last_attempt_at, next_retry_at, delivered_at, status, error_message
		FROM notification_outbox
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?
	`, OutboxStatusPending, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	return scanOutboxNotifications(rows)
}

func scanOutboxNotifications(rows *sql.Rows) ([]*OutboxNotification, error) {
	var out []*OutboxNotification
	for rows.Next() {
		var n OutboxNotification
		var createdAt, nextRetryAt int64
		var lastAttemptAt, deliveredAt sql.NullInt64
		var errMsg sql.NullString

		if err := rows.Scan(
			&n.ID, &n.MessageID, &n.UserID, &n.Kind, &n.Payload, &createdAt, &n.RetryCount,
			&lastAttemptAt, &nextRetryAt, &deliveredAt, &n.Status, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		n.CreatedAt = time.Unix(createdAt, 0)
		n.NextRetryAt = time.Unix(nextRetryAt, 0)
		if lastAttemptAt.Valid {
			t := time.Unix(lastAttemptAt.Int64, 0)
			n.LastAttemptAt = &t
		}
		if deliveredAt.Valid {
			t := time.Unix(deliveredAt.Int64, 0)
			n.DeliveredAt = &t
		}
		n.ErrorMessage = errMsg.String
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkDelivered marks a notification as successfully delivered.
func (s *Storage) MarkDelivered(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		UPDATE notification_outbox SET status = ?, delivered_at = ?, last_attempt_at = ?
		WHERE message_id = ?
	`, OutboxStatusDelivered, now, now, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}

// MarkRetry bumps the retry count and schedules the next attempt with
// linear backoff (attempt count * backoff), recording the error.
func (s *Storage) MarkRetry(messageID string, backoff time.Duration, errMsg string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var status OutboxStatus = OutboxStatusPending

	var retryCount int
	if err := s.db.QueryRow(`SELECT retry_count FROM notification_outbox WHERE message_id = ?`, messageID).Scan(&retryCount); err != nil {
		return fmt.Errorf("failed to read notification retry count: %w", err)
	}
	retryCount++
	if retryCount >= maxRetries {
		status = OutboxStatusFailed
	}

	nextRetry := now.Add(time.Duration(retryCount) * backoff)
	_, err := s.db.Exec(`
		UPDATE notification_outbox
		SET retry_count = ?, last_attempt_at = ?, next_retry_at = ?, status = ?, error_message = ?
		WHERE message_id = ?
	`, retryCount, now.Unix(), nextRetry.Unix(), status, errMsg, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark notification retry: %w", err)
	}
	return nil
}
