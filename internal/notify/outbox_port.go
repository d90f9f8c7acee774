package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// OutboxConfig controls the outbox's retry backoff, mirroring the linear
// per-attempt backoff the teacher's message outbox used for P2P delivery.
type OutboxConfig struct {
	Backoff    time.Duration
	MaxRetries int
}

// DefaultOutboxConfig returns sane production defaults.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{Backoff: 30 * time.Second, MaxRetries: 10}
}

// OutboxPort persists every notification before attempting delivery through
// an inner Port, and exposes DeliverPending for a scheduler job to drain
// whatever didn't go out on the first try.
type OutboxPort struct {
	store *storage.Storage
	inner Port
	cfg   OutboxConfig
	log   *logging.Logger
}

// NewOutboxPort builds an OutboxPort that delivers through inner and
// persists to store for retry on failure.
func NewOutboxPort(store *storage.Storage, inner Port, cfg OutboxConfig, log *logging.Logger) *OutboxPort {
	return &OutboxPort{store: store, inner: inner, cfg: cfg, log: log.Component("notify.outbox")}
}

func (p *OutboxPort) Notify(ctx context.Context, userID, kind string, payload []byte) error {
	messageID := uuid.NewString()
	if err := p.store.EnqueueNotification(&storage.OutboxNotification{
		MessageID: messageID, UserID: userID, Kind: kind, Payload: payload,
	}); err != nil {
		return fmt.Errorf("notify: failed to enqueue: %w", err)
	}

	if err := p.inner.Notify(ctx, userID, kind, payload); err != nil {
		p.log.Warn("immediate delivery failed, queued for retry", "message_id", messageID, "error", err)
		return nil
	}
	if err := p.store.MarkDelivered(messageID); err != nil {
		p.log.Warn("failed to mark notification delivered", "message_id", messageID, "error", err)
	}
	return nil
}

// DeliverPending attempts delivery for every notification due for retry,
// marking each delivered or scheduling its next retry. Intended to be
// called periodically by the scheduler, never in the hot request path.
func (p *OutboxPort) DeliverPending(ctx context.Context, limit int) error {
	pending, err := p.store.GetPendingNotifications(time.Now(), limit)
	if err != nil {
		return fmt.Errorf("notify: failed to load pending notifications: %w", err)
	}

	for _, n := range pending {
		err := p.inner.Notify(ctx, n.UserID, n.Kind, n.Payload)
		if err == nil {
			if markErr := p.store.MarkDelivered(n.MessageID); markErr != nil {
				p.log.Warn("failed to mark notification delivered", "message_id", n.MessageID, "error", markErr)
			}
			continue
		}
		if retryErr := p.store.MarkRetry(n.MessageID, p.cfg.Backoff, err.Error(), p.cfg.MaxRetries); retryErr != nil {
			p.log.Warn("failed to schedule notification retry", "message_id", n.MessageID, "error", retryErr)
		}
	}
	return nil
}

var _ Port = (*OutboxPort)(nil)
