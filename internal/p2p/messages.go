package p2p

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/storage"
)

// SendMessage appends a chat message to a deal, restricted to its two
// participants. The chat presentation layer itself lives outside this
// module; this is the persistence the Engine owns on its behalf.
func (e *Engine) SendMessage(ctx context.Context, orderID, senderID, body string) (*storage.P2PMessage, error) {
	if _, err := e.requireParticipant(orderID, senderID); err != nil {
		return nil, err
	}
	if body == "" {
		return nil, errs.Validationf("message body is required")
	}

	m := &storage.P2PMessage{ID: uuid.NewString(), OrderID: orderID, SenderID: senderID, Body: body, CreatedAt: time.Now()}
	if err := e.storage.AddP2PMessage(m); err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to persist p2p message", err)
	}
	return m, nil
}

// ListMessages returns a deal's chat history, restricted to its two
// participants.
func (e *Engine) ListMessages(ctx context.Context, orderID, requesterID string) ([]*storage.P2PMessage, error) {
	if _, err := e.requireParticipant(orderID, requesterID); err != nil {
		return nil, err
	}
	messages, err := e.storage.ListP2PMessages(orderID)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "failed to list p2p messages", err)
	}
	return messages, nil
}
