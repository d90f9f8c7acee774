// Package notify defines the Notification Port every engine sends
// user-facing events through, plus a log-only and a persisted-outbox
// implementation of it.
package notify

import "context"

// Port is the contract engines depend on to notify a user of an event.
// Implementations decide how (and whether) delivery is retried.
type Port interface {
	Notify(ctx context.Context, userID, kind string, payload []byte) error
}
