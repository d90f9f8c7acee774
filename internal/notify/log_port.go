package notify

import (
	"context"

	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// LogPort logs notifications instead of delivering them anywhere; it's the
// composition root's default when no richer channel is configured.
type LogPort struct {
	log *logging.Logger
}

// NewLogPort builds a LogPort.
func NewLogPort(log *logging.Logger) *LogPort {
	return &LogPort{log: log.Component("notify")}
}

func (p *LogPort) Notify(ctx context.Context, userID, kind string, payload []byte) error {
	p.log.Info("notification", "user_id", userID, "kind", kind, "payload", string(payload))
	return nil
}

var _ Port = (*LogPort)(nil)
