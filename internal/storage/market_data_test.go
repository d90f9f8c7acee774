package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListMarketSnapshots(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.RecordMarketSnapshot(&MarketSnapshot{
		Network: "SOL", FromToken: "USDC", ToToken: "SOL", OutputAmount: "4.2",
		Venue: "orca", SampledAt: time.Now(),
	}))
	require.NoError(t, s.RecordMarketSnapshot(&MarketSnapshot{
		Network: "SOL", FromToken: "USDC", ToToken: "SOL", OutputAmount: "4.25",
		Venue: "raydium", SampledAt: time.Now(),
	}))

	snaps, err := s.ListRecentSnapshots("SOL", "USDC", "SOL", 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}
