package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListTransactions(t *testing.T) {
	s := newTestStorage(t)
	seedUser(t, s, "u1")

	require.NoError(t, s.RecordTransaction(&Transaction{
		ID: "tx1", UserID: "u1", Asset: "USDC", Network: "SOL", Kind: TxKindSwap,
		Amount: "-100", RefID: "order-1", CreatedAt: time.Now(),
	}))
	require.NoError(t, s.RecordTransaction(&Transaction{
		ID: "tx2", UserID: "u1", Asset: "SOL", Network: "SOL", Kind: TxKindSwap,
		Amount: "4.2", RefID: "order-1", CreatedAt: time.Now(),
	}))

	txs, err := s.ListTransactions("u1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}
