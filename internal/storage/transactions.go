// Package storage - balance-mutation ledger.
package storage

import (
	"fmt"
	"time"
)

// TransactionKind discriminates ledger entry types.
type TransactionKind string

const (
	TxKindWithdrawal    TransactionKind = "WITHDRAWAL"
	TxKindSwap          TransactionKind = "SWAP"
	TxKindEscrowTransfer TransactionKind = "ESCROW_TRANSFER"
	TxKindEscrowRelease TransactionKind = "ESCROW_RELEASE"
	TxKindEscrowRefund  TransactionKind = "ESCROW_REFUND"
	TxKindFee           TransactionKind = "FEE"
)

// Transaction is one immutable ledger row recording a balance mutation.
type Transaction struct {
	ID        string
	UserID    string
	Asset     string
	Network   string
	Kind      TransactionKind
	Amount    string // decimal string, signed
	RefID     string // the order/escrow id this mutation is attributed to
	CreatedAt time.Time
}

// RecordTransaction appends an entry to the ledger. Ledger rows are
// append-only: there is no update or delete path.
func (s *Storage) RecordTransaction(t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO transactions (id, user_id, asset, network, kind, amount, ref_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Asset, t.Network, t.Kind, t.Amount, t.RefID, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// ListTransactionsByKindSince returns every ledger row of the given kind
// recorded at or after since, used by the daily fee-notification job.
func (s *Storage) ListTransactionsByKindSince(kind TransactionKind, since time.Time) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, asset, network, kind, amount, ref_id, created_at
		FROM transactions WHERE kind = ? AND created_at >= ? ORDER BY user_id
	`, kind, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by kind: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Asset, &t.Network, &t.Kind, &t.Amount, &t.RefID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListTransactions returns a user's ledger history, newest first.
func (s *Storage) ListTransactions(userID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, asset, network, kind, amount, ref_id, created_at
		FROM transactions WHERE user_id = ? ORDER BY created_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Asset, &t.Network, &t.Kind, &t.Amount, &t.RefID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &t)
	}
	return out, rows.Err()
}
