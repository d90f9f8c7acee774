// Package storage - P2P escrow order, message, and review persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrP2POrderNotFound = errors.New("p2p order not found")

// P2PStatus is the escrow deal's lifecycle state.
type P2PStatus string

const (
	P2PStatusOpen        P2PStatus = "OPEN"
	P2PStatusInProgress  P2PStatus = "IN_PROGRESS"
	P2PStatusPaymentSent P2PStatus = "PAYMENT_SENT"
	P2PStatusCompleted   P2PStatus = "COMPLETED"
	P2PStatusCancelled   P2PStatus = "CANCELLED"
	P2PStatusDisputed    P2PStatus = "DISPUTE"
	P2PStatusResolved    P2PStatus = "RESOLVED"
)

// P2POrder is a fiat-for-crypto escrow listing.
type P2POrder struct {
	ID      string
	MakerID string
	TakerID *string

	Side          Side // BUY or SELL from the maker's perspective
	Asset         string
	Network       string
	Amount        string // decimal string
	Price         string // decimal string, quote currency per unit
	FiatCurrency  string
	PaymentMethod string

	Status P2PStatus

	EscrowRef       *string
	DisputeReason   *string
	DisputeEvidence []string

	CreatedAt   time.Time
	UpdatedAt   *time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// CreateP2POrder inserts a new escrow listing.
func (s *Storage) CreateP2POrder(o *P2POrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO p2p_orders (
			id, maker_id, side, asset, network, amount, price, fiat_currency,
			payment_method, status, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.MakerID, o.Side, o.Asset, o.Network, o.Amount, o.Price, o.FiatCurrency,
		o.PaymentMethod, o.Status, o.CreatedAt.Unix(), o.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create p2p order: %w", err)
	}
	return nil
}

func scanP2POrder(row rowScanner) (*P2POrder, error) {
	var o P2POrder
	var createdAt, expiresAt int64
	var updatedAt, completedAt sql.NullInt64
	var evidence sql.NullString

	err := row.Scan(
		&o.ID, &o.MakerID, &o.TakerID, &o.Side, &o.Asset, &o.Network, &o.Amount, &o.Price,
		&o.FiatCurrency, &o.PaymentMethod, &o.Status, &o.EscrowRef, &o.DisputeReason, &evidence,
		&createdAt, &updatedAt, &expiresAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CreatedAt = time.Unix(createdAt, 0)
	o.ExpiresAt = time.Unix(expiresAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		o.UpdatedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		o.CompletedAt = &t
	}
	if evidence.Valid && evidence.String != "" {
		o.DisputeEvidence = strings.Split(evidence.String, "\x1f")
	}
	return &o, nil
}

const p2pOrderColumns = `
	id, maker_id, taker_id, side, asset, network, amount, price, fiat_currency,
	payment_method, status, escrow_ref, dispute_reason, dispute_evidence,
	created_at, updated_at, expires_at, completed_at
`

// GetP2POrder retrieves an escrow order by ID.
func (s *Storage) GetP2POrder(id string) (*P2POrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+p2pOrderColumns+` FROM p2p_orders WHERE id = ?`, id)
	o, err := scanP2POrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrP2POrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get p2p order: %w", err)
	}
	return o, nil
}

// TakeP2POrder assigns a taker and moves an OPEN order to IN_PROGRESS,
// atomically: two concurrent takers racing on the same order only one wins.
func (s *Storage) TakeP2POrder(id, takerID string, escrowRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE p2p_orders SET taker_id = ?, status = ?, escrow_ref = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, takerID, P2PStatusInProgress, escrowRef, time.Now().Unix(), id, P2PStatusOpen)
	if err != nil {
		return false, fmt.Errorf("failed to take p2p order: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// SetP2PStatus transitions status unconditionally (the P2P engine itself
// enforces the legal-transition graph before calling this).
func (s *Storage) SetP2PStatus(id string, status P2PStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var completedAt interface{}
	if status == P2PStatusCompleted || status == P2PStatusCancelled {
		completedAt = now.Unix()
	}

	result, err := s.db.Exec(`
		UPDATE p2p_orders SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?
	`, status, now.Unix(), completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set p2p status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrP2POrderNotFound
	}
	return nil
}

// OpenDispute records a dispute reason/evidence and moves the order to DISPUTE.
func (s *Storage) OpenDispute(id, reason string, evidence []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE p2p_orders SET status = ?, dispute_reason = ?, dispute_evidence = ?, updated_at = ?
		WHERE id = ?
	`, P2PStatusDisputed, reason, strings.Join(evidence, "\x1f"), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to open dispute: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrP2POrderNotFound
	}
	return nil
}

// P2PFilter narrows ListOpenP2POrders results.
type P2PFilter struct {
	Asset   string
	Network string
	Side    *Side
	Limit   int
}

// ListOpenP2POrders returns OPEN listings for an asset/network, sorted by
// price ascending for BUY listings (cheapest offer first) or descending for
// SELL listings (highest bid first), tie-broken by created_at ascending.
func (s *Storage) ListOpenP2POrders(filter P2PFilter) ([]*P2POrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + p2pOrderColumns + ` FROM p2p_orders WHERE status = ?`
	args := []interface{}{P2PStatusOpen}

	if filter.Asset != "" {
		query += " AND asset = ?"
		args = append(args, filter.Asset)
	}
	if filter.Network != "" {
		query += " AND network = ?"
		args = append(args, filter.Network)
	}
	if filter.Side != nil {
		query += " AND side = ?"
		args = append(args, *filter.Side)
		if *filter.Side == SideBuy {
			query += " ORDER BY CAST(price AS REAL) ASC, created_at ASC"
		} else {
			query += " ORDER BY CAST(price AS REAL) DESC, created_at ASC"
		}
	} else {
		query += " ORDER BY created_at ASC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open p2p orders: %w", err)
	}
	defer rows.Close()

	var orders []*P2POrder
	for rows.Next() {
		o, err := scanP2POrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan p2p order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListExpiredOpenP2POrders returns OPEN orders whose expiry has passed, for
// the sweep job.
func (s *Storage) ListExpiredOpenP2POrders(asOf time.Time) ([]*P2POrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+p2pOrderColumns+` FROM p2p_orders
		WHERE status = ? AND expires_at < ?
	`, P2PStatusOpen, asOf.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired p2p orders: %w", err)
	}
	defer rows.Close()

	var orders []*P2POrder
	for rows.Next() {
		o, err := scanP2POrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan p2p order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// P2PMessage is a chat message attached to an escrow deal.
type P2PMessage struct {
	ID        string
	OrderID   string
	SenderID  string
	Body      string
	CreatedAt time.Time
}

// AddP2PMessage appends a chat message to a deal.
func (s *Storage) AddP2PMessage(m *P2PMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO p2p_messages (id, order_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.OrderID, m.SenderID, m.Body, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add p2p message: %w", err)
	}
	return nil
}

// ListP2PMessages returns a deal's chat history, oldest first.
func (s *Storage) ListP2PMessages(orderID string) ([]*P2PMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, order_id, sender_id, body, created_at
		FROM p2p_messages WHERE order_id = ? ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list p2p messages: %w", err)
	}
	defer rows.Close()

	var messages []*P2PMessage
	for rows.Next() {
		var m P2PMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan p2p message: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// P2PReview is a post-trade counterparty rating.
type P2PReview struct {
	ID         string
	OrderID    string
	ReviewerID string
	RevieweeID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// AddP2PReview records a review and rolls its rating into the reviewee's
// denormalized aggregate in the same transaction, per the eventual-rating
// note in the data model.
func (s *Storage) AddP2PReview(r *P2PReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO p2p_reviews (id, order_id, reviewer_id, reviewee_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OrderID, r.ReviewerID, r.RevieweeID, r.Rating, r.Comment, r.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add p2p review: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE users SET rating_sum = CAST(CAST(rating_sum AS INTEGER) + ? AS TEXT), rating_count = rating_count + 1
		WHERE id = ?
	`, r.Rating, r.RevieweeID)
	if err != nil {
		return fmt.Errorf("failed to roll up review rating: %w", err)
	}

	return tx.Commit()
}
