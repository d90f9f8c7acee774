// Package storage - spot order persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Spot order errors.
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderType distinguishes the three spot order kinds.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// Side is the direction of a spot order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus represents the lifecycle state of a spot order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusTriggered OrderStatus = "TRIGGERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// SpotOrder represents a trade order in the database.
type SpotOrder struct {
	ID     string
	UserID string

	OrderType OrderType
	Side      Side
	Network   string
	FromToken string
	ToToken   string

	InputAmount    string // decimal string
	TriggerPrice   *string
	MaxSlippageBps int64

	Status OrderStatus

	FilledOutputAmount *string
	FilledVenue        *string
	ExecutionDetails   *string // JSON blob, per-attempt venue/impact log
	FailureReason      *string

	CreatedAt   time.Time
	UpdatedAt   *time.Time
	CompletedAt *time.Time
}

// CreateOrder inserts a new spot order.
func (s *Storage) CreateOrder(o *SpotOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO spot_orders (
			id, user_id, order_type, side, network, from_token, to_token,
			input_amount, trigger_price, max_slippage_bps, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.UserID, o.OrderType, o.Side, o.Network, o.FromToken, o.ToToken,
		o.InputAmount, o.TriggerPrice, o.MaxSlippageBps, o.Status, o.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder retrieves a spot order by ID.
func (s *Storage) GetOrder(id string) (*SpotOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, user_id, order_type, side, network, from_token, to_token,
			input_amount, trigger_price, max_slippage_bps, status,
			filled_output_amount, filled_venue, execution_details, failure_reason,
			created_at, updated_at, completed_at
		FROM spot_orders WHERE id = ?
	`, id)
	o, err := scanSpotOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpotOrder(row rowScanner) (*SpotOrder, error) {
	var o SpotOrder
	var createdAt int64
	var updatedAt, completedAt sql.NullInt64

	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderType, &o.Side, &o.Network, &o.FromToken, &o.ToToken,
		&o.InputAmount, &o.TriggerPrice, &o.MaxSlippageBps, &o.Status,
		&o.FilledOutputAmount, &o.FilledVenue, &o.ExecutionDetails, &o.FailureReason,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		o.UpdatedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		o.CompletedAt = &t
	}
	return &o, nil
}

// CompareAndSetStatus transitions an order from expectedStatus to newStatus
// atomically; it reports ErrOrderNotFound if the order doesn't exist, and
// returns (false, nil) without error if the order is already past
// expectedStatus, making terminal-state transitions idempotent.
func (s *Storage) CompareAndSetStatus(id string, expectedStatus, newStatus OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE spot_orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, newStatus, time.Now().Unix(), id, expectedStatus)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return true, nil
	}

	var exists int
	if err := s.db.QueryRow(`SELECT 1 FROM spot_orders WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
		return false, ErrOrderNotFound
	}
	return false, nil
}

// CompleteOrder records a successful fill and transitions the order to
// COMPLETED, regardless of its current non-terminal status.
func (s *Storage) CompleteOrder(id, outputAmount, venue, executionDetails string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE spot_orders
		SET status = ?, filled_output_amount = ?, filled_venue = ?, execution_details = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)
	`, OrderStatusCompleted, outputAmount, venue, executionDetails, now.Unix(), now.Unix(),
		id, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil // already terminal: idempotent no-op
	}
	return nil
}

// FailOrder transitions a non-terminal order to FAILED with a reason.
func (s *Storage) FailOrder(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE spot_orders
		SET status = ?, failure_reason = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)
	`, OrderStatusFailed, reason, now.Unix(), now.Unix(),
		id, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to fail order: %w", err)
	}
	return nil
}

// SpotOrderFilter narrows ListOrders results.
type SpotOrderFilter struct {
	UserID    string
	Status    *OrderStatus
	OrderType *OrderType
	Limit     int
	Offset    int
}

// ListOrders returns orders matching the filter, newest first.
func (s *Storage) ListOrders(filter SpotOrderFilter) ([]*SpotOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, order_type, side, network, from_token, to_token,
			input_amount, trigger_price, max_slippage_bps, status,
			filled_output_amount, filled_venue, execution_details, failure_reason,
			created_at, updated_at, completed_at
		FROM spot_orders WHERE 1=1
	`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.OrderType != nil {
		query += " AND order_type = ?"
		args = append(args, *filter.OrderType)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*SpotOrder
	for rows.Next() {
		o, err := scanSpotOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListPendingTriggers returns every PENDING STOP_LOSS/TAKE_PROFIT order for
// a (network, from, to) pair. Nothing in the order engine calls it; the
// trigger watcher reads its index from the cache store.
func (s *Storage) ListPendingTriggers(network, fromToken, toToken string) ([]*SpotOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, order_type, side, network, from_token, to_token,
			input_amount, trigger_price, max_slippage_bps, status,
			filled_output_amount, filled_venue, execution_details, failure_reason,
			created_at, updated_at, completed_at
		FROM spot_orders
		WHERE status = ? AND order_type IN (?, ?) AND network = ? AND from_token = ? AND to_token = ?
	`, OrderStatusPending, OrderTypeStopLoss, OrderTypeTakeProfit, network, fromToken, toToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending triggers: %w", err)
	}
	defer rows.Close()

	var orders []*SpotOrder
	for rows.Next() {
		o, err := scanSpotOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
