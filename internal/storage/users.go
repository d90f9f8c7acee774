// Package storage - user/follower persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUserNotFound = errors.New("user not found")

// User holds balances and the copy-trading follow relationship.
type User struct {
	ID                string
	Handle            string
	SpendableBalance  string // decimal string
	EscrowBalance     string // decimal string
	RatingSum         string
	RatingCount       int
	FollowingTraderID *string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// CreateUser inserts a new user with zero balances.
func (s *Storage) CreateUser(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (id, handle, spendable_balance, escrow_balance, rating_sum, rating_count, created_at)
		VALUES (?, ?, ?, ?, '0', 0, ?)
	`, u.ID, u.Handle, u.SpendableBalance, u.EscrowBalance, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(
		&u.ID, &u.Handle, &u.SpendableBalance, &u.EscrowBalance, &u.RatingSum, &u.RatingCount,
		&u.FollowingTraderID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		u.UpdatedAt = &t
	}
	return &u, nil
}

const userColumns = `id, handle, spendable_balance, escrow_balance, rating_sum, rating_count, following_trader_id, created_at, updated_at`

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListFollowers returns every user following traderID.
func (s *Storage) ListFollowers(traderID string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+userColumns+` FROM users WHERE following_trader_id = ?`, traderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetFollowing updates who a user copy-trades; pass nil to unfollow.
func (s *Storage) SetFollowing(userID string, traderID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE users SET following_trader_id = ?, updated_at = ? WHERE id = ?
	`, traderID, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to set following: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AdjustSpendableBalance adds delta (may be negative) to a user's spendable
// balance within a transaction, rejecting the mutation if it would drive the
// balance negative.
func (s *Storage) AdjustSpendableBalance(userID string, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin balance transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow(`SELECT spendable_balance FROM users WHERE id = ?`, userID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to read balance: %w", err)
	}

	cur, _ := decimal.NewFromString(current) // an empty balance reads as zero
	d, err := decimal.NewFromString(delta)
	if err != nil {
		return fmt.Errorf("invalid balance delta %q: %w", delta, err)
	}
	if cur.Add(d).IsNegative() {
		return fmt.Errorf("storage: insufficient spendable balance for user %s", userID)
	}
	result, err := tx.Exec(`
		UPDATE users SET spendable_balance = ?, updated_at = ? WHERE id = ?
	`, cur.Add(d).String(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("storage: insufficient spendable balance for user %s", userID)
	}
	return tx.Commit()
}

// CountActiveUsers returns how many users were created, or have touched their
// balance or follow state, since the given time, used as the active_users
// gauge source.
func (s *Storage) CountActiveUsers(since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM users WHERE COALESCE(updated_at, created_at) >= ?
	`, since.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// AdjustEscrowBalance adds delta to the escrow column, rejecting the mutation
// if it would drive the balance negative. Unlike AdjustSpendableBalance, the
// sum is computed by SQLite as a REAL and stored in its text form.
func (s *Storage) AdjustEscrowBalance(userID string, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE users SET escrow_balance = CAST(CAST(escrow_balance AS REAL) + ? AS TEXT), updated_at = ?
		WHERE id = ? AND CAST(escrow_balance AS REAL) + ? >= 0
	`, delta, time.Now().Unix(), userID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust escrow balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("storage: insufficient escrow balance for user %s", userID)
	}
	return nil
}
