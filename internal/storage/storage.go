// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the trading core.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tradecore.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Snapshot writes a consistent point-in-time copy of the database to
// destDir using SQLite's VACUUM INTO, and returns the snapshot's path. Used
// by the scheduled local backup job; shipping the file off-site is out of
// scope here.
func (s *Storage) Snapshot(destDir string, at time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest := filepath.Join(destDir, fmt.Sprintf("tradecore-%s.db", at.UTC().Format("20060102T150405Z")))
	if _, err := s.db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}
	return dest, nil
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Users/followers table.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		handle TEXT UNIQUE,
		spendable_balance TEXT NOT NULL DEFAULT '0',
		escrow_balance TEXT NOT NULL DEFAULT '0',
		rating_sum TEXT NOT NULL DEFAULT '0',
		rating_count INTEGER NOT NULL DEFAULT 0,
		following_trader_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_users_following ON users(following_trader_id);

	-- Spot orders (MARKET, STOP_LOSS, TAKE_PROFIT).
	CREATE TABLE IF NOT EXISTS spot_orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_type TEXT NOT NULL,
		side TEXT NOT NULL,
		network TEXT NOT NULL,
		from_token TEXT NOT NULL,
		to_token TEXT NOT NULL,
		input_amount TEXT NOT NULL,
		trigger_price TEXT,
		max_slippage_bps INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'PENDING',
		filled_output_amount TEXT,
		filled_venue TEXT,
		execution_details TEXT,
		failure_reason TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_spot_orders_user ON spot_orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_spot_orders_status ON spot_orders(status);
	CREATE INDEX IF NOT EXISTS idx_spot_orders_trigger ON spot_orders(status, order_type, network, from_token, to_token);

	-- P2P escrow orders.
	CREATE TABLE IF NOT EXISTS p2p_orders (
		id TEXT PRIMARY KEY,
		maker_id TEXT NOT NULL,
		taker_id TEXT,
		side TEXT NOT NULL,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		amount TEXT NOT NULL,
		price TEXT NOT NULL,
		fiat_currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		escrow_ref TEXT,
		dispute_reason TEXT,
		dispute_evidence TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		expires_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_p2p_orders_status ON p2p_orders(status);
	CREATE INDEX IF NOT EXISTS idx_p2p_orders_maker ON p2p_orders(maker_id);
	CREATE INDEX IF NOT EXISTS idx_p2p_orders_taker ON p2p_orders(taker_id);
	CREATE INDEX IF NOT EXISTS idx_p2p_orders_expires ON p2p_orders(expires_at);
	CREATE INDEX IF NOT EXISTS idx_p2p_orders_pair ON p2p_orders(asset, network, status);

	-- P2P in-deal chat messages.
	CREATE TABLE IF NOT EXISTS p2p_messages (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		FOREIGN KEY (order_id) REFERENCES p2p_orders(id)
	);

	CREATE INDEX IF NOT EXISTS idx_p2p_messages_order ON p2p_messages(order_id, created_at);

	-- P2P post-trade reviews.
	CREATE TABLE IF NOT EXISTS p2p_reviews (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		reviewer_id TEXT NOT NULL,
		reviewee_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,

		FOREIGN KEY (order_id) REFERENCES p2p_orders(id),
		UNIQUE(order_id, reviewer_id)
	);

	CREATE INDEX IF NOT EXISTS idx_p2p_reviews_reviewee ON p2p_reviews(reviewee_id);

	-- Balance-mutation ledger: withdrawals, escrow transfers, fees.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		ref_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_ref ON transactions(ref_id);

	-- Append-only best-price snapshots, written on aggregator cache-miss.
	CREATE TABLE IF NOT EXISTS market_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		network TEXT NOT NULL,
		from_token TEXT NOT NULL,
		to_token TEXT NOT NULL,
		output_amount TEXT NOT NULL,
		venue TEXT NOT NULL,
		sampled_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_market_data_pair ON market_data(network, from_token, to_token, sampled_at);

	-- Outbound notification queue (pending delivery with retry).
	CREATE TABLE IF NOT EXISTS notification_outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		retry_count INTEGER DEFAULT 0,
		last_attempt_at INTEGER,
		next_retry_at INTEGER NOT NULL,
		delivered_at INTEGER,
		status TEXT DEFAULT 'pending',
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending ON notification_outbox(status, next_retry_at)
		WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_outbox_user ON notification_outbox(user_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
