// Package storage - append-only best-price snapshot log.
package storage

import (
	"fmt"
	"time"
)

// MarketSnapshot is one best-price observation, recorded opportunistically
// by the aggregator on each cache miss. Never read by a hot path; it exists
// for operator/troubleshooting queries only.
type MarketSnapshot struct {
	Network      string
	FromToken    string
	ToToken      string
	OutputAmount string // decimal string
	Venue        string
	SampledAt    time.Time
}

// RecordMarketSnapshot appends a snapshot row.
func (s *Storage) RecordMarketSnapshot(m *MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO market_data (network, from_token, to_token, output_amount, venue, sampled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Network, m.FromToken, m.ToToken, m.OutputAmount, m.Venue, m.SampledAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record market snapshot: %w", err)
	}
	return nil
}

// ListRecentSnapshots returns the most recent snapshots for a pair, newest first.
func (s *Storage) ListRecentSnapshots(network, fromToken, toToken string, limit int) ([]*MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT network, from_token, to_token, output_amount, venue, sampled_at
		FROM market_data
		WHERE network = ? AND from_token = ? AND to_token = ?
		ORDER BY sampled_at DESC
		LIMIT ?
	`, network, fromToken, toToken, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list market snapshots: %w", err)
	}
	defer rows.Close()

	var out []*MarketSnapshot
	for rows.Next() {
		var m MarketSnapshot
		var sampledAt int64
		if err := rows.Scan(&m.Network, &m.FromToken, &m.ToToken, &m.OutputAmount, &m.Venue, &sampledAt); err != nil {
			return nil, fmt.Errorf("failed to scan market snapshot: %w", err)
		}
		m.SampledAt = time.Unix(sampledAt, 0)
		out = append(out, &m)
	}
	return out, rows.Err()
}
