// Package storage - Pending order persistence.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OrderKeyPrefix prefixes every pending-order key.
const OrderKeyPrefix = "order_"

// Order errors
var ErrOrderNotFound = errors.New("order not found")

// PendingOrder is one submitted, unsettled transaction. It survives
// restarts, so the reconciliation engine can rebuild its working set by
// scanning keys.
type PendingOrder struct {
	TxHash    string  `json:"txHash"`
	FromToken string  `json:"fromToken"`
	ToToken   string  `json:"toToken"`
	Amount    float64 `json:"amount"`
	ToAmount  float64 `json:"toAmount"`
	Status    string  `json:"status"`
	OrderID   string  `json:"orderId"`

	// LastChecked is the unix-millisecond timestamp of the last poll.
	LastChecked int64 `json:"lastChecked"`

	// LastAnnounced is the most recent status announced to the user.
	// Persisted so a restart does not repeat non-terminal notifications.
	LastAnnounced string `json:"lastAnnounced,omitempty"`
}

// Key returns the storage key for the order.
func (o *PendingOrder) Key() string {
	return OrderKey(o.TxHash)
}

// OrderKey builds the storage key for a transaction hash.
func OrderKey(txHash string) string {
	return OrderKeyPrefix + txHash
}

// SavePendingOrder inserts or replaces a pending order record.
func (s *Storage) SavePendingOrder(order *PendingOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	return s.PutRaw(order.Key(), string(data))
}

// GetPendingOrder retrieves and parses a pending order by key.
func (s *Storage) GetPendingOrder(key string) (*PendingOrder, error) {
	raw, err := s.GetRaw(key)
	if err != nil {
		return nil, err
	}

	var order PendingOrder
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, fmt.Errorf("failed to parse order %s: %w", key, err)
	}

	return &order, nil
}

// ListOrderKeys returns the keys of all persisted pending orders.
func (s *Storage) ListOrderKeys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT key FROM pending_orders WHERE key LIKE ? ORDER BY updated_at",
		OrderKeyPrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list order keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan order key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// DeletePendingOrder removes a pending order record.
func (s *Storage) DeletePendingOrder(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM pending_orders WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// PutRaw stores a raw value under a key (insert or replace).
func (s *Storage) PutRaw(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pending_orders (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to store order: %w", err)
	}

	return nil
}

// GetRaw retrieves the raw stored value for a key.
func (s *Storage) GetRaw(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM pending_orders WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get order: %w", err)
	}

	return value, nil
}
