package password

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Reuse-history defaults, overridable per policy tier
const (
	DefaultHistoryLimit = 5  // entries consulted during a reuse check
	DefaultMaxHistory   = 10 // entries retained per account
)

// HistoryStore persists previously accepted passwords as salted hashes,
// most-recent-first. An in-memory implementation backs the unit tests; the
// Postgres implementation lives in internal/repositories.
type HistoryStore interface {
	// Record prepends a hash for the account and evicts the oldest
	// entries beyond max.
	Record(ctx context.Context, accountID, hash string, max int) error
	// RecentHashes returns up to limit hashes, newest first.
	RecentHashes(ctx context.Context, accountID string, limit int) ([]string, error)
}

// RecordHistory hashes an accepted password and stores it in the account's
// history, bounded to max entries.
func RecordHistory(ctx context.Context, store HistoryStore, accountID, password string, max int) error {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	hash, err := Hash(password)
	if err != nil {
		return err
	}
	if err := store.Record(ctx, accountID, hash, max); err != nil {
		return fmt.Errorf("failed to record password history: %w", err)
	}
	return nil
}

// IsRecentlyUsed reports whether the candidate matches any of the account's
// most recent limit history entries.
func IsRecentlyUsed(ctx context.Context, store HistoryStore, accountID, candidate string, limit int) (bool, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	hashes, err := store.RecentHashes(ctx, accountID, limit)
	if err != nil {
		return false, fmt.Errorf("failed to load password history: %w", err)
	}
	for _, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil {
			return true, nil
		}
	}
	return false, nil
}

// MemoryHistory is a process-local HistoryStore. It does not survive a
// restart and is not shared across instances; production deployments use
// the durable implementation.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries map[string][]string // newest first
}

// NewMemoryHistory creates an empty in-memory history store
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string][]string)}
}

func (m *MemoryHistory) Record(_ context.Context, accountID, hash string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]string{hash}, m.entries[accountID]...)
	if len(list) > max {
		list = list[:max]
	}
	m.entries[accountID] = list
	return nil
}

func (m *MemoryHistory) RecentHashes(_ context.Context, accountID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[accountID]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

// Len returns the number of stored entries for an account
func (m *MemoryHistory) Len(accountID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[accountID])
}
