package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/calderauth/caldera/internal/models"
)

// MemoryCredentialRepository is an in-memory CredentialRepository used in
// tests and as the storage-free wiring for local development.
type MemoryCredentialRepository struct {
	mu     sync.RWMutex
	states map[string]*models.CredentialState
}

// NewMemoryCredentialRepository creates an empty in-memory repository
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{states: make(map[string]*models.CredentialState)}
}

func (r *MemoryCredentialRepository) Load(_ context.Context, userID string) (*models.CredentialState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneState(state), nil
}

func (r *MemoryCredentialRepository) Save(_ context.Context, state *models.CredentialState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := cloneState(state)
	// CreatedAt is written as given so that replacing a pending setup
	// restarts its expiry clock.
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.states[state.UserID] = stored
	state.CreatedAt = stored.CreatedAt
	state.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryCredentialRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.states[userID]; !ok {
		return models.ErrNotFound
	}
	delete(r.states, userID)
	return nil
}

func (r *MemoryCredentialRepository) DeleteExpiredPending(_ context.Context, threshold time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, state := range r.states {
		if state.Status == models.TwoFactorPendingSetup && state.CreatedAt.Before(threshold) {
			delete(r.states, id)
			removed++
		}
	}
	return removed, nil
}

func cloneState(s *models.CredentialState) *models.CredentialState {
	out := *s
	out.SecretEncrypted = append([]byte(nil), s.SecretEncrypted...)
	out.SecretNonce = append([]byte(nil), s.SecretNonce...)
	out.BackupCodes = append([]models.CodeEntry(nil), s.BackupCodes...)
	out.RecoveryCodes = append([]models.CodeEntry(nil), s.RecoveryCodes...)
	return &out
}
