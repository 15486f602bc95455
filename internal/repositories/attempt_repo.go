package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calderauth/caldera/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository records two-factor verification attempts. The account
// service counts recent failures here before comparing any code, which is
// where brute-force protection lives.
type AttemptRepository interface {
	Record(ctx context.Context, attempt *models.VerificationAttempt) error
	FailedCountSince(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

type attemptRepoImpl struct {
	db *pgxpool.Pool
}

// NewAttemptRepository creates a Postgres-backed attempt repository
func NewAttemptRepository(db *pgxpool.Pool) AttemptRepository {
	return &attemptRepoImpl{db: db}
}

func (r *attemptRepoImpl) Record(ctx context.Context, attempt *models.VerificationAttempt) error {
	query := `
		INSERT INTO verification_attempts
			(user_id, device_fingerprint, ip_address, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, attempted_at
	`

	err := r.db.QueryRow(ctx, query,
		attempt.UserID,
		attempt.DeviceFingerprint,
		attempt.IPAddress,
		attempt.Success,
		attempt.FailureReason,
	).Scan(&attempt.ID, &attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record verification attempt: %w", err)
	}

	return nil
}

func (r *attemptRepoImpl) FailedCountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM verification_attempts
		WHERE user_id = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed attempts: %w", err)
	}
	return count, nil
}

func (r *attemptRepoImpl) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM verification_attempts WHERE attempted_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MemoryAttemptRepository is an in-memory AttemptRepository for tests
type MemoryAttemptRepository struct {
	mu       sync.Mutex
	attempts []models.VerificationAttempt
	nextID   int
}

// NewMemoryAttemptRepository creates an empty in-memory attempt repository
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{}
}

func (r *MemoryAttemptRepository) Record(_ context.Context, attempt *models.VerificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	attempt.ID = fmt.Sprintf("attempt-%d", r.nextID)
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *MemoryAttemptRepository) FailedCountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, a := range r.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryAttemptRepository) DeleteOlderThan(_ context.Context, threshold time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.attempts[:0]
	var removed int64
	for _, a := range r.attempts {
		if a.AttemptedAt.Before(threshold) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return removed, nil
}
