package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calderauth/caldera/internal/database"
	"github.com/calderauth/caldera/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository persists per-account two-factor state. The engines
// never touch storage; the account service loads state, hands values to the
// engines and saves the result.
type CredentialRepository interface {
	Load(ctx context.Context, userID string) (*models.CredentialState, error)
	Save(ctx context.Context, state *models.CredentialState) error
	Delete(ctx context.Context, userID string) error
	// DeleteExpiredPending removes unconfirmed enrollments created before
	// the threshold. Returns the number of rows removed.
	DeleteExpiredPending(ctx context.Context, threshold time.Time) (int64, error)
}

type credentialRepoImpl struct {
	db *pgxpool.Pool
}

// NewCredentialRepository creates a Postgres-backed credential repository
func NewCredentialRepository(db *pgxpool.Pool) CredentialRepository {
	return &credentialRepoImpl{db: db}
}

func (r *credentialRepoImpl) Load(ctx context.Context, userID string) (*models.CredentialState, error) {
	query := `
		SELECT user_id, status, secret_encrypted, secret_nonce,
		       backup_codes, recovery_codes, last_used_at,
		       created_at, confirmed_at, updated_at
		FROM account_credentials
		WHERE user_id = $1
	`

	state := &models.CredentialState{}
	var backupJSON, recoveryJSON []byte

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&state.UserID,
		&state.Status,
		&state.SecretEncrypted,
		&state.SecretNonce,
		&backupJSON,
		&recoveryJSON,
		&state.LastUsedAt,
		&state.CreatedAt,
		&state.ConfirmedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(backupJSON, &state.BackupCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup codes: %w", err)
	}
	if err := json.Unmarshal(recoveryJSON, &state.RecoveryCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recovery codes: %w", err)
	}

	return state, nil
}

func (r *credentialRepoImpl) Save(ctx context.Context, state *models.CredentialState) error {
	backupJSON, err := json.Marshal(state.BackupCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}
	recoveryJSON, err := json.Marshal(state.RecoveryCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal recovery codes: %w", err)
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}

	// created_at is written as given so that replacing a pending setup
	// restarts its expiry clock.
	query := `
		INSERT INTO account_credentials
			(user_id, status, secret_encrypted, secret_nonce,
			 backup_codes, recovery_codes, last_used_at, confirmed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			backup_codes = EXCLUDED.backup_codes,
			recovery_codes = EXCLUDED.recovery_codes,
			last_used_at = EXCLUDED.last_used_at,
			confirmed_at = EXCLUDED.confirmed_at,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		state.UserID,
		state.Status,
		state.SecretEncrypted,
		state.SecretNonce,
		backupJSON,
		recoveryJSON,
		state.LastUsedAt,
		state.ConfirmedAt,
		state.CreatedAt,
	).Scan(&state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *credentialRepoImpl) Delete(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM account_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *credentialRepoImpl) DeleteExpiredPending(ctx context.Context, threshold time.Time) (int64, error) {
	query := `
		DELETE FROM account_credentials
		WHERE status = $1 AND created_at < $2
	`

	tag, err := r.db.Exec(ctx, query, models.TwoFactorPendingSetup, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pending setups: %w", err)
	}
	return tag.RowsAffected(), nil
}
