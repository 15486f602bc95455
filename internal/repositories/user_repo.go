package repositories

import (
	"context"
	"time"

	"github.com/calderauth/caldera/internal/database"
	"github.com/calderauth/caldera/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository persists account records
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetTwoFactor(ctx context.Context, id string, enabled bool, at *time.Time) error
}

type userRepoImpl struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a Postgres-backed user repository
func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepoImpl{db: db}
}

const userColumns = `
	id, email, password_hash, name, role,
	two_factor_enabled, two_factor_at, password_changed_at,
	created_at, updated_at
`

func (r *userRepoImpl) scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.TwoFactorEnabled,
		&user.TwoFactorAt,
		&user.PasswordChangedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return user, nil
}

func (r *userRepoImpl) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *userRepoImpl) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *userRepoImpl) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, name, role, password_changed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	return r.scanUser(r.db.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.PasswordChangedAt,
	))
}

func (r *userRepoImpl) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, passwordHash, changedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *userRepoImpl) SetTwoFactor(ctx context.Context, id string, enabled bool, at *time.Time) error {
	query := `
		UPDATE users
		SET two_factor_enabled = $2, two_factor_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, enabled, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
