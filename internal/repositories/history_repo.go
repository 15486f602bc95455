package repositories

import (
	"context"
	"fmt"

	"github.com/calderauth/caldera/pkg/password"
	"github.com/jackc/pgx/v5/pgxpool"
)

// historyRepoImpl is the durable password.HistoryStore. Entries are salted
// hashes only; plaintext never reaches this layer.
type historyRepoImpl struct {
	db *pgxpool.Pool
}

// NewHistoryRepository creates a Postgres-backed password history store
func NewHistoryRepository(db *pgxpool.Pool) password.HistoryStore {
	return &historyRepoImpl{db: db}
}

func (r *historyRepoImpl) Record(ctx context.Context, accountID, hash string, max int) error {
	insert := `
		INSERT INTO password_history (user_id, password_hash)
		VALUES ($1, $2)
	`
	if _, err := r.db.Exec(ctx, insert, accountID, hash); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	// Evict everything beyond the newest max entries
	prune := `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`
	if _, err := r.db.Exec(ctx, prune, accountID, max); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	return nil
}

func (r *historyRepoImpl) RecentHashes(ctx context.Context, accountID string, limit int) ([]string, error) {
	query := `
		SELECT password_hash
		FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		hashes = append(hashes, hash)
	}

	return hashes, rows.Err()
}
