package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserKey, error) {
	k := &models.UserKey{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT sealed_key, version, created_at FROM user_keys WHERE user_id = $1`, userID,
	).Scan(&k.SealedKey, &k.Version, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, key *models.UserKey) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_keys (user_id, sealed_key, version)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, key.UserID, key.SealedKey, key.Version)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
