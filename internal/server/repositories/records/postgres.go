package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/common"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/server/models"
	"github.com/dmitrijs2005/memokeeper/internal/status"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encodeFields(f map[string]string) (string, error) {
	if len(f) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.Record) error {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO records (id, user_id, status, storage_key, contact_ref, fields, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		rec.ID, rec.UserID, string(rec.Status), rec.StorageKey, rec.ContactRef, fields,
		rec.Duration.Milliseconds(), rec.OccurredAt,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectRecord = `SELECT id, user_id, status, storage_key, contact_ref, fields, duration_ms, occurred_at, created_at, updated_at FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec    models.Record
		st     string
		fields []byte
		durMs  int64
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &st, &rec.StorageKey, &rec.ContactRef, &fields,
		&durMs, &rec.OccurredAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = status.Status(st)
	rec.Duration = time.Duration(durMs) * time.Millisecond
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, id string) (*models.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	return r.getOne(ctx, selectRecord+` WHERE id = $1`, id)
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*models.Record, error) {
	return r.getOne(ctx, selectRecord+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectRecord+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// Update writes the mutable columns: status, fields and duration.
func (r *PostgresRepository) Update(ctx context.Context, rec *models.Record) error {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return err
	}
	query := `
		UPDATE records SET status = $2, fields = $3, duration_ms = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query, rec.ID, string(rec.Status), fields, rec.Duration.Milliseconds()).
		Scan(&rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
