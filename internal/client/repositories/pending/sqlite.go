package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `temp_id, owner_id, artifact_path, content_type, contact_ref, payload,
	duration_ms, occurred_at, created_at, attempts, last_error`

func (r *SQLiteRepository) Save(ctx context.Context, p *models.PendingUpload) error {
	payload, err := json.Marshal(p.Meta.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload[%s]: %w", p.TempID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_uploads (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			artifact_path = excluded.artifact_path
	`,
		p.TempID, p.OwnerID, p.Artifact.Path, p.Artifact.ContentType, p.Meta.ContactRef, string(payload),
		p.DurationHint.Milliseconds(), timex.ToEpochMillis(p.Meta.OccurredAt), p.CreatedAt.UnixMilli(),
		p.Attempts, p.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending upload[%s]: %w", p.TempID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, tempID string) (*models.PendingUpload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_uploads WHERE temp_id = ?`, tempID)
	p, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending upload[%s]: %w", tempID, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PendingUpload, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM pending_uploads WHERE owner_id = ? ORDER BY created_at, temp_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingUpload
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending upload row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending upload rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, tempID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_uploads WHERE temp_id = ?`, tempID); err != nil {
		return fmt.Errorf("failed to delete pending upload[%s]: %w", tempID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_uploads WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete pending uploads of %s: %w", ownerID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.PendingUpload, error) {
	var (
		p                               models.PendingUpload
		payload                         string
		durationMs, occurredMs, created int64
	)
	err := s.Scan(&p.TempID, &p.OwnerID, &p.Artifact.Path, &p.Artifact.ContentType, &p.Meta.ContactRef,
		&payload, &durationMs, &occurredMs, &created, &p.Attempts, &p.LastError)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Meta.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	occurred, err := timex.FromEpochMillis(occurredMs)
	if err != nil {
		return nil, err
	}
	p.Meta.OwnerID = p.OwnerID
	p.Meta.OccurredAt = occurred
	p.DurationHint = time.Duration(durationMs) * time.Millisecond
	p.CreatedAt = time.UnixMilli(created)
	return &p, nil
}
