package vault

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/dbx"
)

// SQLiteVault keeps secrets in the vault_secrets table of the client database.
type SQLiteVault struct {
	db        *sql.DB
	namespace string
}

func NewSQLiteVault(db *sql.DB, namespace string) *SQLiteVault {
	return &SQLiteVault{db: db, namespace: namespace}
}

func (v *SQLiteVault) Save(ctx context.Context, account string, secret []byte) error {
	err := dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vault_secrets WHERE namespace = ? AND account = ?`, v.namespace, account); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vault_secrets (namespace, account, secret, created_at) VALUES (?, ?, ?, ?)`,
			v.namespace, account, secret, time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return newError("save", CodeWrite, err)
	}
	return nil
}

func (v *SQLiteVault) Load(ctx context.Context, account string) ([]byte, error) {
	var secret []byte
	err := v.db.QueryRowContext(ctx,
		`SELECT secret FROM vault_secrets WHERE namespace = ? AND account = ?`, v.namespace, account).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newError("load", CodeRead, err)
	}
	return secret, nil
}

func (v *SQLiteVault) Delete(ctx context.Context, account string) error {
	if _, err := v.db.ExecContext(ctx,
		`DELETE FROM vault_secrets WHERE namespace = ? AND account = ?`, v.namespace, account); err != nil {
		return newError("delete", CodeDelete, err)
	}
	return nil
}
