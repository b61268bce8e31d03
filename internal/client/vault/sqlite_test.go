package vault

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/memokeeper/internal/client/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return db
}

func TestSQLiteVault_SaveLoadDelete(t *testing.T) {
	v := NewSQLiteVault(setupDB(t), "memokeeper")
	ctx := context.Background()

	got, err := v.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, v.Save(ctx, "u1", []byte("k1")))
	require.NoError(t, v.Save(ctx, "u1", []byte("k2")))

	got, err = v.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []byte("k2"), got)

	require.NoError(t, v.Delete(ctx, "u1"))
	require.NoError(t, v.Delete(ctx, "u1"))

	got, err = v.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteVault_NamespacesAreIsolated(t *testing.T) {
	db := setupDB(t)
	a := NewSQLiteVault(db, "ns-a")
	b := NewSQLiteVault(db, "ns-b")
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, "u1", []byte("from-a")))

	got, err := b.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteVault_StorageErrors(t *testing.T) {
	db := setupDB(t)
	v := NewSQLiteVault(db, "ns")
	ctx := context.Background()
	require.NoError(t, db.Close())

	var verr *Error
	_, err := v.Load(ctx, "u1")
	require.ErrorAs(t, err, &verr)
	require.Equal(t, CodeRead, verr.Code)

	require.ErrorAs(t, v.Save(ctx, "u1", []byte("k")), &verr)
	require.Equal(t, CodeWrite, verr.Code)

	require.ErrorAs(t, v.Delete(ctx, "u1"), &verr)
	require.Equal(t, CodeDelete, verr.Code)
}
