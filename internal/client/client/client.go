package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/reconcile"
)

type Client interface {
	Close() error
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	// Login returns the account id.
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	Logout()
	Ping(ctx context.Context) error
	ExchangeKey(ctx context.Context) (*models.KeyMaterial, error)
	CreateRecord(ctx context.Context, artifact models.Artifact, meta models.RecordMeta, durationHint time.Duration) (*models.ServerRecord, error)
	ListRecords(ctx context.Context) ([]*models.ServerRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	Subscribe(ctx context.Context, serverID string, onUpdate func(reconcile.Update)) (reconcile.Handle, error)
	WatchDeletions(ctx context.Context, onDelete func(id string)) (reconcile.Handle, error)
}
