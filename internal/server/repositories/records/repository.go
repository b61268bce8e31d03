// Package records persists memo records of all users.
package records

import (
	"context"

	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.Record) error
	GetByID(ctx context.Context, id string) (*models.Record, error)
	// LockByID is GetByID with a row lock; use it inside a transaction.
	LockByID(ctx context.Context, id string) (*models.Record, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Record, error)
	Update(ctx context.Context, rec *models.Record) error
	Delete(ctx context.Context, userID, id string) error
}
