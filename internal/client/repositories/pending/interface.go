// Package pending journals uploads that have not reached the server yet, so
// a failed or interrupted upload can be resumed after the client restarts.
package pending

import (
	"context"

	"github.com/dmitrijs2005/memokeeper/internal/client/models"
)

type Repository interface {
	// Save inserts or replaces the journal row for p.TempID.
	Save(ctx context.Context, p *models.PendingUpload) error
	// Get returns (nil, nil) when tempID is not journaled.
	Get(ctx context.Context, tempID string) (*models.PendingUpload, error)
	// ListByOwner returns the owner's rows, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PendingUpload, error)
	// Delete is idempotent.
	Delete(ctx context.Context, tempID string) error
	// DeleteByOwner drops every row of the owner.
	DeleteByOwner(ctx context.Context, ownerID string) error
}
