// Package keys stores the sealed field encryption keys of users.
package keys

import (
	"context"

	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, userID string) (*models.UserKey, error)
	// Insert stores the key unless the user already has one and reports
	// whether a row was written.
	Insert(ctx context.Context, key *models.UserKey) (bool, error)
}
