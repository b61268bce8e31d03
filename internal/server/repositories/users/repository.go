// Package users stores accounts and their login verifiers.
package users

import (
	"context"

	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

// Repository looks up and creates accounts. Lookups of a missing account
// return common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}
