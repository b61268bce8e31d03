// Package refreshtokens stores the rotating refresh tokens of the
// authentication flow.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/server/models"
)

type Repository interface {
	// Create stores a new refresh token for userID that expires after validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns common.ErrorNotFound for an unknown token.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete is a no-op for an unknown token.
	Delete(ctx context.Context, token string) error

	// DeleteExpired drops the tokens of userID that expired before now.
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}
