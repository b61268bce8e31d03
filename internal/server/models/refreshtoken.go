package models

import "time"

// RefreshToken is one issued refresh token. Tokens are single use: a
// refresh deletes the presented row and inserts its successor.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}
