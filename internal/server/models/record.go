package models

import (
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/status"
)

// Record is one uploaded voice memo. Fields holds the pipeline results; the
// sensitive ones are stored as "v1:" envelopes.
type Record struct {
	ID         string
	UserID     string
	Status     status.Status
	StorageKey string
	ContactRef string
	Fields     map[string]string
	Duration   time.Duration
	OccurredAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Fields != nil {
		c.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// UserKey is a user's field encryption key sealed under the server KEK.
type UserKey struct {
	UserID    string
	SealedKey []byte
	Version   int
	CreatedAt time.Time
}
