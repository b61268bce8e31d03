// Package models defines the client-side data model of a voice memo record:
// the record itself, its payload fields, retry bookkeeping and the decrypted
// view handed to the UI.
package models

import (
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/status"
)

// TempIDPrefix marks ids minted locally before the server assigns one.
const TempIDPrefix = "tmp-"

// RetryState is present on a failed record only while the artifact needed
// to retry the upload is still held locally.
type RetryState struct {
	Attempts       int
	NextEligibleAt time.Time
	LastError      string
}

// Record is one voice memo as seen by the client.
type Record struct {
	ID           string
	OwnerID      string
	Status       status.Status
	Payload      map[string]Field
	ContactRef   string
	DurationHint time.Duration
	CreatedAt    time.Time
	OccurredAt   time.Time
	Retry        *RetryState
}

// IsTemporary reports whether the record still carries a local id.
func (r *Record) IsTemporary() bool {
	return len(r.ID) >= len(TempIDPrefix) && r.ID[:len(TempIDPrefix)] == TempIDPrefix
}

// Retryable reports whether a local retry of the upload is possible.
func (r *Record) Retryable() bool {
	return r.Status == status.Failed && r.Retry != nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = make(map[string]Field, len(r.Payload))
		for k, v := range r.Payload {
			c.Payload[k] = v
		}
	}
	if r.Retry != nil {
		rs := *r.Retry
		c.Retry = &rs
	}
	return &c
}

// ServerRecord is the authoritative state pushed or returned by the backend.
type ServerRecord struct {
	ID         string
	OwnerID    string
	Status     status.Status
	Fields     map[string]Field
	ContactRef string
	Duration   time.Duration
	CreatedAt  time.Time
	OccurredAt time.Time
}

// ToRecord converts the server state into a store record.
func (s *ServerRecord) ToRecord() *Record {
	r := &Record{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Status:       s.Status,
		ContactRef:   s.ContactRef,
		DurationHint: s.Duration,
		CreatedAt:    s.CreatedAt,
		OccurredAt:   s.OccurredAt,
		Payload:      make(map[string]Field, len(s.Fields)),
	}
	for k, v := range s.Fields {
		r.Payload[k] = v
	}
	return r
}

// View is a transient, display-ready rendering of a record. Decrypted values
// live only here and are never written back into the store.
type View struct {
	ID         string
	Status     status.Status
	Fields     map[string]string
	Degraded   []string
	ContactRef string
	Duration   time.Duration
	CreatedAt  time.Time
	OccurredAt time.Time
	Retry      *RetryState
}
