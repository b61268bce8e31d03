// Package models defines the server-side rows persisted in PostgreSQL.
package models

import "time"

type User struct {
	ID                string
	UserName          string
	Salt              []byte
	Verifier          []byte
	EncryptionEnabled bool
	CreatedAt         time.Time
}
