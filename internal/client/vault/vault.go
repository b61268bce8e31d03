// Package vault is the secure key-value store behind the key manager. Secrets
// are addressed by (namespace, account); the namespace is fixed per
// installation and the account is the owner id.
//
// Two backends exist: the OS keychain through 99designs/keyring, and a table
// in the client SQLite database for hosts without a keychain. Nothing but the
// key manager talks to a Vault.
package vault

import (
	"context"
	"fmt"
)

// Vault stores opaque secrets.
//
// Absence is never an error: Load returns (nil, nil) and Delete of a missing
// entry succeeds. Save replaces any existing value by delete-then-add.
type Vault interface {
	Save(ctx context.Context, account string, secret []byte) error
	Load(ctx context.Context, account string) ([]byte, error)
	Delete(ctx context.Context, account string) error
}

// Code classifies storage failures.
type Code string

const (
	CodeUnavailable Code = "unavailable"
	CodeRead        Code = "read"
	CodeWrite       Code = "write"
	CodeDelete      Code = "delete"
)

// Error is a backend storage failure.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vault %s (%s): %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}
