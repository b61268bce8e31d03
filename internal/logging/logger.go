// Package logging is the structured logger seam of memokeeper. Components
// take a Logger in their constructor and tag it with With("module", name).
package logging

import "context"

// Logger writes leveled, structured records. Args are alternating keys and
// values:
//
//	log.Info(ctx, "upload finished", "temp_id", tempID, "server_id", id)
//
// Field values must never carry key material or decrypted field text.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}
