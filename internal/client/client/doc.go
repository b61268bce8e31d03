// Package client talks to the memokeeper backend.
//
// # Overview
//
// The package provides:
//  1. The Client contract used by the session layer: account calls
//     (Register, GetSalt, Login), key exchange, record upload and listing,
//     and the two push streams (Subscribe, WatchDeletions).
//  2. GRPCClient, the gRPC implementation. It injects the access token with
//     unary and stream interceptors, refreshes an expired token once per
//     call, reconnects push streams with exponential backoff and maps gRPC
//     status codes to sentinel errors.
//  3. InitDatabase and RunMigrations, which open the local SQLite database
//     and apply the embedded goose migrations.
//
// GRPCClient satisfies keys.Exchanger, upload.Uploader and
// reconcile.Channel.
//
// # Error Handling
//
// Match ErrUnavailable, ErrUnauthorized, ErrNotFound and
// ErrEncryptionNotEnabled with errors.Is. Stream failures are reported to
// the subscriber as reconcile.Update values wrapping
// reconcile.ErrSubscriptionTransport.
package client
