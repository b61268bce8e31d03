// Package cli provides the interactive memokeeper command-line client.
//
// It wires configuration, the local database, the key vault, the gRPC API
// client and the sync Session behind a small REPL. Typical flow: prompt for
// credentials, start a background connectivity watcher, then execute user
// commands.
//
// Commands:
//   - register, login (online with offline fallback), logout
//   - record <path> [contact]: import a recording and upload it
//   - list, show <id>: display records, decrypting fields when possible
//   - retry <id>, delete <id>
//
// Upload failures are reported asynchronously in color while the prompt is
// active. The REPL is started via App.Run(ctx), which blocks until exit.
package cli
