// Package config loads runtime configuration for the memokeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-i int      online status check interval (seconds)
//	-d string   local SQLite database path
//	-v string   key vault backend (keyring, sqlite)
//	-n string   vault service namespace
//	-f string   artifacts directory
//	-w int      concurrent uploads
//	-r int      automatic upload attempts per record
//	-m string   Prometheus exporter address (empty disables it)
//	-l string   log level
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "vault_backend": "keyring",
//	  "artifacts_dir": "artifacts",
//	  "retry_initial_interval": "2s"
//	}
package config
