package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-w", "-d", "-s", "-t", "-r", "-k", "-q", "-n", "-x", "-u", "-p", "-b", "-g", "-e", "-l"}

// parseFlags populates Config from the short command-line flags.
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-w string   HTTP side port for metrics and health
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-k string   key encryption secret
//	-q string   pipeline token
//	-n bool     enable field encryption for new accounts
//	-x int      presigned URL expiry, minutes
//	-u, -p      S3 root user and password
//	-b, -g, -e  S3 bucket, region and base endpoint
//	-l string   log level
//
// Unknown arguments are dropped by flagx.FilterArgs. Panics on bad values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.EndpointAddrHTTP, "w", config.EndpointAddrHTTP, "address of the metrics and health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.KeyEncryptionSecret, "k", config.KeyEncryptionSecret, "secret the user key encryption key is derived from")
	fs.StringVar(&config.PipelineToken, "q", config.PipelineToken, "processing pipeline token")
	fs.BoolVar(&config.EncryptionEnabledDefault, "n", config.EncryptionEnabledDefault, "field encryption for new accounts")
	presignExpiry := fs.Int("x", int(config.PresignExpiry.Minutes()), "presigned URL expiry (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.PresignExpiry = time.Duration(*presignExpiry) * time.Minute
}
