package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-i", "-d", "-v", "-n", "-f", "-w", "-r", "-m", "-l"}

// parseFlags overlays cfg with the short command-line flags. Unknown
// arguments are filtered out with flagx.FilterArgs first. Panics on bad
// values.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local SQLite database")
	fs.StringVar(&cfg.VaultBackend, "v", cfg.VaultBackend, "key vault backend: keyring or sqlite")
	fs.StringVar(&cfg.ServiceNamespace, "n", cfg.ServiceNamespace, "vault service namespace")
	fs.StringVar(&cfg.ArtifactsDir, "f", cfg.ArtifactsDir, "directory holding recordings until they are uploaded")
	fs.IntVar(&cfg.MaxConcurrentUploads, "w", cfg.MaxConcurrentUploads, "concurrent uploads")
	fs.IntVar(&cfg.MaxUploadAttempts, "r", cfg.MaxUploadAttempts, "automatic upload attempts per record")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "address of the Prometheus exporter, empty to disable")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
