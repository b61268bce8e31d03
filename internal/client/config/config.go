package config

import "time"

// Config holds runtime settings of the memokeeper client.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration

	DatabasePath string
	// VaultBackend is "keyring" (OS secret store) or "sqlite".
	VaultBackend     string
	ServiceNamespace string
	ArtifactsDir     string

	MaxConcurrentUploads int
	MaxUploadAttempts    int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	MetricsAddr string
	LogLevel    string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "memokeeper.db"
	c.VaultBackend = "keyring"
	c.ServiceNamespace = "memokeeper"
	c.ArtifactsDir = "artifacts"
	c.MaxConcurrentUploads = 2
	c.MaxUploadAttempts = 5
	c.RetryInitialInterval = 2 * time.Second
	c.RetryMaxInterval = time.Minute
	c.MetricsAddr = ""
	c.LogLevel = "warn"
}

// LoadConfig applies defaults, then the JSON file (if any), then flags.
// Later sources take precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
