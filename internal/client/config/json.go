package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/memokeeper/internal/flagx"
	"github.com/dmitrijs2005/memokeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept "3s" or
// integer nanoseconds. Absent keys leave the current value alone.
type JsonConfig struct {
	ServerEndpointAddr   string         `json:"server_endpoint_addr"`
	OnlineCheckInterval  timex.Duration `json:"online_check_interval"`
	DatabasePath         string         `json:"database_path"`
	VaultBackend         string         `json:"vault_backend"`
	ServiceNamespace     string         `json:"service_namespace"`
	ArtifactsDir         string         `json:"artifacts_dir"`
	MaxConcurrentUploads int            `json:"max_concurrent_uploads"`
	MaxUploadAttempts    int            `json:"max_upload_attempts"`
	RetryInitialInterval timex.Duration `json:"retry_initial_interval"`
	RetryMaxInterval     timex.Duration `json:"retry_max_interval"`
	MetricsAddr          string         `json:"metrics_addr"`
	LogLevel             string         `json:"log_level"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays cfg with the file named by -c/-config, if any. Panics
// on read or decode errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.VaultBackend, jc.VaultBackend)
	setString(&cfg.ServiceNamespace, jc.ServiceNamespace)
	setString(&cfg.ArtifactsDir, jc.ArtifactsDir)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RetryInitialInterval.Duration > 0 {
		cfg.RetryInitialInterval = jc.RetryInitialInterval.Duration
	}
	if jc.RetryMaxInterval.Duration > 0 {
		cfg.RetryMaxInterval = jc.RetryMaxInterval.Duration
	}
	if jc.MaxConcurrentUploads > 0 {
		cfg.MaxConcurrentUploads = jc.MaxConcurrentUploads
	}
	if jc.MaxUploadAttempts > 0 {
		cfg.MaxUploadAttempts = jc.MaxUploadAttempts
	}
}
