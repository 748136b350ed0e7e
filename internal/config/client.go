package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ClientConfig holds novactl configuration.
type ClientConfig struct {
	// APIURL is the base URL of the nova API (e.g. http://localhost:8080).
	APIURL string `mapstructure:"NOVA_API_URL"`
	// Token is the bearer token of the signed-in session. Empty means signed out.
	Token string `mapstructure:"NOVA_TOKEN"`
	// StateDir holds the durable selection database.
	StateDir string `mapstructure:"NOVA_STATE_DIR"`
	// Profile namespaces persisted selection, like a browser profile.
	Profile string `mapstructure:"NOVA_PROFILE"`
	// FetchTimeout bounds membership and tenant reads.
	FetchTimeout string `mapstructure:"NOVA_FETCH_TIMEOUT"`
	// BootstrapTimeout bounds a bootstrap call.
	BootstrapTimeout string `mapstructure:"NOVA_BOOTSTRAP_TIMEOUT"`
	// LogLevel is the zap level name.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// LoadClient reads .env (if present) and the environment into a ClientConfig.
func LoadClient() (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("NOVA_API_URL", "http://localhost:8080")
	v.SetDefault("NOVA_TOKEN", "")
	v.SetDefault("NOVA_STATE_DIR", defaultStateDir())
	v.SetDefault("NOVA_PROFILE", "default")
	v.SetDefault("NOVA_FETCH_TIMEOUT", "10s")
	v.SetDefault("NOVA_BOOTSTRAP_TIMEOUT", "20s")
	v.SetDefault("LOG_LEVEL", "warn")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, errors.New("config: NOVA_API_URL must be set")
	}
	if cfg.Profile == "" {
		cfg.Profile = "default"
	}
	return &cfg, nil
}

// SelectionPath is the sqlite file that stores the selected workspace.
func (c *ClientConfig) SelectionPath() string {
	return filepath.Join(c.StateDir, "selection.db")
}

// FetchTimeoutDuration returns the read deadline. Returns 10s if unset or invalid.
func (c *ClientConfig) FetchTimeoutDuration() time.Duration {
	return parsePositive(c.FetchTimeout, 10*time.Second)
}

// BootstrapTimeoutDuration returns the bootstrap deadline. Returns 20s if unset or invalid.
func (c *ClientConfig) BootstrapTimeoutDuration() time.Duration {
	return parsePositive(c.BootstrapTimeout, 20*time.Second)
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "nova")
	}
	return ".nova"
}
