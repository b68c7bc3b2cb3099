// Package config provides configuration for the prophet daemon. All tunable
// parameters (backend endpoints, poll intervals, storage location) are
// defined here; nothing else in the codebase hardcodes them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the config file inside the data directory.
const ConfigFileName = "config.yaml"

// Config holds all configuration for the prophet daemon.
type Config struct {
	// API is the listen address for the widget WebSocket endpoint.
	API APIConfig `yaml:"api"`

	// Backend configures the remote quoting/order service.
	Backend BackendConfig `yaml:"backend"`

	// Reconcile configures the pending-order reconciliation engine.
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Explorer configures transaction-explorer links in chat messages.
	Explorer ExplorerConfig `yaml:"explorer"`

	// Storage configures the durable order store.
	Storage StorageConfig `yaml:"storage"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds the widget-facing server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// BackendConfig holds the exchange backend settings.
type BackendConfig struct {
	// URL is the base URL of the quoting/order backend.
	URL string `yaml:"url"`

	// RequestTimeout bounds each backend HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AssetRefreshInterval is how often the DEX asset list is refreshed.
	AssetRefreshInterval time.Duration `yaml:"asset_refresh_interval"`

	// PriorityFee is the priority fee passed to token transfers, in KAS.
	PriorityFee float64 `yaml:"priority_fee"`
}

// ReconcileConfig holds the reconciliation engine settings.
type ReconcileConfig struct {
	// Interval is the poll interval for pending-order status checks.
	Interval time.Duration `yaml:"interval"`
}

// ExplorerConfig holds explorer link settings.
type ExplorerConfig struct {
	// TxURL is the base URL for transaction links.
	TxURL string `yaml:"tx_url"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr: "127.0.0.1:8790",
		},
		Backend: BackendConfig{
			URL:                  "https://api.safunet.com/v1/Prophet",
			RequestTimeout:       30 * time.Second,
			AssetRefreshInterval: 5 * time.Minute,
			PriorityFee:          0.00002,
		},
		Reconcile: ReconcileConfig{
			Interval: 10 * time.Second,
		},
		Explorer: ExplorerConfig{
			TxURL: "https://kas.fyi/transaction",
		},
		Storage: StorageConfig{
			DataDir: "~/.prophet",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.Backend.AssetRefreshInterval <= 0 {
		return fmt.Errorf("asset refresh interval must be positive")
	}
	return nil
}

// LoadConfig loads the config file from the data directory, creating a
// default one on first run.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Prophet Chat Daemon Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
