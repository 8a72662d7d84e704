// Package daemon assembles and runs the dailygrind background process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML. Runtime user
// settings (handle, filters, whitelist) live in the state store, not here;
// this file only configures the process itself.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Judge   JudgeConfig   `toml:"judge"`
	Metrics MetricsConfig `toml:"metrics"`
}

// APIConfig configures the local HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig configures the state database location.
type StorageConfig struct {
	Path string `toml:"path"`
}

// JudgeConfig configures the judge API client.
type JudgeConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MetricsConfig gates the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns safe daemon defaults. The API binds loopback only;
// this daemon is a local companion, not a network service.
func DefaultConfig() Config {
	return Config{
		API:     APIConfig{Host: "127.0.0.1", Port: 8845},
		Storage: StorageConfig{Path: defaultDataDir()},
		Judge:   JudgeConfig{BaseURL: "https://solved.ac/api/v3", TimeoutSeconds: 10},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// ConfigPath returns the default config file location, honoring
// DAILYGRIND_HOME.
func ConfigPath() string {
	return filepath.Join(homeDir(), "config.toml")
}

// LoadConfig reads the config file at path, falling back to defaults for a
// missing file or missing fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config: %w", err)
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8845
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultDataDir()
	}
	if cfg.Judge.TimeoutSeconds <= 0 {
		cfg.Judge.TimeoutSeconds = 10
	}
	return cfg, nil
}

func homeDir() string {
	if env := os.Getenv("DAILYGRIND_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dailygrind")
}

func defaultDataDir() string {
	return filepath.Join(homeDir(), "data")
}
