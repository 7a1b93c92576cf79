package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backend names accepted by [store] backend.
const (
	BackendSQLite = "sqlite"
	BackendDir    = "dir"
	BackendBadger = "badger"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Experiment ExperimentConfig `toml:"experiment"`
	Store      StoreConfig      `toml:"store"`
	Server     ServerConfig     `toml:"server"`
	Stats      StatsConfig      `toml:"stats"`
}

// ExperimentConfig maps session generation settings.
type ExperimentConfig struct {
	Rounds      *int  `toml:"rounds"`
	Quadrants   *int  `toml:"quadrants"`
	Queues      *int  `toml:"queues"`
	Partial     *bool `toml:"partial"`
	MaxAttempts *int  `toml:"max-attempts"`
}

// StoreConfig selects where game records live.
type StoreConfig struct {
	Backend *string `toml:"backend"`
	Path    *string `toml:"path"`
}

// ServerConfig maps HTTP server settings. Durations use Go syntax, e.g. "30m".
type ServerConfig struct {
	Addr            *string `toml:"addr"`
	SessionTTL      *string `toml:"session-ttl"`
	ShutdownTimeout *string `toml:"shutdown-timeout"`
}

// StatsConfig maps statistics settings.
type StatsConfig struct {
	Window *int `toml:"window"`
	Recent *int `toml:"recent"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return FileConfig{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func (c FileConfig) validate() error {
	if c.Store.Backend != nil {
		if _, err := ParseBackend(*c.Store.Backend); err != nil {
			return err
		}
	}
	for name, v := range map[string]*string{
		"server.session-ttl":      c.Server.SessionTTL,
		"server.shutdown-timeout": c.Server.ShutdownTimeout,
	} {
		if v == nil {
			continue
		}
		if _, err := ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// ParseBackend normalizes a storage backend name.
func ParseBackend(name string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(name)); b {
	case BackendSQLite, BackendDir, BackendBadger:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (want %s, %s or %s)", name, BackendSQLite, BackendDir, BackendBadger)
	}
}

// ParseDuration parses a non-negative Go duration string.
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s is negative", s)
	}
	return d, nil
}

// DefaultStorePath returns the default location for a backend.
func DefaultStorePath(backend string) string {
	switch backend {
	case BackendDir:
		return DefaultLogsDir()
	case BackendBadger:
		return DefaultBadgerDir()
	default:
		return DefaultDBPath()
	}
}
