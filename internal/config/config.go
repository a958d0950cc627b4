package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// WatchRoot is the directory tree of append-only session log files.
	WatchRoot string `toml:"watch_root"`
	// DataDir holds the session database, lease record, socket, and pid file.
	DataDir string `toml:"data_dir"`
	// LogDir receives daemon log files.
	LogDir string `toml:"log_dir"`
}

// Coordinator contains leadership and indexing timing configuration.
// All intervals are expressed in seconds.
type Coordinator struct {
	LeaseTTL          int `toml:"lease_ttl"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	FailoverPoll      int `toml:"failover_poll"`
	ReconcileInterval int `toml:"reconcile_interval"`
}

// Hooks contains hook-queue configuration.
type Hooks struct {
	MaxConcurrent int `toml:"max_concurrent"`
	// WaitTimeout is the default client-side wait for a hook result, in seconds.
	WaitTimeout int `toml:"wait_timeout"`
	// ProbeTimeout bounds the coordinator liveness probe, in seconds.
	ProbeTimeout int `toml:"probe_timeout"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the coordinator.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Coordinator Coordinator `toml:"coordinator"`
	Hooks       Hooks       `toml:"hooks"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/han/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("han.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.WatchRoot, err = expandPath(c.Paths.WatchRoot); err != nil {
		return err
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	return nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchRoot, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the session database location inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// LeasePath returns the coordinator lease record location.
func (c *Config) LeasePath() string {
	return filepath.Join(c.Paths.DataDir, "coordinator.lock")
}

// SocketPath returns the IPC unix socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "hand.sock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "hand.pid")
}

// LeaseTTL returns the lease time-to-live as a duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Coordinator.LeaseTTL) * time.Second
}

// HeartbeatInterval returns the lease renewal cadence as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Coordinator.HeartbeatInterval) * time.Second
}

// FailoverPoll returns the re-acquisition poll cadence as a duration.
func (c *Config) FailoverPoll() time.Duration {
	return time.Duration(c.Coordinator.FailoverPoll) * time.Second
}

// ReconcileInterval returns the periodic full-scan cadence as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Coordinator.ReconcileInterval) * time.Second
}

// WaitTimeout returns the default hook-result wait as a duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Hooks.WaitTimeout) * time.Second
}

// ProbeTimeout returns the liveness-probe bound as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Hooks.ProbeTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
