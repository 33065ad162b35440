package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Backend contains configuration for the accelerated helper negotiation.
type Backend struct {
	// HelperPath is the accelerated helper binary. Empty means "not
	// installed"; negotiation then selects the in-process fallback.
	HelperPath string `toml:"helper_path"`
	// Disabled forces the fallback even when the helper is present.
	Disabled bool `toml:"disabled"`
	// HandshakeTimeout bounds the startup probe, in seconds.
	HandshakeTimeout int `toml:"handshake_timeout"`
}

// Pool contains worker pool sizing.
type Pool struct {
	// Workers is the worker goroutine count. Zero means max(1, NumCPU-1).
	Workers int `toml:"workers"`
	// QueueDepth caps pending submissions before submit fails fast.
	QueueDepth int `toml:"queue_depth"`
	// DrainTimeout bounds shutdown draining, in seconds.
	DrainTimeout int `toml:"drain_timeout"`
}

// Memory contains the pressure sampler settings.
type Memory struct {
	// SampleInterval is the sampler period, in seconds.
	SampleInterval int `toml:"sample_interval"`
	// AutoOptimize enables scheduled optimization runs when the sampled
	// level reaches TriggerLevel.
	AutoOptimize bool `toml:"auto_optimize"`
	// TriggerLevel names the lowest level that triggers an automatic run:
	// one of none, low, medium, high, critical.
	TriggerLevel string `toml:"trigger_level"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the typetrace daemon.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Backend Backend `toml:"backend"`
	Pool    Pool    `toml:"pool"`
	Memory  Memory  `toml:"memory"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/typetrace/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and environment overrides applied.
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

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverrides maps the environment variables the desktop shell sets to
// their config fields. Read once here; core packages never touch the env.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("TYPETRACE_HELPER_PATH"); ok {
		c.Backend.HelperPath = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("TYPETRACE_DEBUG"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			c.Logging.Level = "debug"
		}
	}
	if v, ok := os.LookupEnv("TYPETRACE_POOL_WORKERS"); ok {
		var workers int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &workers); err == nil && workers > 0 {
			c.Pool.Workers = workers
		}
	}
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
	projectPath, err := filepath.Abs("typetrace.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "typetraced.log")
}

// LedgerPath returns the sqlite task ledger path.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LogDir, "tasks.db")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "typetraced.lock")
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
