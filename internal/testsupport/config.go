// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"typetrace/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// The accelerated backend is disabled so tests negotiate the fallback unless
// an option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "typetraced.sock")
	cfg.Backend.Disabled = true
	cfg.Pool.Workers = 2
	cfg.Pool.QueueDepth = 16
	cfg.Pool.DrainTimeout = 5
	cfg.Memory.AutoOptimize = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithHelper points the config at a helper binary and re-enables negotiation.
func WithHelper(path string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Backend.HelperPath = path
		cfg.Backend.Disabled = false
	}
}

// WithAutoOptimize enables the pressure sampler's scheduled runs.
func WithAutoOptimize(interval int, trigger string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Memory.AutoOptimize = true
		cfg.Memory.SampleInterval = interval
		cfg.Memory.TriggerLevel = trigger
	}
}
