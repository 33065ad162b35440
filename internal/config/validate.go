package config

import (
	"errors"
	"fmt"
)

var validTriggerLevels = map[string]struct{}{
	"none":     {},
	"low":      {},
	"medium":   {},
	"high":     {},
	"critical": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateMemory(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.Pool.Workers < 0 {
		return errors.New("pool.workers must not be negative")
	}
	if c.Pool.QueueDepth < 1 {
		return errors.New("pool.queue_depth must be at least 1")
	}
	if c.Pool.DrainTimeout < 1 {
		return errors.New("pool.drain_timeout must be at least 1 second")
	}
	return nil
}

func (c *Config) validateMemory() error {
	if c.Memory.SampleInterval < 1 {
		return errors.New("memory.sample_interval must be at least 1 second")
	}
	if _, ok := validTriggerLevels[c.Memory.TriggerLevel]; !ok {
		return fmt.Errorf("memory.trigger_level: unknown level %q", c.Memory.TriggerLevel)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
