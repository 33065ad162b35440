package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	c.normalizePool()
	c.normalizeMemory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() error {
	c.Backend.HelperPath = strings.TrimSpace(c.Backend.HelperPath)
	if c.Backend.HelperPath != "" {
		expanded, err := expandPath(c.Backend.HelperPath)
		if err != nil {
			return fmt.Errorf("backend.helper_path: %w", err)
		}
		c.Backend.HelperPath = expanded
	}
	if c.Backend.HandshakeTimeout <= 0 {
		c.Backend.HandshakeTimeout = defaultHandshakeTimeout
	}
	return nil
}

func (c *Config) normalizePool() {
	if c.Pool.QueueDepth <= 0 {
		c.Pool.QueueDepth = defaultQueueDepth
	}
	if c.Pool.DrainTimeout <= 0 {
		c.Pool.DrainTimeout = defaultDrainTimeout
	}
}

func (c *Config) normalizeMemory() {
	if c.Memory.SampleInterval <= 0 {
		c.Memory.SampleInterval = defaultSampleInterval
	}
	c.Memory.TriggerLevel = strings.ToLower(strings.TrimSpace(c.Memory.TriggerLevel))
	if c.Memory.TriggerLevel == "" {
		c.Memory.TriggerLevel = defaultTriggerLevel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
