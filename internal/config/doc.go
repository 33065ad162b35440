// Package config loads, normalizes, and validates the typetrace daemon
// configuration. Settings are read from a TOML file once at startup; a small
// set of environment overrides exists for values the desktop shell injects
// (helper binary path, debug logging, worker count).
package config
