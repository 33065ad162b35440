// Package logging wraps log/slog with the handlers and attribute helpers
// used across the typetrace daemon and CLI. It provides a human-oriented
// console handler, a JSON handler for machine consumption, and shared field
// name constants so related events stay greppable.
package logging
