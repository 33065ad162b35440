package backend

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"typetrace/internal/config"
	"typetrace/internal/gpu"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
)

// Adapter is the negotiated backend handle the rest of the daemon holds. It
// embeds the chosen implementation and remembers how the choice was made;
// negotiation is never retried for the life of the process.
type Adapter struct {
	Backend

	fallback bool
	reason   string
}

// Fallback reports whether the in-process implementation was selected.
func (a *Adapter) Fallback() bool { return a.fallback }

// FallbackReason explains why the fallback was selected; empty when the
// accelerated helper is active.
func (a *Adapter) FallbackReason() string { return a.reason }

// Negotiate probes the configured accelerated helper exactly once and
// returns the adapter wrapping whichever implementation answered. Helper
// load failures are recovered locally by selecting the fallback; they are
// never surfaced as errors to callers.
func Negotiate(ctx context.Context, cfg *config.Config, monitor *memory.Monitor, gpuInfo func() gpu.Info, logger *slog.Logger) *Adapter {
	log := logging.NewComponentLogger(logger, "backend")

	helperPath := ""
	handshakeTimeout := 5 * time.Second
	disabled := false
	if cfg != nil {
		helperPath = strings.TrimSpace(cfg.Backend.HelperPath)
		disabled = cfg.Backend.Disabled
		if cfg.Backend.HandshakeTimeout > 0 {
			handshakeTimeout = time.Duration(cfg.Backend.HandshakeTimeout) * time.Second
		}
	}

	fallbackWith := func(reason string) *Adapter {
		log.Info("using in-process fallback backend",
			logging.String(logging.FieldEventType, "backend_fallback"),
			logging.String("reason", reason))
		return &Adapter{
			Backend:  NewFallback(monitor, gpuInfo),
			fallback: true,
			reason:   reason,
		}
	}

	if disabled {
		return fallbackWith("accelerated backend disabled by configuration")
	}
	if helperPath == "" {
		return fallbackWith("no helper binary configured")
	}
	if _, err := os.Stat(helperPath); err != nil {
		return fallbackWith("helper binary missing: " + err.Error())
	}

	native, err := startNative(ctx, helperPath, handshakeTimeout, logger)
	if err != nil {
		log.Warn("accelerated helper failed to start",
			logging.Error(err),
			logging.String(logging.FieldEventType, "helper_start_failed"),
			logging.String(logging.FieldErrorHint, "reinstall the helper or clear backend.helper_path"))
		return fallbackWith(err.Error())
	}

	log.Info("accelerated backend active",
		logging.String(logging.FieldEventType, "backend_negotiated"),
		logging.String(logging.FieldBackend, native.Name()))
	return &Adapter{Backend: native}
}
