package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"typetrace/internal/config"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	return &cfg
}

func TestNegotiateNoHelperConfigured(t *testing.T) {
	cfg := testConfig(t)
	adapter := Negotiate(context.Background(), cfg, memory.NewMonitor(), nil, logging.NewNop())
	t.Cleanup(func() { adapter.Close() })

	if !adapter.Fallback() {
		t.Fatal("expected fallback selection")
	}
	if adapter.FallbackReason() == "" {
		t.Fatal("expected fallback reason")
	}
	if adapter.Name() != "fallback" {
		t.Fatalf("backend name = %q", adapter.Name())
	}
}

func TestNegotiateMissingHelperBinary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.HelperPath = filepath.Join(t.TempDir(), "not-here")

	adapter := Negotiate(context.Background(), cfg, memory.NewMonitor(), nil, logging.NewNop())
	t.Cleanup(func() { adapter.Close() })

	if !adapter.Fallback() {
		t.Fatal("expected fallback when helper binary is missing")
	}
}

func TestNegotiateDisabledHelper(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Disabled = true
	cfg.Backend.HelperPath = "/bin/true"

	adapter := Negotiate(context.Background(), cfg, memory.NewMonitor(), nil, logging.NewNop())
	t.Cleanup(func() { adapter.Close() })

	if !adapter.Fallback() {
		t.Fatal("expected fallback when helper is disabled")
	}
}

func TestNegotiateHandshakeFailureFallsBack(t *testing.T) {
	// A helper that exits immediately cannot complete the handshake.
	helper := filepath.Join(t.TempDir(), "helper")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write helper stub: %v", err)
	}

	cfg := testConfig(t)
	cfg.Backend.HelperPath = helper
	cfg.Backend.HandshakeTimeout = 1

	adapter := Negotiate(context.Background(), cfg, memory.NewMonitor(), nil, logging.NewNop())
	t.Cleanup(func() { adapter.Close() })

	if !adapter.Fallback() {
		t.Fatal("expected fallback after handshake failure")
	}
	if adapter.FallbackReason() == "" {
		t.Fatal("expected a recorded failure reason")
	}

	// The fallback must still serve the full surface after a failed probe.
	if _, err := adapter.MemoryInfo(context.Background()); err != nil {
		t.Fatalf("MemoryInfo after fallback: %v", err)
	}
	result := adapter.ForceGC(context.Background())
	if !result.Success {
		t.Fatalf("ForceGC after fallback: %q", result.Error)
	}
}
