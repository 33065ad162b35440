package deps

import (
	"os"
	"path/filepath"
	"testing"

	"typetrace/internal/config"
)

func TestCheckReportsMissingPath(t *testing.T) {
	statuses := Check([]Requirement{{
		Name:        "accelerated helper",
		Path:        filepath.Join(t.TempDir(), "missing-helper"),
		Description: "native helper",
	}})
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Available {
		t.Error("missing binary reported as available")
	}
	if statuses[0].Detail == "" {
		t.Error("expected detail for missing binary")
	}
}

func TestCheckUnconfiguredPath(t *testing.T) {
	statuses := Check([]Requirement{{Name: "accelerated helper", Path: "  "}})
	if statuses[0].Available {
		t.Error("unconfigured path reported as available")
	}
	if statuses[0].Detail != "path not configured" {
		t.Errorf("unexpected detail %q", statuses[0].Detail)
	}
}

func TestCheckExecutableBinary(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "helper")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}

	statuses := Check([]Requirement{{Name: "accelerated helper", Path: helper}})
	if !statuses[0].Available {
		t.Errorf("executable helper reported unavailable: %s", statuses[0].Detail)
	}
}

func TestCheckNonExecutableBinary(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "helper")
	if err := os.WriteFile(helper, []byte("data"), 0o644); err != nil {
		t.Fatalf("write helper: %v", err)
	}

	statuses := Check([]Requirement{{Name: "accelerated helper", Path: helper}})
	if statuses[0].Available {
		t.Error("non-executable file reported as available")
	}
}

func TestCheckDirectory(t *testing.T) {
	statuses := Check([]Requirement{{Name: "drm sysfs", Path: t.TempDir()}})
	if !statuses[0].Available {
		t.Errorf("existing directory reported unavailable: %s", statuses[0].Detail)
	}
}

func TestHelperAvailable(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.HelperPath = ""
	if HelperAvailable(&cfg) {
		t.Error("empty helper path reported as available")
	}

	dir := t.TempDir()
	helper := filepath.Join(dir, "helper")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	cfg.Backend.HelperPath = helper
	if !HelperAvailable(&cfg) {
		t.Error("executable helper path reported as unavailable")
	}
}
