package gpu

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCard(t *testing.T, root, name, vendor, device string) {
	t.Helper()
	devDir := filepath.Join(root, name, "device")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "vendor"), []byte(vendor+"\n"), 0o644); err != nil {
		t.Fatalf("write vendor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "device"), []byte(device+"\n"), 0o644); err != nil {
		t.Fatalf("write device: %v", err)
	}
}

func TestProbeFindsCard(t *testing.T) {
	root := t.TempDir()
	writeCard(t, root, "card0", "0x8086", "0x46a6")
	// Connector entries must not be counted as devices.
	if err := os.MkdirAll(filepath.Join(root, "card0-eDP-1"), 0o755); err != nil {
		t.Fatalf("mkdir connector: %v", err)
	}

	info := NewProberAt(root).Probe()
	if !info.Available {
		t.Fatal("expected gpu to be available")
	}
	if info.Vendor != "Intel" {
		t.Fatalf("vendor = %q, want Intel", info.Vendor)
	}
	if info.Device != "0x46a6" {
		t.Fatalf("device = %q", info.Device)
	}
	if info.DeviceCount != 1 {
		t.Fatalf("device count = %d, want 1", info.DeviceCount)
	}
	if info.ProbedAt.IsZero() {
		t.Fatal("expected probe timestamp")
	}
}

func TestProbeCountsMultipleCards(t *testing.T) {
	root := t.TempDir()
	writeCard(t, root, "card0", "0x10de", "0x2520")
	writeCard(t, root, "card1", "0x8086", "0x46a6")

	info := NewProberAt(root).Probe()
	if info.DeviceCount != 2 {
		t.Fatalf("device count = %d, want 2", info.DeviceCount)
	}
	if info.Vendor != "NVIDIA" {
		t.Fatalf("vendor = %q, want NVIDIA (first card wins)", info.Vendor)
	}
}

func TestProbeUnknownVendorKeepsID(t *testing.T) {
	root := t.TempDir()
	writeCard(t, root, "card0", "0xbeef", "0x0001")

	info := NewProberAt(root).Probe()
	if info.Vendor != "0xbeef" {
		t.Fatalf("vendor = %q, want raw id", info.Vendor)
	}
}

func TestProbeMissingRoot(t *testing.T) {
	info := NewProberAt(filepath.Join(t.TempDir(), "absent")).Probe()
	if info.Available {
		t.Fatal("expected unavailable gpu")
	}
	if info.ProbeError == "" {
		t.Fatal("expected probe error detail")
	}
}
