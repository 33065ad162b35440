package compute

import (
	"errors"
	"testing"
)

func TestSimulateText(t *testing.T) {
	sim := NewSimulator()
	result, err := sim.Simulate(TypeText, "the quick brown fox\njumps over")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := result["word_count"]; got != 6 {
		t.Fatalf("word_count = %v, want 6", got)
	}
	if got := result["line_count"]; got != 2 {
		t.Fatalf("line_count = %v, want 2", got)
	}
}

func TestSimulateTextFromMapPayload(t *testing.T) {
	sim := NewSimulator()
	result, err := sim.Simulate(TypeText, map[string]any{"text": "hello world"})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := result["word_count"]; got != 2 {
		t.Fatalf("word_count = %v, want 2", got)
	}
}

func TestSimulateMatrixDeterministic(t *testing.T) {
	sim := NewSimulator()
	payload := map[string]any{"size": 32}
	first, err := sim.Simulate(TypeMatrix, payload)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	second, err := sim.Simulate(TypeMatrix, payload)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if first["checksum"] != second["checksum"] {
		t.Fatal("expected identical checksums for identical payloads")
	}
	if first["element_count"] != 1024 {
		t.Fatalf("element_count = %v, want 1024", first["element_count"])
	}
}

func TestSimulateImageDefaults(t *testing.T) {
	sim := NewSimulator()
	result, err := sim.Simulate(TypeImage, nil)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result["pixels"] != 640*480 {
		t.Fatalf("pixels = %v, want %d", result["pixels"], 640*480)
	}
}

func TestSimulatePatternFindsRepeats(t *testing.T) {
	sim := NewSimulator()
	result, err := sim.Simulate(TypePattern, "abcabcabc")
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result["top_pattern"] != "abc" {
		t.Fatalf("top_pattern = %v, want abc", result["top_pattern"])
	}
	if result["top_pattern_count"] != 3 {
		t.Fatalf("top_pattern_count = %v, want 3", result["top_pattern_count"])
	}
}

func TestSimulateUnknownType(t *testing.T) {
	sim := NewSimulator()
	if _, err := sim.Simulate("quantum", nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
