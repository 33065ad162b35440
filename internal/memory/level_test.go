package memory

import "testing"

func TestClassifyBreakpoints(t *testing.T) {
	cases := []struct {
		percent   float64
		emergency bool
		want      Level
	}{
		{0, false, LevelNone},
		{10, false, LevelNone},
		{49.9, false, LevelNone},
		{50, false, LevelLow},
		{69.9, false, LevelLow},
		{70, false, LevelMedium},
		{84.9, false, LevelMedium},
		{85, false, LevelHigh},
		{92, false, LevelHigh},
		{94.9, false, LevelHigh},
		{95, false, LevelCritical},
		{96, false, LevelCritical},
		{100, false, LevelCritical},
		{10, true, LevelCritical},
		{0, true, LevelCritical},
	}
	for _, tc := range cases {
		got := Classify(tc.percent, tc.emergency)
		if got != tc.want {
			t.Errorf("Classify(%v, %v) = %v, want %v", tc.percent, tc.emergency, got, tc.want)
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	previous := LevelNone
	for percent := 0.0; percent <= 100.0; percent += 0.25 {
		level := Classify(percent, false)
		if level < previous {
			t.Fatalf("level decreased at %v%%: %v -> %v", percent, previous, level)
		}
		previous = level
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelNone, LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		parsed, ok := ParseLevel(level.String())
		if !ok || parsed != level {
			t.Errorf("ParseLevel(%q) = %v, %v", level.String(), parsed, ok)
		}
	}
	if _, ok := ParseLevel("frantic"); ok {
		t.Error("expected unknown level to fail parsing")
	}
	if parsed, ok := ParseLevel(" Critical "); !ok || parsed != LevelCritical {
		t.Errorf("ParseLevel with spacing = %v, %v", parsed, ok)
	}
}
