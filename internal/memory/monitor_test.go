package memory

import "testing"

func TestSampleProducesSnapshot(t *testing.T) {
	monitor := NewMonitor()
	info := monitor.Sample()

	if info.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
	if info.HeapUsed == 0 {
		t.Fatal("expected non-zero heap used")
	}
	if info.HeapTotal == 0 {
		t.Fatal("expected non-zero heap total")
	}
	if info.HeapUsed > info.HeapTotal {
		t.Fatalf("heap used %d exceeds heap total %d", info.HeapUsed, info.HeapTotal)
	}
	if info.PercentUsed < 0 || info.PercentUsed > 100 {
		t.Fatalf("percent used out of range: %v", info.PercentUsed)
	}
	if info.RSS == 0 && info.SampleError == "" {
		t.Fatal("expected rss or a sample error explaining its absence")
	}
}

func TestSampleSnapshotsAreIndependent(t *testing.T) {
	monitor := NewMonitor()
	first := monitor.Sample()
	second := monitor.Sample()
	if !second.Timestamp.After(first.Timestamp) && !second.Timestamp.Equal(first.Timestamp) {
		t.Fatal("expected second snapshot not to precede the first")
	}
	// Mutating the first snapshot must not affect future samples.
	first.HeapUsed = 0
	third := monitor.Sample()
	if third.HeapUsed == 0 {
		t.Fatal("expected fresh snapshot to be unaffected by caller mutation")
	}
}

func TestMonitorClassify(t *testing.T) {
	monitor := NewMonitor()
	info, level := monitor.Classify(true)
	if level != LevelCritical {
		t.Fatalf("emergency classify = %v, want critical", level)
	}
	if info.Timestamp.IsZero() {
		t.Fatal("expected snapshot alongside classification")
	}
}
