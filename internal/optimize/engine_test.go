package optimize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"typetrace/internal/backend"
	"typetrace/internal/gpu"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
)

// recordingBackend counts calls and lets tests rig failures and notes.
type recordingBackend struct {
	mu            sync.Mutex
	gcCalls       int
	optimizeCalls []struct {
		level     memory.Level
		emergency bool
	}
	gcErr  error
	gcNote string
}

func (r *recordingBackend) Name() string { return "recording" }

func (r *recordingBackend) MemoryInfo(context.Context) (memory.Info, error) {
	return memory.NewMonitor().Sample(), nil
}

func (r *recordingBackend) ForceGC(context.Context) backend.OptimizationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcCalls++
	if r.gcErr != nil {
		return backend.OptimizationResult{Timestamp: time.Now(), Error: r.gcErr.Error()}
	}
	return backend.OptimizationResult{Success: true, Timestamp: time.Now(), Note: r.gcNote}
}

func (r *recordingBackend) OptimizeMemory(_ context.Context, level memory.Level, emergency bool) backend.OptimizationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.optimizeCalls = append(r.optimizeCalls, struct {
		level     memory.Level
		emergency bool
	}{level, emergency})
	return backend.OptimizationResult{Success: true, Level: level, Emergency: emergency, Timestamp: time.Now()}
}

func (r *recordingBackend) GPUInfo(context.Context) gpu.Info { return gpu.Info{} }

func (r *recordingBackend) Compute(_ context.Context, taskType string, _ any) backend.ComputationResult {
	return backend.ComputationResult{TaskType: taskType, Success: true, Timestamp: time.Now()}
}

func (r *recordingBackend) Close() error { return nil }

func levelPtr(l memory.Level) *memory.Level { return &l }

func newTestEngine(rb *recordingBackend) *Engine {
	return NewEngine(rb, memory.NewMonitor(), logging.NewNop())
}

func TestRunLowTierOnlyCollects(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)

	hookRan := false
	engine.RegisterReleaseHook("cache", func() { hookRan = true })

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelLow)})
	if !result.Success {
		t.Fatalf("run failed: %q", result.Error)
	}
	if rb.gcCalls != 1 {
		t.Fatalf("gc calls = %d, want 1", rb.gcCalls)
	}
	if len(rb.optimizeCalls) != 0 {
		t.Fatalf("optimize calls = %d, want 0", len(rb.optimizeCalls))
	}
	if hookRan {
		t.Fatal("release hooks must not run below medium")
	}
}

func TestRunLowTierRepeatedlyStaysLowTier(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)
	for i := 0; i < 5; i++ {
		result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelNone)})
		if !result.Success {
			t.Fatalf("run %d failed: %q", i, result.Error)
		}
	}
	if rb.gcCalls != 5 {
		t.Fatalf("gc calls = %d, want 5", rb.gcCalls)
	}
	if len(rb.optimizeCalls) != 0 {
		t.Fatal("low-tier runs must never escalate to backend optimization")
	}
}

func TestRunMediumInvokesHooks(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)

	hookRuns := 0
	engine.RegisterReleaseHook("image-cache", func() { hookRuns++ })
	engine.RegisterReleaseHook("object-cache", func() { hookRuns++ })

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelMedium)})
	if !result.Success {
		t.Fatalf("run failed: %q", result.Error)
	}
	if hookRuns != 2 {
		t.Fatalf("hook runs = %d, want 2", hookRuns)
	}
	if len(rb.optimizeCalls) != 0 {
		t.Fatal("medium must not call backend optimization")
	}
}

func TestRunHighCallsBackendOptimize(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelHigh)})
	if !result.Success {
		t.Fatalf("run failed: %q", result.Error)
	}
	if len(rb.optimizeCalls) != 1 {
		t.Fatalf("optimize calls = %d, want 1", len(rb.optimizeCalls))
	}
	if rb.optimizeCalls[0].level != memory.LevelHigh {
		t.Fatalf("optimize level = %v, want high", rb.optimizeCalls[0].level)
	}
	if rb.optimizeCalls[0].emergency {
		t.Fatal("high run must not set emergency")
	}
}

func TestRunEmergencyForcesCriticalAndNotifies(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)

	var notified memory.Level
	engine.RegisterEmergencyListener(func(level memory.Level) { notified = level })

	// Even with a low requested level, emergency escalates to critical.
	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelLow), Emergency: true})
	if !result.Success {
		t.Fatalf("run failed: %q", result.Error)
	}
	if result.Level != memory.LevelCritical {
		t.Fatalf("level = %v, want critical", result.Level)
	}
	if !result.Emergency {
		t.Fatal("emergency flag lost")
	}
	if len(rb.optimizeCalls) != 1 || !rb.optimizeCalls[0].emergency {
		t.Fatalf("optimize calls = %+v, want one emergency call", rb.optimizeCalls)
	}
	if notified != memory.LevelCritical {
		t.Fatalf("listener notified with %v, want critical", notified)
	}
}

func TestRunSurvivesPanickingHook(t *testing.T) {
	rb := &recordingBackend{}
	engine := newTestEngine(rb)

	healthyRan := false
	engine.RegisterReleaseHook("broken", func() { panic("boom") })
	engine.RegisterReleaseHook("healthy", func() { healthyRan = true })

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelMedium)})
	if !result.Success {
		t.Fatalf("run failed: %q", result.Error)
	}
	if !healthyRan {
		t.Fatal("healthy hook skipped after a panicking hook")
	}
}

func TestRunReportsGCFailure(t *testing.T) {
	rb := &recordingBackend{gcErr: errors.New("helper connection closed")}
	engine := newTestEngine(rb)

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelLow)})
	if result.Success {
		t.Fatal("expected failure when gc fails")
	}
	if result.Error == "" {
		t.Fatal("failure must carry error detail")
	}
}

func TestRunCarriesDegradedNote(t *testing.T) {
	rb := &recordingBackend{gcNote: "manual gc hook unavailable"}
	engine := newTestEngine(rb)

	result := engine.Run(context.Background(), Request{Level: levelPtr(memory.LevelNone)})
	if !result.Success {
		t.Fatalf("degraded gc must still succeed, got %q", result.Error)
	}
	if result.Note == "" {
		t.Fatal("expected degraded-capability note to propagate")
	}
}
