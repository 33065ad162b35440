package backend

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"typetrace/internal/compute"
	"typetrace/internal/gpu"
	"typetrace/internal/memory"
)

// Fallback is the in-process implementation used when no accelerated helper
// could be negotiated. It is dependency-free and safe for concurrent use.
type Fallback struct {
	monitor   *memory.Monitor
	simulator *compute.Simulator
	gpuInfo   func() gpu.Info
}

// NewFallback constructs the fallback implementation. gpuInfo supplies the
// current capability record (typically the gpu monitor's cached probe); nil
// means "no GPU visible".
func NewFallback(monitor *memory.Monitor, gpuInfo func() gpu.Info) *Fallback {
	if monitor == nil {
		monitor = memory.NewMonitor()
	}
	return &Fallback{
		monitor:   monitor,
		simulator: compute.NewSimulator(),
		gpuInfo:   gpuInfo,
	}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) MemoryInfo(_ context.Context) (memory.Info, error) {
	return f.monitor.Sample(), nil
}

// ForceGC runs a collection pass. The Go runtime always exposes the hook, so
// this cannot fail; freed bytes may legitimately be zero.
func (f *Fallback) ForceGC(_ context.Context) OptimizationResult {
	started := time.Now()
	before := f.monitor.Sample()
	runtime.GC()
	after := f.monitor.Sample()

	freed := freedBytes(before, after)
	return OptimizationResult{
		Success:    true,
		Level:      memory.LevelNone,
		FreedBytes: freed,
		FreedMB:    bytesToMB(freed),
		DurationMS: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
	}
}

// OptimizeMemory collects, and at High or above also returns freed pages to
// the OS. Emergency runs are treated as Critical.
func (f *Fallback) OptimizeMemory(_ context.Context, level memory.Level, emergency bool) OptimizationResult {
	started := time.Now()
	if emergency && level < memory.LevelCritical {
		level = memory.LevelCritical
	}

	before := f.monitor.Sample()
	runtime.GC()
	if level >= memory.LevelHigh {
		debug.FreeOSMemory()
	}
	after := f.monitor.Sample()

	freed := freedBytes(before, after)
	return OptimizationResult{
		Success:    true,
		Level:      level,
		FreedBytes: freed,
		FreedMB:    bytesToMB(freed),
		DurationMS: time.Since(started).Milliseconds(),
		Emergency:  emergency,
		Timestamp:  time.Now(),
	}
}

func (f *Fallback) GPUInfo(_ context.Context) gpu.Info {
	if f.gpuInfo != nil {
		return f.gpuInfo()
	}
	return gpu.Info{ProbedAt: time.Now()}
}

// Compute answers through the simulator. Results are always labeled as not
// hardware accelerated so callers cannot mistake them for real output.
func (f *Fallback) Compute(_ context.Context, taskType string, payload any) ComputationResult {
	started := time.Now()
	result, err := f.simulator.Simulate(taskType, payload)
	if err != nil {
		return failedComputation(taskType, started, err)
	}
	return ComputationResult{
		TaskType:         taskType,
		DurationMS:       time.Since(started).Milliseconds(),
		Result:           result,
		UsedAcceleration: false,
		Timestamp:        time.Now(),
		Success:          true,
	}
}

func (f *Fallback) Close() error { return nil }

var _ Backend = (*Fallback)(nil)
