// Package backend bridges the optimization engine and worker pool to either
// an accelerated out-of-process helper or a pure in-process fallback. The
// choice is made once at startup by Negotiate and never revisited; callers
// see one interface regardless of which side serves them.
package backend

import (
	"context"
	"time"

	"typetrace/internal/gpu"
	"typetrace/internal/memory"
)

// Backend is the capability surface both implementations satisfy. Both sides
// must produce identically shaped envelopes; only the numbers and the
// UsedAcceleration flag may differ.
type Backend interface {
	// Name identifies the implementation ("native" or "fallback").
	Name() string
	// MemoryInfo returns a fresh process memory snapshot.
	MemoryInfo(ctx context.Context) (memory.Info, error)
	// OptimizeMemory performs level-appropriate reclamation.
	OptimizeMemory(ctx context.Context, level memory.Level, emergency bool) OptimizationResult
	// ForceGC runs a garbage collection pass and reports freed bytes.
	ForceGC(ctx context.Context) OptimizationResult
	// GPUInfo returns the current graphics capability record.
	GPUInfo(ctx context.Context) gpu.Info
	// Compute answers a typed computation request.
	Compute(ctx context.Context, taskType string, payload any) ComputationResult
	// Close releases implementation resources.
	Close() error
}

// OptimizationResult reports one optimization or GC invocation. Error is
// non-empty exactly when Success is false; Note carries degraded-capability
// detail on successful runs.
type OptimizationResult struct {
	Success    bool         `json:"success"`
	Level      memory.Level `json:"level"`
	FreedBytes uint64       `json:"freed_bytes"`
	FreedMB    float64      `json:"freed_mb"`
	DurationMS int64        `json:"duration_ms"`
	Emergency  bool         `json:"emergency"`
	Timestamp  time.Time    `json:"timestamp"`
	Error      string       `json:"error,omitempty"`
	Note       string       `json:"note,omitempty"`
}

// ComputationResult is the per-request computation envelope.
type ComputationResult struct {
	TaskType         string         `json:"task_type"`
	DurationMS       int64          `json:"duration_ms"`
	Result           map[string]any `json:"result,omitempty"`
	UsedAcceleration bool           `json:"used_acceleration"`
	Timestamp        time.Time      `json:"timestamp"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
}

func failedOptimization(level memory.Level, emergency bool, started time.Time, err error) OptimizationResult {
	return OptimizationResult{
		Success:    false,
		Level:      level,
		Emergency:  emergency,
		DurationMS: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
		Error:      err.Error(),
	}
}

func failedComputation(taskType string, started time.Time, err error) ComputationResult {
	return ComputationResult{
		TaskType:   taskType,
		DurationMS: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
		Success:    false,
		Error:      err.Error(),
	}
}

// freedBytes computes reclaimed heap, clamped at zero. Zero is a valid
// result: no reclaimable memory was found.
func freedBytes(before, after memory.Info) uint64 {
	if after.HeapUsed >= before.HeapUsed {
		return 0
	}
	return before.HeapUsed - after.HeapUsed
}

func bytesToMB(v uint64) float64 {
	return float64(v) / (1024 * 1024)
}
