// Package ipc exposes daemon control via JSON-RPC over a unix domain
// socket. The wire structs here are the only place internal schema maps to
// the external surface; clients never import the domain packages.
package ipc

import (
	"time"

	"typetrace/internal/backend"
	"typetrace/internal/deps"
	"typetrace/internal/gpu"
	"typetrace/internal/ledger"
	"typetrace/internal/memory"
	"typetrace/internal/pool"
)

// MemoryInfo mirrors memory.Info on the wire.
type MemoryInfo struct {
	Timestamp   time.Time `json:"timestamp"`
	HeapUsed    uint64    `json:"heap_used"`
	HeapTotal   uint64    `json:"heap_total"`
	HeapLimit   uint64    `json:"heap_limit,omitempty"`
	RSS         uint64    `json:"rss"`
	PercentUsed float64   `json:"percent_used"`
	SampleError string    `json:"sample_error,omitempty"`
}

// GPUInfo mirrors gpu.Info on the wire.
type GPUInfo struct {
	Available   bool      `json:"available"`
	Vendor      string    `json:"vendor"`
	Device      string    `json:"device"`
	DriverHint  string    `json:"driver_hint"`
	DeviceCount int       `json:"device_count"`
	ProbedAt    time.Time `json:"probed_at"`
	ProbeError  string    `json:"probe_error,omitempty"`
}

// OptimizationResult is the wire form of backend.OptimizationResult; the
// level travels by name rather than ordinal.
type OptimizationResult struct {
	Success    bool      `json:"success"`
	Level      string    `json:"level"`
	FreedBytes uint64    `json:"freed_bytes"`
	FreedMB    float64   `json:"freed_mb"`
	DurationMS int64     `json:"duration_ms"`
	Emergency  bool      `json:"emergency"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// ComputationResult is the wire form of backend.ComputationResult.
type ComputationResult struct {
	TaskType         string         `json:"task_type"`
	DurationMS       int64          `json:"duration_ms"`
	Result           map[string]any `json:"result,omitempty"`
	UsedAcceleration bool           `json:"used_acceleration"`
	Timestamp        time.Time      `json:"timestamp"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
}

// TaskResult is the wire form of a settled pool task.
type TaskResult struct {
	TaskID     uint64    `json:"task_id"`
	TaskType   string    `json:"task_type"`
	Success    bool      `json:"success"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// PoolStats is the wire form of pool.Stats.
type PoolStats struct {
	ThreadCount int    `json:"thread_count"`
	Active      int64  `json:"active"`
	Completed   uint64 `json:"completed"`
	Failed      uint64 `json:"failed"`
	UptimeMS    int64  `json:"uptime_ms"`
}

// TaskHistoryEntry is one ledger row on the wire.
type TaskHistoryEntry struct {
	SessionID   string    `json:"session_id"`
	TaskID      uint64    `json:"task_id"`
	TaskType    string    `json:"task_type"`
	State       string    `json:"state"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// DependencyStatus reports one runtime dependency probe.
type DependencyStatus struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// LedgerHealth aggregates ledger counts.
type LedgerHealth struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type MemoryStatusRequest struct{}

type MemoryStatusResponse struct {
	Success   bool       `json:"success"`
	Memory    MemoryInfo `json:"memory_info"`
	Level     string     `json:"optimization_level"`
	Timestamp time.Time  `json:"timestamp"`
}

type OptimizeRequest struct {
	// Level names the tier to run; empty means sample and classify.
	Level     string `json:"level,omitempty"`
	Emergency bool   `json:"emergency,omitempty"`
}

type OptimizeResponse struct {
	Result OptimizationResult `json:"result"`
}

type ForceGCRequest struct{}

type ForceGCResponse struct {
	Success    bool      `json:"success"`
	FreedBytes uint64    `json:"freed_bytes"`
	FreedMB    float64   `json:"freed_mb"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
	Note       string    `json:"note,omitempty"`
}

type GPUStatusRequest struct{}

type GPUStatusResponse struct {
	Success   bool      `json:"success"`
	Available bool      `json:"available"`
	GPU       GPUInfo   `json:"gpu_info"`
	Timestamp time.Time `json:"timestamp"`
}

type SetComputeModeRequest struct {
	// Enable requests the accelerated compute path; granted only when
	// negotiation selected the accelerated backend.
	Enable bool `json:"enable"`
}

type SetComputeModeResponse struct {
	Success bool   `json:"success"`
	Enabled bool   `json:"enabled"`
	Detail  string `json:"detail,omitempty"`
}

type ComputeRequest struct {
	ComputationType string `json:"computation_type"`
	Data            any    `json:"data,omitempty"`
}

type ComputeResponse struct {
	Result ComputationResult `json:"result"`
}

type SubmitTaskRequest struct {
	TaskType string `json:"task_type"`
	Data     any    `json:"data,omitempty"`
	// WaitMillis bounds how long the daemon waits for the task to settle
	// before answering with a queued-only envelope. Zero means no wait.
	WaitMillis int64 `json:"wait_millis,omitempty"`
}

type SubmitTaskResponse struct {
	TaskID   uint64      `json:"task_id"`
	TaskType string      `json:"task_type"`
	Settled  bool        `json:"settled"`
	Result   *TaskResult `json:"result,omitempty"`
}

type TaskHistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

type TaskHistoryResponse struct {
	Entries []TaskHistoryEntry `json:"entries"`
}

type PoolStatsRequest struct{}

type PoolStatsResponse struct {
	Stats PoolStats `json:"stats"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Available      bool               `json:"available"`
	Running        bool               `json:"running"`
	FallbackMode   bool               `json:"fallback_mode"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Backend        string             `json:"backend"`
	ComputeAccel   bool               `json:"compute_accelerated"`
	Version        string             `json:"version"`
	PID            int                `json:"pid"`
	SessionID      string             `json:"session_id"`
	UptimeMS       int64              `json:"uptime_ms"`
	SocketPath     string             `json:"socket_path"`
	LedgerPath     string             `json:"ledger_path"`
	LockPath       string             `json:"lock_path"`
	Memory         MemoryInfo         `json:"memory_info"`
	Level          string             `json:"optimization_level"`
	GPU            GPUInfo            `json:"gpu_info"`
	Pool           PoolStats          `json:"pool_stats"`
	Ledger         LedgerHealth       `json:"ledger"`
	Dependencies   []DependencyStatus `json:"dependencies,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

type ShutdownRequest struct{}

type ShutdownResponse struct {
	Stopped bool `json:"stopped"`
}

func fromMemoryInfo(info memory.Info) MemoryInfo { return MemoryInfo(info) }

func fromGPUInfo(info gpu.Info) GPUInfo { return GPUInfo(info) }

func fromOptimization(r backend.OptimizationResult) OptimizationResult {
	return OptimizationResult{
		Success:    r.Success,
		Level:      r.Level.String(),
		FreedBytes: r.FreedBytes,
		FreedMB:    r.FreedMB,
		DurationMS: r.DurationMS,
		Emergency:  r.Emergency,
		Timestamp:  r.Timestamp,
		Error:      r.Error,
		Note:       r.Note,
	}
}

func fromComputation(r backend.ComputationResult) ComputationResult {
	return ComputationResult(r)
}

func fromTaskResult(r pool.Result) TaskResult { return TaskResult(r) }

func fromLedgerEntry(e ledger.Entry) TaskHistoryEntry {
	return TaskHistoryEntry{
		SessionID:   e.SessionID,
		TaskID:      e.TaskID,
		TaskType:    e.TaskType,
		State:       e.State,
		Success:     e.Success,
		Error:       e.Error,
		DurationMS:  e.DurationMS,
		SubmittedAt: e.SubmittedAt,
		CompletedAt: e.CompletedAt,
	}
}

func fromDependency(s deps.Status) DependencyStatus { return DependencyStatus(s) }
