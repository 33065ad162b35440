// Package daemon wires the runtime guard together: the negotiated backend,
// the optimization engine, the worker pool, the task ledger, and the GPU
// monitor. It enforces single-instance execution and runs the periodic
// memory-pressure sampler.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"typetrace/internal/backend"
	"typetrace/internal/config"
	"typetrace/internal/deps"
	"typetrace/internal/gpu"
	"typetrace/internal/ledger"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
	"typetrace/internal/optimize"
	"typetrace/internal/pool"
)

// Version is the daemon version string reported over IPC.
const Version = "0.3.0"

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessionID string

	monitor  *memory.Monitor
	adapter  *backend.Adapter
	fallback *backend.Fallback
	engine   *optimize.Engine
	pool     *pool.Pool
	store    *ledger.Store
	prober   *gpu.Prober
	gpuMon   *gpu.Monitor

	gpuMu   sync.RWMutex
	gpuInfo gpu.Info

	// computeAccel routes Compute through the accelerated backend when set.
	// It can only be granted when negotiation selected the accelerated path.
	computeAccel atomic.Bool

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	samplerWG sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	Version        string
	PID            int
	SessionID      string
	UptimeMS       int64
	FallbackMode   bool
	FallbackReason string
	BackendName    string
	ComputeAccel   bool
	SocketPath     string
	LedgerPath     string
	LockPath       string
	Memory         memory.Info
	Level          memory.Level
	GPU            gpu.Info
	Pool           pool.Stats
	Ledger         ledger.HealthSummary
	Dependencies   []deps.Status
}

// New constructs the daemon and negotiates the backend exactly once.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *ledger.Store) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and ledger store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	sessionID := store.SessionID()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		sessionID:  sessionID,
		monitor:    memory.NewMonitor(),
		store:      store,
		prober:     gpu.NewProber(),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		shutdownCh: make(chan struct{}),
	}
	d.gpuInfo = d.prober.Probe()
	d.gpuMon = gpu.NewMonitor(logger, d.prober, d.setGPUInfo)

	d.adapter = backend.Negotiate(ctx, cfg, d.monitor, d.GPUInfo, logger)
	d.fallback = backend.NewFallback(d.monitor, d.GPUInfo)
	d.computeAccel.Store(!d.adapter.Fallback())

	d.engine = optimize.NewEngine(d.adapter, d.monitor, logger)
	d.pool = pool.New(pool.Options{
		Workers:      cfg.Pool.Workers,
		QueueDepth:   cfg.Pool.QueueDepth,
		DrainTimeout: time.Duration(cfg.Pool.DrainTimeout) * time.Second,
		OnSettle:     d.recordSettled,
		Logger:       logger,
	})
	d.pool.RegisterHandler(pool.TypeMemoryOptimization, d.runOptimizationTask)
	d.pool.RegisterHandler(pool.TypeComputation, d.runComputationTask)
	return d, nil
}

// SessionID returns the uuid identifying this daemon run.
func (d *Daemon) SessionID() string { return d.sessionID }

// Start acquires the instance lock and launches the pool, the GPU monitor,
// and the pressure sampler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another typetraced instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.startedAt = time.Now()

	d.pool.Initialize(runCtx)

	if err := d.gpuMon.Start(runCtx); err != nil {
		// Hotplug refresh is best-effort; the boot-time probe stands.
		d.logger.Warn("gpu hotplug monitor unavailable", logging.Error(err))
	}

	d.samplerWG.Add(1)
	go d.samplerLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String(logging.FieldSessionID, d.sessionID),
		logging.String(logging.FieldBackend, d.adapter.Name()),
		logging.Bool("fallback_mode", d.adapter.Fallback()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the sampler and the pool and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.gpuMon.Stop()
	d.samplerWG.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(d.cfg.Pool.DrainTimeout)*time.Second)
	defer cancel()
	if drained := d.pool.Shutdown(drainCtx); !drained {
		d.logger.Warn("pool drain timed out; abandoning in-flight tasks")
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases the backend and the ledger.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.adapter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	return errors.Join(errs...)
}

// RequestShutdown asks the process to exit. Safe to call from IPC handlers;
// the actual teardown happens on the main goroutine.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// ShutdownRequested returns a channel closed after RequestShutdown.
func (d *Daemon) ShutdownRequested() <-chan struct{} { return d.shutdownCh }

// MemoryStatus samples memory through the backend and classifies it.
func (d *Daemon) MemoryStatus(ctx context.Context) (memory.Info, memory.Level) {
	info, err := d.adapter.MemoryInfo(ctx)
	if err != nil {
		info = d.monitor.Sample()
		if info.SampleError == "" {
			info.SampleError = err.Error()
		}
	}
	return info, memory.Classify(info.PercentUsed, false)
}

// Optimize runs one optimization synchronously.
func (d *Daemon) Optimize(ctx context.Context, req optimize.Request) backend.OptimizationResult {
	return d.engine.Run(ctx, req)
}

// ForceGC triggers a single collection through the backend.
func (d *Daemon) ForceGC(ctx context.Context) backend.OptimizationResult {
	return d.adapter.ForceGC(ctx)
}

// GPUInfo returns the cached hardware record. The GPU monitor refreshes it
// on DRM hotplug events.
func (d *Daemon) GPUInfo() gpu.Info {
	d.gpuMu.RLock()
	defer d.gpuMu.RUnlock()
	return d.gpuInfo
}

// GPUStatus returns the backend's view of the graphics hardware.
func (d *Daemon) GPUStatus(ctx context.Context) gpu.Info {
	return d.adapter.GPUInfo(ctx)
}

// SetComputeMode requests or releases the accelerated compute path. The
// request is granted only when negotiation selected the accelerated backend;
// the negotiation itself is never redone.
func (d *Daemon) SetComputeMode(enable bool) (bool, string) {
	if !enable {
		d.computeAccel.Store(false)
		return false, "compute routed to fallback simulator"
	}
	if d.adapter.Fallback() {
		return false, fmt.Sprintf("acceleration unavailable: %s", d.adapter.FallbackReason())
	}
	d.computeAccel.Store(true)
	return true, "compute routed to accelerated backend"
}

// ComputeAccelerated reports whether Compute currently uses the accelerated
// backend.
func (d *Daemon) ComputeAccelerated() bool { return d.computeAccel.Load() }

// Compute runs one computation on the active compute path.
func (d *Daemon) Compute(ctx context.Context, taskType string, payload any) backend.ComputationResult {
	if d.computeAccel.Load() {
		return d.adapter.Compute(ctx, taskType, payload)
	}
	return d.fallback.Compute(ctx, taskType, payload)
}

// SubmitTask queues a task and returns its future.
func (d *Daemon) SubmitTask(ctx context.Context, taskType string, payload any) (*pool.Future, error) {
	return d.pool.Submit(ctx, taskType, payload)
}

// TaskHistory returns recent terminal tasks from the ledger.
func (d *Daemon) TaskHistory(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return d.store.Recent(ctx, limit)
}

// PoolStats returns a point-in-time pool snapshot.
func (d *Daemon) PoolStats() pool.Stats { return d.pool.Stats() }

// RegisterReleaseHook forwards to the optimization engine.
func (d *Daemon) RegisterReleaseHook(name string, fn optimize.ReleaseHook) {
	d.engine.RegisterReleaseHook(name, fn)
}

// Status assembles the full diagnostic snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	info, level := d.MemoryStatus(ctx)
	status := Status{
		Running:        d.running.Load(),
		Version:        Version,
		PID:            os.Getpid(),
		SessionID:      d.sessionID,
		FallbackMode:   d.adapter.Fallback(),
		FallbackReason: d.adapter.FallbackReason(),
		BackendName:    d.adapter.Name(),
		ComputeAccel:   d.computeAccel.Load(),
		SocketPath:     d.cfg.Paths.SocketPath,
		LedgerPath:     d.store.Path(),
		LockPath:       d.lockPath,
		Memory:         info,
		Level:          level,
		GPU:            d.GPUInfo(),
		Pool:           d.pool.Stats(),
		Dependencies:   deps.Check(deps.Requirements(d.cfg)),
	}
	if !d.startedAt.IsZero() {
		status.UptimeMS = time.Since(d.startedAt).Milliseconds()
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Ledger = health
	}
	return status
}

func (d *Daemon) setGPUInfo(info gpu.Info) {
	d.gpuMu.Lock()
	d.gpuInfo = info
	d.gpuMu.Unlock()
}

func (d *Daemon) recordSettled(settled pool.Settled) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.Record(ctx, settled); err != nil {
		d.logger.Warn("failed to record task in ledger",
			logging.Uint64(logging.FieldTaskID, settled.Result.TaskID),
			logging.Error(err))
	}
}
