// Package optimize applies the graduated memory optimization policy. The
// engine decides how aggressive a run should be from the measured (or
// requested) level, delegates reclamation to the negotiated backend, and
// fans out to registered cache-release hooks and emergency listeners.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"typetrace/internal/backend"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
)

// Request parameterizes one optimization run. A nil Level means "sample and
// classify"; Emergency forces the most aggressive tier regardless of the
// measured pressure.
type Request struct {
	Level     *memory.Level
	Emergency bool
}

// ReleaseHook frees non-critical cached state. The engine knows nothing
// about cache internals; it only invokes what callers registered.
type ReleaseHook func()

// EmergencyListener is notified when a critical or emergency run happens so
// the UI layer can drop non-essential in-memory state.
type EmergencyListener func(level memory.Level)

type namedHook struct {
	name string
	fn   ReleaseHook
}

// Engine coordinates optimization runs.
type Engine struct {
	backend backend.Backend
	monitor *memory.Monitor
	logger  *slog.Logger

	mu        sync.Mutex
	hooks     []namedHook
	listeners []EmergencyListener
}

// NewEngine constructs an engine bound to the negotiated backend.
func NewEngine(b backend.Backend, monitor *memory.Monitor, logger *slog.Logger) *Engine {
	if monitor == nil {
		monitor = memory.NewMonitor()
	}
	return &Engine{
		backend: b,
		monitor: monitor,
		logger:  logging.NewComponentLogger(logger, "optimize"),
	}
}

// RegisterReleaseHook adds a cache-release callback invoked at Medium and
// above. The name appears in logs when the hook misbehaves.
func (e *Engine) RegisterReleaseHook(name string, fn ReleaseHook) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, namedHook{name: name, fn: fn})
}

// RegisterEmergencyListener adds a listener signaled on Critical and
// emergency runs.
func (e *Engine) RegisterEmergencyListener(fn EmergencyListener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Run executes one optimization pass and returns its envelope. Critical and
// emergency runs execute synchronously in the caller's goroutine; callers
// may observe the blocking.
func (e *Engine) Run(ctx context.Context, req Request) backend.OptimizationResult {
	started := time.Now()

	level := memory.LevelNone
	if req.Level != nil {
		level = *req.Level
	} else {
		_, level = e.monitor.Classify(req.Emergency)
	}
	if req.Emergency && level < memory.LevelCritical {
		level = memory.LevelCritical
	}

	before := e.monitor.Sample()
	var failures []string
	var notes []string

	gcResult := e.backend.ForceGC(ctx)
	if !gcResult.Success {
		failures = append(failures, "force gc: "+gcResult.Error)
	} else if gcResult.Note != "" {
		notes = append(notes, gcResult.Note)
	}

	if level >= memory.LevelMedium {
		e.runReleaseHooks()
	}

	if level >= memory.LevelHigh {
		optResult := e.backend.OptimizeMemory(ctx, level, req.Emergency || level >= memory.LevelCritical)
		if !optResult.Success {
			failures = append(failures, "optimize memory: "+optResult.Error)
		} else if optResult.Note != "" {
			notes = append(notes, optResult.Note)
		}
	}

	if level >= memory.LevelCritical {
		e.notifyEmergencyListeners(level)
	}

	after := e.monitor.Sample()
	freed := uint64(0)
	if before.HeapUsed > after.HeapUsed {
		freed = before.HeapUsed - after.HeapUsed
	}

	result := backend.OptimizationResult{
		Success:    len(failures) == 0,
		Level:      level,
		FreedBytes: freed,
		FreedMB:    float64(freed) / (1024 * 1024),
		DurationMS: time.Since(started).Milliseconds(),
		Emergency:  req.Emergency,
		Timestamp:  time.Now(),
		Note:       strings.Join(notes, "; "),
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}

	e.logger.Info("optimization run finished",
		logging.String(logging.FieldLevel, level.String()),
		logging.Bool("emergency", req.Emergency),
		logging.Uint64("freed_bytes", result.FreedBytes),
		logging.Int64("duration_ms", result.DurationMS),
		logging.Bool("success", result.Success))
	return result
}

func (e *Engine) runReleaseHooks() {
	e.mu.Lock()
	hooks := make([]namedHook, len(e.hooks))
	copy(hooks, e.hooks)
	e.mu.Unlock()

	for _, hook := range hooks {
		e.invokeHook(hook)
	}
}

// invokeHook isolates hook panics so one broken cache never fails a run.
func (e *Engine) invokeHook(hook namedHook) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("release hook panicked",
				logging.String("hook", hook.name),
				logging.Error(fmt.Errorf("%v", r)))
		}
	}()
	hook.fn()
}

func (e *Engine) notifyEmergencyListeners(level memory.Level) {
	e.mu.Lock()
	listeners := make([]EmergencyListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, listener := range listeners {
		e.invokeListener(listener, level)
	}
}

func (e *Engine) invokeListener(listener EmergencyListener, level memory.Level) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("emergency listener panicked",
				logging.Error(fmt.Errorf("%v", r)))
		}
	}()
	listener(level)
}
