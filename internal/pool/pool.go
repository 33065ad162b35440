// Package pool runs typed tasks on a fixed set of worker goroutines. The
// pool owns task lifecycle (queued, running, terminal), keeps atomic
// statistics, and fails fast instead of queuing without bound.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"typetrace/internal/logging"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotInitialized is returned by Submit before Initialize.
	ErrPoolNotInitialized = errors.New("worker pool not initialized")
	// ErrPoolSaturated is returned when the pending queue is full; callers
	// own retry and backoff.
	ErrPoolSaturated = errors.New("worker pool saturated")
	// ErrUnknownTaskType is returned for task types without a handler.
	ErrUnknownTaskType = errors.New("unknown task type")
)

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	ThreadCount int    `json:"thread_count"`
	Active      int64  `json:"active"`
	Completed   uint64 `json:"completed"`
	Failed      uint64 `json:"failed"`
	UptimeMS    int64  `json:"uptime_ms"`
}

// Options configures pool construction.
type Options struct {
	// Workers is the worker goroutine count; 0 means max(1, NumCPU-1).
	Workers int
	// QueueDepth caps pending tasks; 0 uses a small default.
	QueueDepth int
	// DrainTimeout bounds how long Shutdown waits for in-flight work.
	DrainTimeout time.Duration
	// OnSettle, when set, receives every terminal task exactly once.
	OnSettle func(Settled)
	Logger   *slog.Logger
}

// Pool is the worker pool. Construct with New, register handlers, then
// Initialize before submitting.
type Pool struct {
	logger       *slog.Logger
	queueDepth   int
	drainTimeout time.Duration
	onSettle     func(Settled)

	mu          sync.Mutex
	handlers    map[string]Handler
	initialized bool
	closed      bool
	queue       chan *task
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	threadCount int
	startedAt   time.Time

	nextID    atomic.Uint64
	active    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New constructs an uninitialized pool with the echo handler preregistered.
func New(opts Options) *Pool {
	queueDepth := opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 64
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}
	p := &Pool{
		logger:       logging.NewComponentLogger(opts.Logger, "pool"),
		queueDepth:   queueDepth,
		drainTimeout: drain,
		onSettle:     opts.OnSettle,
		handlers:     make(map[string]Handler),
		threadCount:  defaultWorkers(opts.Workers),
	}
	p.handlers[TypeEcho] = func(_ context.Context, payload any) (any, error) {
		return payload, nil
	}
	p.handlers[TypeCustom] = func(_ context.Context, payload any) (any, error) {
		return payload, nil
	}
	return p
}

func defaultWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// RegisterHandler binds a handler to a task type, replacing any previous
// binding. Safe to call before or after Initialize.
func (p *Pool) RegisterHandler(taskType string, handler Handler) {
	if handler == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = handler
}

// Initialize starts the workers. It is idempotent: a second call is a no-op
// returning true. Returns false only after Shutdown.
func (p *Pool) Initialize(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.initialized {
		return true
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.queue = make(chan *task, p.queueDepth)
	p.startedAt = time.Now()
	p.initialized = true

	for i := 0; i < p.threadCount; i++ {
		p.wg.Add(1)
		go p.workerLoop(workerCtx, i)
	}

	p.logger.Info("worker pool started",
		logging.String(logging.FieldEventType, "pool_started"),
		logging.Int("workers", p.threadCount),
		logging.Int("queue_depth", p.queueDepth))
	return true
}

// Submit queues a task and returns its future. It never blocks on a full
// queue; saturation fails fast with ErrPoolSaturated.
func (p *Pool) Submit(_ context.Context, taskType string, payload any) (*Future, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if !p.initialized {
		return nil, ErrPoolNotInitialized
	}
	if _, ok := p.handlers[taskType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}

	id := p.nextID.Add(1)
	t := &task{
		id:          id,
		taskType:    taskType,
		payload:     payload,
		submittedAt: time.Now(),
		future:      newFuture(id),
	}

	select {
	case p.queue <- t:
	default:
		return nil, fmt.Errorf("%w: %d tasks pending", ErrPoolSaturated, len(p.queue))
	}

	p.active.Add(1)
	p.logger.Debug("task queued",
		logging.Uint64(logging.FieldTaskID, t.id),
		logging.String(logging.FieldTaskType, taskType))
	return t.future, nil
}

// Shutdown drains in-flight tasks bounded by the drain timeout and releases
// the workers. Idempotent; reports whether draining finished in time.
func (p *Pool) Shutdown(ctx context.Context) bool {
	p.mu.Lock()
	if !p.initialized || p.closed {
		p.closed = true
		p.mu.Unlock()
		return true
	}
	p.closed = true
	// No submit can race this close: Submit checks closed under the same
	// mutex before sending.
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	drained := true
	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		drained = false
	case <-ctx.Done():
		drained = false
	}

	cancel()
	if !drained {
		// Give cancelled workers a moment to observe the signal.
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	p.logger.Info("worker pool stopped",
		logging.String(logging.FieldEventType, "pool_stopped"),
		logging.Bool("drained", drained))
	return drained
}

// Stats returns a snapshot without blocking submitters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	threadCount := p.threadCount
	startedAt := p.startedAt
	initialized := p.initialized
	p.mu.Unlock()

	uptime := int64(0)
	if initialized {
		uptime = time.Since(startedAt).Milliseconds()
	}
	return Stats{
		ThreadCount: threadCount,
		Active:      p.active.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		UptimeMS:    uptime,
	}
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) execute(ctx context.Context, t *task) {
	p.mu.Lock()
	handler := p.handlers[t.taskType]
	p.mu.Unlock()

	started := time.Now()
	value, err := p.runHandler(ctx, handler, t)

	result := Result{
		TaskID:     t.id,
		TaskType:   t.taskType,
		DurationMS: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
	}
	state := StateCompleted
	if err != nil {
		state = StateFailed
		result.Error = err.Error()
		p.failed.Add(1)
	} else {
		result.Success = true
		result.Result = value
		p.completed.Add(1)
	}
	p.active.Add(-1)

	t.future.settle(result)
	if p.onSettle != nil {
		p.onSettle(Settled{
			Result:      result,
			State:       state,
			SubmittedAt: t.submittedAt,
			CompletedAt: result.Timestamp,
		})
	}

	if err != nil {
		p.logger.Warn("task failed",
			logging.Uint64(logging.FieldTaskID, t.id),
			logging.String(logging.FieldTaskType, t.taskType),
			logging.Error(err))
	} else {
		p.logger.Debug("task settled",
			logging.Uint64(logging.FieldTaskID, t.id),
			logging.String(logging.FieldTaskType, t.taskType),
			logging.Int64("duration_ms", result.DurationMS))
	}
}

// runHandler isolates handler panics: the task fails, the worker survives.
func (p *Pool) runHandler(ctx context.Context, handler Handler, t *task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, t.payload)
}
