package pool

import (
	"context"
	"time"
)

// Task states. A task never moves backwards and has no cancelled state; a
// caller abandoning its wait does not stop execution.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Built-in task types. Additional types are added via RegisterHandler.
const (
	TypeMemoryOptimization = "memory_optimization"
	TypeComputation        = "computation"
	TypeEcho               = "echo"
	TypeCustom             = "custom"
)

// Handler executes one task type. Returning an error marks the task Failed.
type Handler func(ctx context.Context, payload any) (any, error)

// Result is the terminal envelope handed to the submitter.
type Result struct {
	TaskID     uint64    `json:"task_id"`
	TaskType   string    `json:"task_type"`
	Success    bool      `json:"success"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Settled describes a task that reached a terminal state. The pool emits one
// per task to the configured settle callback (used for the diagnostic task
// ledger).
type Settled struct {
	Result      Result
	State       State
	SubmittedAt time.Time
	CompletedAt time.Time
}

type task struct {
	id          uint64
	taskType    string
	payload     any
	submittedAt time.Time
	future      *Future
}

// Future resolves to a task's terminal Result.
type Future struct {
	id     uint64
	done   chan struct{}
	result Result
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the pool-assigned task id.
func (f *Future) ID() uint64 { return f.id }

// Wait blocks until the task settles or ctx expires. On expiry the error is
// returned and the task keeps running to natural completion; its counters
// and ledger entry still settle exactly once.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Done exposes the settle signal for select loops.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) settle(result Result) {
	f.result = result
	close(f.done)
}
