package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"typetrace/internal/logging"
)

func newStartedPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	p := New(opts)
	if !p.Initialize(context.Background()) {
		t.Fatal("Initialize returned false")
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func waitResult(t *testing.T, f *Future) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return result
}

func TestInitializeIdempotent(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 2})
	if !p.Initialize(context.Background()) {
		t.Fatal("second Initialize returned false")
	}
	if got := p.Stats().ThreadCount; got != 2 {
		t.Fatalf("thread count = %d, want 2", got)
	}
}

func TestInitializeConcurrent(t *testing.T) {
	p := New(Options{Workers: 3, Logger: logging.NewNop()})
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !p.Initialize(context.Background()) {
				t.Error("Initialize returned false")
			}
		}()
	}
	wg.Wait()

	if got := p.Stats().ThreadCount; got != 3 {
		t.Fatalf("thread count = %d, want 3 (never doubled)", got)
	}
}

func TestEchoTask(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 1})
	future, err := p.Submit(context.Background(), TypeEcho, "hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result := waitResult(t, future)
	if !result.Success {
		t.Fatalf("echo failed: %q", result.Error)
	}
	if result.Result != "hello" {
		t.Fatalf("result = %v, want hello", result.Result)
	}
	if result.TaskID == 0 {
		t.Fatal("expected non-zero task id")
	}
}

func TestTaskIDsAreUnique(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 2})
	seen := make(map[uint64]bool)
	for i := 0; i < 20; i++ {
		future, err := p.Submit(context.Background(), TypeEcho, i)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		result := waitResult(t, future)
		if seen[result.TaskID] {
			t.Fatalf("duplicate task id %d", result.TaskID)
		}
		seen[result.TaskID] = true
	}
}

func TestConcurrentSubmissionsSettleExactlyOnce(t *testing.T) {
	const n = 50
	p := newStartedPool(t, Options{Workers: 4, QueueDepth: n})
	p.RegisterHandler("flaky", func(_ context.Context, payload any) (any, error) {
		if payload.(int)%5 == 0 {
			return nil, errors.New("flaky failure")
		}
		return payload, nil
	})

	futures := make([]*Future, 0, n)
	for i := 0; i < n; i++ {
		future, err := p.Submit(context.Background(), "flaky", i)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		futures = append(futures, future)
	}
	for _, future := range futures {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := future.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		cancel()
	}

	stats := p.Stats()
	if stats.Completed+stats.Failed != n {
		t.Fatalf("completed+failed = %d, want %d", stats.Completed+stats.Failed, n)
	}
	if stats.Failed != 10 {
		t.Fatalf("failed = %d, want 10", stats.Failed)
	}
	if stats.Active != 0 {
		t.Fatalf("active = %d, want 0", stats.Active)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 1})
	p.RegisterHandler("boom", func(context.Context, any) (any, error) {
		panic("kaboom")
	})

	future, err := p.Submit(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result := waitResult(t, future)
	if result.Success {
		t.Fatal("expected panicked task to fail")
	}
	if result.Error == "" {
		t.Fatal("expected panic detail in error")
	}

	// The single worker must still serve subsequent tasks.
	future, err = p.Submit(context.Background(), TypeEcho, "still alive")
	if err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	if got := waitResult(t, future); got.Result != "still alive" {
		t.Fatalf("result = %v", got.Result)
	}
}

func TestSubmitUnknownType(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 1})
	if _, err := p.Submit(context.Background(), "no-such-type", nil); !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("expected ErrUnknownTaskType, got %v", err)
	}
}

func TestSubmitBeforeInitialize(t *testing.T) {
	p := New(Options{Logger: logging.NewNop()})
	if _, err := p.Submit(context.Background(), TypeEcho, nil); !errors.Is(err, ErrPoolNotInitialized) {
		t.Fatalf("expected ErrPoolNotInitialized, got %v", err)
	}
}

func TestSaturationFailsFast(t *testing.T) {
	block := make(chan struct{})
	p := newStartedPool(t, Options{Workers: 1, QueueDepth: 1})
	p.RegisterHandler("block", func(context.Context, any) (any, error) {
		<-block
		return nil, nil
	})
	t.Cleanup(func() { close(block) })

	// First task occupies the worker, second fills the queue.
	if _, err := p.Submit(context.Background(), "block", nil); err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	// Give the worker a moment to pick up the first task.
	deadline := time.Now().Add(time.Second)
	for len(p.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := p.Submit(context.Background(), "block", nil); err != nil {
		t.Fatalf("Submit 2: %v", err)
	}

	_, err := p.Submit(context.Background(), "block", nil)
	if !errors.Is(err, ErrPoolSaturated) {
		t.Fatalf("expected ErrPoolSaturated, got %v", err)
	}
}

func TestCallerTimeoutDoesNotCancelTask(t *testing.T) {
	release := make(chan struct{})
	ran := make(chan struct{})
	p := newStartedPool(t, Options{Workers: 1})
	p.RegisterHandler("slow", func(context.Context, any) (any, error) {
		<-release
		close(ran)
		return "done", nil
	})

	future, err := p.Submit(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := future.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The abandoned task still runs to completion and settles accounting.
	close(release)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned task never ran to completion")
	}
	result := waitResult(t, future)
	if !result.Success || result.Result != "done" {
		t.Fatalf("result = %+v", result)
	}
	stats := p.Stats()
	if stats.Completed != 1 || stats.Active != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestShutdownThenSubmitFailsFast(t *testing.T) {
	p := newStartedPool(t, Options{Workers: 1})
	if !p.Shutdown(context.Background()) {
		t.Fatal("Shutdown reported unfinished drain")
	}
	// Idempotent.
	if !p.Shutdown(context.Background()) {
		t.Fatal("second Shutdown returned false")
	}

	start := time.Now()
	_, err := p.Submit(context.Background(), TypeEcho, nil)
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("submit after shutdown took %v, want fail fast", elapsed)
	}
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	var settled []Settled
	var mu sync.Mutex
	p := New(Options{
		Workers:      1,
		QueueDepth:   8,
		DrainTimeout: 5 * time.Second,
		Logger:       logging.NewNop(),
		OnSettle: func(s Settled) {
			mu.Lock()
			settled = append(settled, s)
			mu.Unlock()
		},
	})
	if !p.Initialize(context.Background()) {
		t.Fatal("Initialize returned false")
	}

	for i := 0; i < 5; i++ {
		if _, err := p.Submit(context.Background(), TypeEcho, i); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if !p.Shutdown(context.Background()) {
		t.Fatal("expected clean drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(settled) != 5 {
		t.Fatalf("settled = %d, want 5", len(settled))
	}
	for _, s := range settled {
		if s.State != StateCompleted {
			t.Fatalf("state = %s, want completed", s.State)
		}
		if s.CompletedAt.Before(s.SubmittedAt) {
			t.Fatal("completion precedes submission")
		}
	}
}
