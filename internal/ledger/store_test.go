package ledger

import (
	"context"
	"testing"
	"time"

	"typetrace/internal/config"
	"typetrace/internal/pool"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	store, err := Open(&cfg, "session-test")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return store
}

func settledTask(id uint64, taskType string, success bool, errMsg string) pool.Settled {
	state := pool.StateCompleted
	if !success {
		state = pool.StateFailed
	}
	now := time.Now().UTC()
	return pool.Settled{
		Result: pool.Result{
			TaskID:     id,
			TaskType:   taskType,
			Success:    success,
			Error:      errMsg,
			DurationMS: 12,
			Timestamp:  now,
		},
		State:       state,
		SubmittedAt: now.Add(-50 * time.Millisecond),
		CompletedAt: now,
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		if err := store.Record(ctx, settledTask(i, "echo", true, "")); err != nil {
			t.Fatalf("Record task %d: %v", i, err)
		}
	}
	if err := store.Record(ctx, settledTask(4, "computation", false, "unknown task type")); err != nil {
		t.Fatalf("Record failed task: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].TaskID != 4 {
		t.Errorf("expected newest entry first, got task %d", entries[0].TaskID)
	}
	if entries[0].Success {
		t.Error("failed task recorded as success")
	}
	if entries[0].Error != "unknown task type" {
		t.Errorf("unexpected error text %q", entries[0].Error)
	}
	if entries[0].State != string(pool.StateFailed) {
		t.Errorf("expected state failed, got %q", entries[0].State)
	}
	if entries[0].SessionID != "session-test" {
		t.Errorf("unexpected session id %q", entries[0].SessionID)
	}
	if entries[0].CompletedAt.IsZero() {
		t.Error("completed_at not recorded")
	}
}

func TestRecentLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 8; i++ {
		if err := store.Record(ctx, settledTask(i, "echo", true, "")); err != nil {
			t.Fatalf("Record task %d: %v", i, err)
		}
	}

	entries, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].TaskID != 8 || entries[2].TaskID != 6 {
		t.Errorf("unexpected ordering: %d..%d", entries[0].TaskID, entries[2].TaskID)
	}
}

func TestHealthCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		if err := store.Record(ctx, settledTask(i, "echo", true, "")); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	for i := uint64(6); i <= 7; i++ {
		if err := store.Record(ctx, settledTask(i, "custom", false, "boom")); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if summary.Total != 7 || summary.Completed != 5 || summary.Failed != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 10; i++ {
		if err := store.Record(ctx, settledTask(i, "echo", true, "")); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	removed, err := store.Prune(ctx, 4)
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 6 {
		t.Errorf("expected 6 rows pruned, got %d", removed)
	}

	entries, err := store.Recent(ctx, 20)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries after prune, got %d", len(entries))
	}
	if entries[len(entries)-1].TaskID != 7 {
		t.Errorf("expected oldest surviving task 7, got %d", entries[len(entries)-1].TaskID)
	}
}

func TestReopenPersists(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	store, err := Open(&cfg, "session-a")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := store.Record(context.Background(), settledTask(1, "echo", true, "")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(&cfg, "session-b")
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "session-a" {
		t.Fatalf("expected persisted entry from session-a, got %+v", entries)
	}
}
