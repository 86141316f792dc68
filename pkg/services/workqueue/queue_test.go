package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// testTask is a simple task for testing.
type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newTestTask(name string, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(name),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx, enqueuer)
	}
	return nil
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := New(zap.NewNop())

	var executed atomic.Bool
	task := newTestTask("test-task", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		executed.Store(true)
		return nil
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !executed.Load() {
		t.Error("task was not executed")
	}

	if q.CompletedCount() != 1 {
		t.Errorf("expected 1 completed, got %d", q.CompletedCount())
	}
}

func TestQueue_TaskFailure(t *testing.T) {
	q := New(zap.NewNop())

	expectedErr := errors.New("task failed")
	task := newTestTask("failing-task", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return expectedErr
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}

	if !q.HasFailures() {
		t.Error("expected HasFailures to return true")
	}
}

func TestQueue_SerializedByDefault(t *testing.T) {
	q := New(zap.NewNop())

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	// Three tasks tracking concurrent execution; the default strategy must
	// run them one at a time.
	for i := 0; i < 3; i++ {
		task := newTestTask("serial-task", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	mc := maxConcurrent
	mu.Unlock()

	if mc > 1 {
		t.Errorf("tasks ran concurrently: max concurrent was %d", mc)
	}
	if q.CompletedCount() != 3 {
		t.Errorf("expected 3 completed, got %d", q.CompletedCount())
	}
}

func TestQueue_BoundedConcurrency(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewBoundedStrategy(2)))

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		task := newTestTask("bounded-task", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(100 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	mc := maxConcurrent
	mu.Unlock()

	if mc > 2 {
		t.Errorf("bound exceeded: max concurrent was %d", mc)
	}
	if mc < 2 {
		t.Errorf("bound unused: max concurrent was %d, expected 2", mc)
	}
}

func TestQueue_FailureDoesNotBlockOthers(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewBoundedStrategy(2)))

	var completed int32
	q.Enqueue(newTestTask("bad", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return errors.New("boom")
	}))
	for i := 0; i < 2; i++ {
		q.Enqueue(newTestTask("good", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			atomic.AddInt32(&completed, 1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err == nil {
		t.Fatal("expected the failing task's error")
	}

	if got := atomic.LoadInt32(&completed); got != 2 {
		t.Errorf("expected 2 tasks to run despite the failure, got %d", got)
	}
	if q.CompletedCount() != 2 {
		t.Errorf("expected 2 completed, got %d", q.CompletedCount())
	}
	if !q.IsComplete() {
		t.Error("expected queue to be complete")
	}
}

func TestQueue_FollowUpEnqueue(t *testing.T) {
	q := New(zap.NewNop())

	var followUpRan atomic.Bool
	first := newTestTask("first", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newTestTask("follow-up", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			followUpRan.Store(true)
			return nil
		}))
		return nil
	})

	q.Enqueue(first)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !followUpRan.Load() {
		t.Error("follow-up task did not run")
	}
	if q.TaskCount() != 2 {
		t.Errorf("expected 2 tasks, got %d", q.TaskCount())
	}
}

func TestQueue_CancelStopsPendingTasks(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	blocker := newTestTask("blocker", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	pending := newTestTask("pending", nil)

	q.Enqueue(blocker)
	q.Enqueue(pending)

	<-started
	q.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, snap := range q.GetTasks() {
		if snap.Status != TaskStatusCancelled {
			t.Errorf("task %s: expected cancelled, got %s", snap.Name, snap.Status)
		}
	}
	if q.HasFailures() {
		t.Error("cancellation must not count as failure")
	}
}

func TestQueue_WaitHonorsContext(t *testing.T) {
	q := New(zap.NewNop())

	q.Enqueue(newTestTask("blocker", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestQueue_EnqueueAfterCancelIgnored(t *testing.T) {
	q := New(zap.NewNop())
	q.Cancel()

	q.Enqueue(newTestTask("late", nil))

	if q.TaskCount() != 0 {
		t.Errorf("expected 0 tasks after cancel, got %d", q.TaskCount())
	}
}

func TestQueue_EmptyWaitReturnsImmediately(t *testing.T) {
	q := New(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueue_OnUpdateSeesTerminalStates(t *testing.T) {
	q := New(zap.NewNop())

	var mu sync.Mutex
	var last []TaskSnapshot
	q.SetOnUpdate(func(snaps []TaskSnapshot) {
		mu.Lock()
		last = snaps
		mu.Unlock()
	})

	q.Enqueue(newTestTask("ok", nil))
	q.Enqueue(newTestTask("bad", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return errors.New("boom")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = q.Wait(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(last) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(last))
	}
	byName := map[string]TaskSnapshot{}
	for _, s := range last {
		byName[s.Name] = s
	}
	if byName["ok"].Status != TaskStatusCompleted {
		t.Errorf("ok: expected completed, got %s", byName["ok"].Status)
	}
	if byName["bad"].Status != TaskStatusFailed {
		t.Errorf("bad: expected failed, got %s", byName["bad"].Status)
	}
	if byName["bad"].Error == "" {
		t.Error("failed snapshot should carry the error message")
	}
}

func TestProgress_Percentage(t *testing.T) {
	if got := (Progress{}).Percentage(); got != 100 {
		t.Errorf("empty progress: expected 100, got %d", got)
	}
	p := Progress{Total: 4, Completed: 1, Failed: 1, Pending: 2}
	if got := p.Percentage(); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}
