package taskpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func shutdown(t *testing.T, pool *TaskPool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

// recorder 收集完成钩子的结果
type recorder struct {
	mu   sync.Mutex
	errs map[string]error
}

func newRecorder() *recorder {
	return &recorder{errs: make(map[string]error)}
}

func (r *recorder) hook(taskID string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[taskID] = err
}

func (r *recorder) get(taskID string) (error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok := r.errs[taskID]
	return err, ok
}

func TestTaskPool_SubmitAsync(t *testing.T) {
	rec := newRecorder()
	pool := New(WithQueueSize(10), WithWorkers(2), WithOnTaskComplete(rec.hook))

	var executed atomic.Bool
	if err := pool.SubmitAsync(func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}, WithTaskID("start:talk")); err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}
	shutdown(t, pool)

	if !executed.Load() {
		t.Error("Task was not executed")
	}
	if err, ok := rec.get("start:talk"); !ok || err != nil {
		t.Errorf("hook should see start:talk succeed, got ok=%v err=%v", ok, err)
	}
}

func TestTaskPool_GeneratedID(t *testing.T) {
	rec := newRecorder()
	pool := New(WithWorkers(1), WithOnTaskComplete(rec.hook))
	_ = pool.SubmitAsync(func(ctx context.Context) error { return nil })
	shutdown(t, pool)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(rec.errs))
	}
	for id := range rec.errs {
		if len(id) != 36 {
			t.Errorf("generated id %q should be a uuid", id)
		}
	}
}

func TestTaskPool_Timeout(t *testing.T) {
	rec := newRecorder()
	pool := New(WithWorkers(2), WithDefaultTimeout(time.Second), WithOnTaskComplete(rec.hook))

	_ = pool.SubmitAsync(func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}, WithTaskID("start:game"), WithTimeout(50*time.Millisecond))
	_ = pool.SubmitAsync(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > time.Second {
			return errors.New("default timeout not applied")
		}
		return nil
	}, WithTaskID("stop:game"))
	shutdown(t, pool)

	if err, _ := rec.get("start:game"); !errors.Is(err, ErrTaskTimeout) {
		t.Errorf("Expected ErrTaskTimeout, got: %v", err)
	}
	if err, _ := rec.get("stop:game"); err != nil {
		t.Errorf("stop:game failed: %v", err)
	}
	if m := pool.GetMetrics(); m.TotalTimeout != 1 {
		t.Errorf("TotalTimeout = %d, want 1", m.TotalTimeout)
	}
}

func TestTaskPool_Panic(t *testing.T) {
	rec := newRecorder()
	pool := New(WithWorkers(1), WithOnTaskComplete(rec.hook))

	_ = pool.SubmitAsync(func(ctx context.Context) error {
		panic("test panic")
	}, WithTaskID("start:whisper"))
	_ = pool.SubmitAsync(func(ctx context.Context) error { return nil }, WithTaskID("start:talk"))
	shutdown(t, pool)

	if err, _ := rec.get("start:whisper"); !errors.Is(err, ErrTaskPanic) {
		t.Errorf("Expected ErrTaskPanic, got %v", err)
	}
	if err, ok := rec.get("start:talk"); !ok || err != nil {
		t.Error("panic should not affect later tasks")
	}
	m := pool.GetMetrics()
	if m.TotalPanic != 1 || m.LastFailedTask != "start:whisper" {
		t.Errorf("metrics should surface the panic: %+v", m)
	}
}

func TestTaskPool_LastFailure(t *testing.T) {
	pool := New(WithWorkers(1))

	_ = pool.SubmitAsync(func(ctx context.Context) error { return nil }, WithTaskID("ok"))
	_ = pool.SubmitAsync(func(ctx context.Context) error { return errors.New("boom") }, WithTaskID("stop:whisper"))
	shutdown(t, pool)

	metrics := pool.GetMetrics()
	if metrics.LastFailedTask != "stop:whisper" || metrics.LastError != "boom" {
		t.Errorf("metrics should surface last failure: %+v", metrics)
	}
	if metrics.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", metrics.SuccessRate)
	}
}

func TestTaskPool_SubmitAsyncQueueFull(t *testing.T) {
	pool := New(WithQueueSize(1), WithWorkers(1))
	defer shutdown(t, pool)

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	_ = pool.SubmitAsync(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	if err := pool.SubmitAsync(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("second task should be queued: %v", err)
	}
	if err := pool.SubmitAsync(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if pool.GetMetrics().TotalRejected != 1 {
		t.Errorf("TotalRejected = %d, want 1", pool.GetMetrics().TotalRejected)
	}
}

func TestTaskPool_ShutdownDrainsQueue(t *testing.T) {
	var final *MetricsSnapshot
	pool := New(WithQueueSize(10), WithWorkers(2), WithOnShutdown(func(m *MetricsSnapshot) {
		final = m
	}))

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		_ = pool.SubmitAsync(func(ctx context.Context) error {
			time.Sleep(30 * time.Millisecond)
			count.Add(1)
			return nil
		})
	}
	shutdown(t, pool)

	if count.Load() != 5 {
		t.Errorf("Completed tasks = %d, want 5", count.Load())
	}
	if final == nil || final.TotalCompleted != 5 {
		t.Errorf("shutdown hook should see final metrics: %+v", final)
	}
	if err := pool.SubmitAsync(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
	shutdown(t, pool)
}

func TestTaskPool_ShutdownDeadline(t *testing.T) {
	pool := New(WithWorkers(1))

	started := make(chan struct{})
	_ = pool.SubmitAsync(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}
