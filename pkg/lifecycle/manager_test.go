package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func waitDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// recorder 记录钩子与停止函数的调用顺序
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) stopFunc(name string) WorkerOption {
	return WithStopFunc(func(ctx context.Context) error {
		r.add("stop:" + name)
		return nil
	})
}

// shutdownWhenStarted 等待指定协程启动后触发退出
func shutdownWhenStarted(m *Manager, names ...string) {
	started := make(chan string, 8)
	m.OnWorkerStart(func(name string, _ error) { started <- name })
	go func() {
		pending := make(map[string]bool)
		for _, n := range names {
			pending[n] = true
		}
		for len(pending) > 0 {
			delete(pending, <-started)
		}
		_ = m.Shutdown()
	}()
}

func TestManager_DuplicateWorker(t *testing.T) {
	m := NewManager()
	if err := m.AddWorker("channel", waitDone); err != nil {
		t.Fatalf("添加协程失败: %v", err)
	}
	if err := m.AddWorker("channel", waitDone); !errors.Is(err, ErrWorkerExists) {
		t.Errorf("期望 ErrWorkerExists, got %v", err)
	}
	if got := m.Workers(); !reflect.DeepEqual(got, []string{"channel"}) {
		t.Errorf("协程列表错误: %v", got)
	}
}

func TestManager_StopWorkerLeavesOthersRunning(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	rec := &recorder{}

	_ = m.AddWorker("channel", waitDone, rec.stopFunc("channel"))
	_ = m.AddWorker("status", waitDone, rec.stopFunc("status"))

	started := make(chan string, 2)
	m.OnWorkerStart(func(name string, _ error) { started <- name })
	go func() {
		<-started
		<-started
		_ = m.StopWorker("status")
		deadline := time.Now().Add(time.Second)
		for !reflect.DeepEqual(m.Workers(), []string{"channel"}) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		_ = m.Shutdown()
	}()

	if err := m.Run(); err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"stop:status", "stop:channel"}) {
		t.Errorf("停止记录错误: %v", got)
	}
	if got := m.Workers(); len(got) != 0 {
		t.Errorf("退出后不应有协程: %v", got)
	}
	if err := m.StopWorker("depot"); !errors.Is(err, ErrWorkerNotFound) {
		t.Errorf("期望 ErrWorkerNotFound, got %v", err)
	}
}

func TestManager_HookSequence(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	rec := &recorder{}

	m.OnStartup(func(ctx context.Context) error {
		rec.add("startup")
		return nil
	})
	m.OnWorkerExit(func(name string, err error) { rec.add("exit:" + name) })
	m.OnShutdown(func(ctx context.Context) error {
		rec.add("shutdown")
		return nil
	})
	_ = m.AddWorker("channel", waitDone, rec.stopFunc("channel"))
	shutdownWhenStarted(m, "channel")

	if err := m.Run(); err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}

	events := rec.list()
	if len(events) != 4 || events[0] != "startup" || events[3] != "shutdown" {
		t.Fatalf("钩子顺序错误: %v", events)
	}
	middle := map[string]bool{events[1]: true, events[2]: true}
	if !middle["stop:channel"] || !middle["exit:channel"] {
		t.Errorf("缺少停止或退出记录: %v", events)
	}
}

func TestManager_StartupFailure(t *testing.T) {
	m := NewManager()
	loadErr := errors.New("config not loaded")
	m.OnStartup(func(ctx context.Context) error { return loadErr })

	launched := false
	_ = m.AddWorker("channel", func(ctx context.Context) error {
		launched = true
		return nil
	})

	if err := m.Run(); !errors.Is(err, loadErr) {
		t.Errorf("期望启动钩子错误, got %v", err)
	}
	if launched {
		t.Error("启动失败时不应启动协程")
	}
}

func TestManager_WorkerFailureStopsOthers(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	rec := &recorder{}
	dialErr := errors.New("depot unreachable")

	_ = m.AddWorker("channel", waitDone, rec.stopFunc("channel"))
	_ = m.AddWorker("depot", func(ctx context.Context) error { return dialErr })

	if err := m.Run(); !errors.Is(err, dialErr) {
		t.Errorf("期望协程错误, got %v", err)
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"stop:channel"}) {
		t.Errorf("其他协程应被停止: %v", got)
	}
}

func TestManager_CanceledWorkerIsNotFailure(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	_ = m.AddWorker("channel", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	shutdownWhenStarted(m, "channel")

	if err := m.Run(); err != nil {
		t.Errorf("取消退出不应视为失败: %v", err)
	}
}

func TestManager_StopOrder(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	rec := &recorder{}
	for _, name := range []string{"config", "channel", "status"} {
		_ = m.AddWorker(name, waitDone, rec.stopFunc(name))
	}
	shutdownWhenStarted(m, "config", "channel", "status")

	if err := m.Run(); err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}
	want := []string{"stop:status", "stop:channel", "stop:config"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("停止顺序错误: got %v, want %v", got, want)
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	m := NewManager(WithShutdownTimeout(100 * time.Millisecond))

	timedOut := make(chan struct{}, 1)
	m.OnTimeout(func(ctx context.Context) error {
		timedOut <- struct{}{}
		return nil
	})
	m.OnShutdown(func(ctx context.Context) error {
		t.Error("超时后不应调用退出钩子")
		return nil
	})

	release := make(chan struct{})
	defer close(release)
	_ = m.AddWorker("stuck-dial", func(ctx context.Context) error {
		<-release
		return nil
	})
	shutdownWhenStarted(m, "stuck-dial")

	if err := m.Run(); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("期望 ErrShutdownTimeout, got %v", err)
	}
	select {
	case <-timedOut:
	default:
		t.Error("OnTimeout 未被调用")
	}
}

func TestManager_RootContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(WithContext(ctx), WithShutdownTimeout(time.Second))

	_ = m.AddWorker("channel", waitDone)
	m.OnWorkerStart(func(string, error) { cancel() })

	if err := m.Run(); err != nil {
		t.Errorf("根上下文取消后应正常退出: %v", err)
	}
	if err := m.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("期望 ErrAlreadyRunning, got %v", err)
	}
}

func TestManager_AddWhileRunning(t *testing.T) {
	m := NewManager(WithShutdownTimeout(time.Second))
	_ = m.AddWorker("channel", waitDone)

	reloaded := make(chan struct{})
	m.OnStartup(func(ctx context.Context) error {
		go func() {
			err := m.AddWorker("reload", func(ctx context.Context) error {
				close(reloaded)
				return nil
			})
			if err != nil {
				t.Errorf("运行中添加协程失败: %v", err)
			}
			<-reloaded
			_ = m.Shutdown()
		}()
		return nil
	})

	if err := m.Run(); err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}
	select {
	case <-reloaded:
	default:
		t.Error("运行中添加的协程未执行")
	}
}
