package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/junbin-yang/subgames/pkg/logger"
)

// Manager 生命周期管理器：启动具名协程，收到信号、协程出错或根上下文取消时按逆序优雅退出
type Manager struct {
	mu              sync.Mutex
	workers         map[string]*Worker
	order           []string
	signals         []os.Signal
	shutdownTimeout time.Duration
	rootCtx         context.Context
	ctx             context.Context
	cancel          context.CancelFunc
	running         bool
	started         bool
	wg              sync.WaitGroup
	errChan         chan error
	log             logger.Logger

	onStartup     []HookFunc
	onWorkerStart []WorkerHookFunc
	onWorkerExit  []WorkerHookFunc
	onShutdown    []HookFunc
	onTimeout     []HookFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager 创建生命周期管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		workers:         make(map[string]*Worker),
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: 30 * time.Second,
		rootCtx:         context.Background(),
		errChan:         make(chan error, 1),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Default()
	}
	m.ctx, m.cancel = context.WithCancel(m.rootCtx)
	return m
}

// AddWorker 添加协程，初始协程启动后添加的立即启动
func (m *Manager) AddWorker(name string, runFunc RunFunc, opts ...WorkerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workers[name]; exists {
		return ErrWorkerExists
	}

	w := newWorker(name, runFunc, opts...)
	m.workers[name] = w
	m.order = append(m.order, name)

	if m.started {
		m.launch(w)
	}
	return nil
}

// StopWorker 停止指定协程
func (m *Manager) StopWorker(name string) error {
	m.mu.Lock()
	w, exists := m.workers[name]
	m.mu.Unlock()

	if !exists {
		return ErrWorkerNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()
	return w.stop(ctx)
}

// Workers 返回当前协程名称（按添加顺序）
func (m *Manager) Workers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// OnStartup 注册启动钩子，任一返回错误则 Run 失败
func (m *Manager) OnStartup(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStartup = append(m.onStartup, fn)
}

// OnWorkerStart 注册协程启动钩子
func (m *Manager) OnWorkerStart(fn WorkerHookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWorkerStart = append(m.onWorkerStart, fn)
}

// OnWorkerExit 注册协程退出钩子
func (m *Manager) OnWorkerExit(fn WorkerHookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWorkerExit = append(m.onWorkerExit, fn)
}

// OnShutdown 注册退出钩子
func (m *Manager) OnShutdown(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// OnTimeout 注册超时钩子
func (m *Manager) OnTimeout(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = append(m.onTimeout, fn)
}

// Run 启动管理器并阻塞到退出完成
func (m *Manager) Run() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	startup := append([]HookFunc(nil), m.onStartup...)
	m.mu.Unlock()

	for _, fn := range startup {
		if err := fn(m.ctx); err != nil {
			m.cancel()
			return err
		}
	}

	m.mu.Lock()
	for _, name := range m.order {
		m.launch(m.workers[name])
	}
	m.started = true
	m.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, m.signals...)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		m.log.Info("received signal, shutting down", logger.String("signal", sig.String()))
	case runErr = <-m.errChan:
		m.log.Error("worker failed, shutting down", logger.Err(runErr))
	case <-m.ctx.Done():
	}

	if err := m.shutdown(); err != nil {
		return err
	}
	return runErr
}

// Shutdown 手动触发退出，可重复调用
func (m *Manager) Shutdown() error {
	return m.shutdown()
}

// launch 调用方需持有锁
func (m *Manager) launch(w *Worker) {
	ctx, cancel := context.WithCancel(m.ctx)
	w.cancel = cancel
	m.wg.Add(1)

	startHooks := append([]WorkerHookFunc(nil), m.onWorkerStart...)
	exitHooks := append([]WorkerHookFunc(nil), m.onWorkerExit...)

	go func() {
		defer m.wg.Done()

		for _, fn := range startHooks {
			fn(w.name, nil)
		}
		err := w.runFunc(ctx)
		w.err = err
		for _, fn := range exitHooks {
			fn(w.name, err)
		}

		m.mu.Lock()
		delete(m.workers, w.name)
		for i, n := range m.order {
			if n == w.name {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		m.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			select {
			case m.errChan <- err:
			default:
			}
		}
	}()
}

func (m *Manager) shutdown() error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.doShutdown()
	})
	return m.shutdownErr
}

func (m *Manager) doShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		workers = append(workers, m.workers[m.order[i]])
	}
	timeoutHooks := append([]HookFunc(nil), m.onTimeout...)
	shutdownHooks := append([]HookFunc(nil), m.onShutdown...)
	m.mu.Unlock()

	for _, w := range workers {
		if err := w.stop(ctx); err != nil {
			m.log.Warn("worker stop failed", logger.String("worker", w.name), logger.Err(err))
		}
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		for _, fn := range timeoutHooks {
			_ = fn(ctx)
		}
		return ErrShutdownTimeout
	}

	for _, fn := range shutdownHooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
