package lifecycle

import "context"

// RunFunc 协程运行函数，ctx 取消时应返回
type RunFunc func(ctx context.Context) error

// StopFunc 协程停止函数
type StopFunc func(ctx context.Context) error

// HookFunc 钩子函数
type HookFunc func(ctx context.Context) error

// WorkerHookFunc 协程钩子函数
type WorkerHookFunc func(name string, err error)

// Worker 协程抽象
type Worker struct {
	name     string
	runFunc  RunFunc
	stopFunc StopFunc
	cancel   context.CancelFunc
	err      error
}

// WorkerOption 协程配置选项
type WorkerOption func(*Worker)

// WithStopFunc 设置停止函数，退出时按注册的逆序调用
func WithStopFunc(stopFunc StopFunc) WorkerOption {
	return func(w *Worker) {
		w.stopFunc = stopFunc
	}
}

func newWorker(name string, runFunc RunFunc, opts ...WorkerOption) *Worker {
	w := &Worker{name: name, runFunc: runFunc}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name 返回协程名称
func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.stopFunc != nil {
		return w.stopFunc(ctx)
	}
	return nil
}

// Err 返回协程退出时的错误
func (w *Worker) Err() error {
	return w.err
}
