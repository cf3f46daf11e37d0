package taskpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TaskPool 固定数量工作协程的任务池，用于投递不关心结果的命令。
// 任务之间互不等待，失败只通过完成钩子和指标暴露，不会回传给提交方。
type TaskPool struct {
	tasks        chan *Task
	workerCount  int
	queueSize    int
	runningTasks atomic.Int32
	metrics      *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	defaultTimeout time.Duration
	onTaskComplete func(taskID string, duration time.Duration, err error)
	onShutdown     func(metrics *MetricsSnapshot)
}

// New 创建任务池并启动工作协程
func New(opts ...Option) *TaskPool {
	p := &TaskPool{
		workerCount: 4,
		queueSize:   256,
		metrics:     newMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	if p.queueSize < 0 {
		p.queueSize = 0
	}

	p.tasks = make(chan *Task, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := 0; i < p.workerCount; i++ {
		w := &worker{id: i, pool: p}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(p.ctx)
		}()
	}
	return p
}

// SubmitAsync 投递任务，不等待执行。队列满时立即返回 ErrQueueFull
func (p *TaskPool) SubmitAsync(fn TaskFunc, opts ...TaskOption) error {
	task := newTask(fn, p.defaultTimeout, opts...)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		p.metrics.recordSubmit()
		return nil
	default:
		p.metrics.recordRejected()
		return ErrQueueFull
	}
}

// Shutdown 停止接收新任务，等待已排队的任务执行完毕。
// ctx 到期时取消仍在运行的任务并返回 ctx 的错误，可重复调用
func (p *TaskPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	p.cancel()

	if p.onShutdown != nil {
		p.onShutdown(p.GetMetrics())
	}
	return err
}

// GetMetrics 获取指标快照
func (p *TaskPool) GetMetrics() *MetricsSnapshot {
	return p.metrics.snapshot(len(p.tasks), int(p.runningTasks.Load()), p.workerCount)
}
