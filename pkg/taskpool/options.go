package taskpool

import "time"

// Option 任务池选项
type Option func(*TaskPool)

// WithWorkers 工作协程数，非正数按 1 处理
func WithWorkers(n int) Option {
	return func(p *TaskPool) { p.workerCount = n }
}

// WithQueueSize 排队上限，超出时 SubmitAsync 返回 ErrQueueFull
func WithQueueSize(size int) Option {
	return func(p *TaskPool) { p.queueSize = size }
}

// WithDefaultTimeout 未单独指定超时的任务使用该值
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *TaskPool) { p.defaultTimeout = d }
}

// WithOnTaskComplete 每个任务结束后调用，err 非空表示失败、超时或 panic
func WithOnTaskComplete(fn func(taskID string, duration time.Duration, err error)) Option {
	return func(p *TaskPool) { p.onTaskComplete = fn }
}

// WithOnShutdown 关闭完成后以最终指标调用
func WithOnShutdown(fn func(metrics *MetricsSnapshot)) Option {
	return func(p *TaskPool) { p.onShutdown = fn }
}

// TaskOption 单个任务的选项
type TaskOption func(*Task)

// WithTaskID 任务ID，出现在完成钩子和 LastFailedTask 中
func WithTaskID(id string) TaskOption {
	return func(t *Task) { t.ID = id }
}

// WithTimeout 单个任务的超时
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.Timeout = d }
}
