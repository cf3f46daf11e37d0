package taskpool

import "errors"

var (
	// ErrQueueFull 队列已满，任务未被接收
	ErrQueueFull = errors.New("taskpool: queue is full")

	// ErrPoolClosed 任务池已关闭
	ErrPoolClosed = errors.New("taskpool: pool is closed")

	// ErrTaskTimeout 任务在超时前未返回
	ErrTaskTimeout = errors.New("taskpool: task timeout")

	// ErrTaskPanic 任务执行时 panic
	ErrTaskPanic = errors.New("taskpool: task panic")
)
