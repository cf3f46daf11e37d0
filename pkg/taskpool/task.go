package taskpool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskFunc 任务函数，超时或任务池关闭时 ctx 被取消
type TaskFunc func(context.Context) error

// Task 排队中的任务
type Task struct {
	ID       string
	Fn       TaskFunc
	Timeout  time.Duration
	SubmitAt time.Time
}

// taskResult 一次执行的结果
type taskResult struct {
	id       string
	err      error
	panicked bool
	duration time.Duration
}

func newTask(fn TaskFunc, timeout time.Duration, opts ...TaskOption) *Task {
	t := &Task{
		ID:       uuid.NewString(),
		Fn:       fn,
		Timeout:  timeout,
		SubmitAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}
