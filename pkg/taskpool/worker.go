package taskpool

import (
	"context"
	"fmt"
	"time"
)

type worker struct {
	id   int
	pool *TaskPool
}

// run 消费任务直到队列关闭或任务池被取消
func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-w.pool.tasks:
			if !ok {
				return
			}
			w.execute(ctx, task)
		}
	}
}

func (w *worker) execute(ctx context.Context, task *Task) {
	p := w.pool
	p.runningTasks.Add(1)
	defer p.runningTasks.Add(-1)

	start := time.Now()
	p.metrics.recordWaitTime(start.Sub(task.SubmitAt))

	res := taskResult{id: task.ID}
	defer func() {
		res.duration = time.Since(start)
		if p.onTaskComplete != nil {
			p.onTaskComplete(res.id, res.duration, res.err)
		}
		p.metrics.recordTaskComplete(res)
	}()

	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	// 任务在独立协程中运行，超时后工作协程不再等待它
	done := make(chan error, 1)
	panicked := make(chan interface{}, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		done <- task.Fn(taskCtx)
	}()

	select {
	case err := <-done:
		res.err = err
	case r := <-panicked:
		res.panicked = true
		res.err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
	case <-taskCtx.Done():
		res.err = ErrTaskTimeout
		if ctx.Err() != nil {
			res.err = ErrPoolClosed
		}
	}
}
