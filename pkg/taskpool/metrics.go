package taskpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics 指标统计
type Metrics struct {
	totalSubmitted atomic.Int64 // 总提交数
	totalRejected  atomic.Int64 // 队列满被拒绝数
	totalCompleted atomic.Int64 // 总完成数
	totalFailed    atomic.Int64 // 总失败数
	totalTimeout   atomic.Int64 // 总超时数
	totalPanic     atomic.Int64 // 总panic数
	totalWaitTime  atomic.Int64 // 总等待时间（纳秒）
	totalExecTime  atomic.Int64 // 总执行时间（纳秒）

	mu         sync.Mutex
	lastFailed string
	lastError  error
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordSubmit() {
	m.totalSubmitted.Add(1)
}

func (m *Metrics) recordRejected() {
	m.totalRejected.Add(1)
}

func (m *Metrics) recordTaskComplete(r taskResult) {
	m.totalCompleted.Add(1)
	m.totalExecTime.Add(r.duration.Nanoseconds())
	if r.err == nil {
		return
	}

	m.totalFailed.Add(1)
	if errors.Is(r.err, ErrTaskTimeout) {
		m.totalTimeout.Add(1)
	}
	if r.panicked {
		m.totalPanic.Add(1)
	}
	m.mu.Lock()
	m.lastFailed = r.id
	m.lastError = r.err
	m.mu.Unlock()
}

func (m *Metrics) recordWaitTime(waitTime time.Duration) {
	m.totalWaitTime.Add(waitTime.Nanoseconds())
}

func (m *Metrics) snapshot(queueLen, runningTasks, activeWorkers int) *MetricsSnapshot {
	completed := m.totalCompleted.Load()
	failed := m.totalFailed.Load()

	s := &MetricsSnapshot{
		TotalSubmitted: m.totalSubmitted.Load(),
		TotalRejected:  m.totalRejected.Load(),
		TotalCompleted: completed,
		TotalFailed:    failed,
		TotalTimeout:   m.totalTimeout.Load(),
		TotalPanic:     m.totalPanic.Load(),
		CurrentQueue:   queueLen,
		RunningTasks:   runningTasks,
		ActiveWorkers:  activeWorkers,
	}
	if completed > 0 {
		s.SuccessRate = float64(completed-failed) / float64(completed) * 100
		s.AvgWaitTime = time.Duration(m.totalWaitTime.Load() / completed)
		s.AvgExecTime = time.Duration(m.totalExecTime.Load() / completed)
	}

	m.mu.Lock()
	s.LastFailedTask = m.lastFailed
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	m.mu.Unlock()
	return s
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	TotalSubmitted int64         `json:"total_submitted"` // 总提交数
	TotalRejected  int64         `json:"total_rejected"`  // 被拒绝数
	TotalCompleted int64         `json:"total_completed"` // 总完成数
	TotalFailed    int64         `json:"total_failed"`    // 总失败数
	TotalTimeout   int64         `json:"total_timeout"`   // 总超时数
	TotalPanic     int64         `json:"total_panic"`     // 总panic数
	SuccessRate    float64       `json:"success_rate"`    // 成功率（%）
	AvgWaitTime    time.Duration `json:"avg_wait_time"`   // 平均等待时间
	AvgExecTime    time.Duration `json:"avg_exec_time"`   // 平均执行时间
	CurrentQueue   int           `json:"current_queue"`   // 当前队列长度
	RunningTasks   int           `json:"running_tasks"`   // 运行中任务数
	ActiveWorkers  int           `json:"active_workers"`  // 工作协程数
	LastFailedTask string        `json:"last_failed_task,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}
