package timer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/junbin-yang/subgames/pkg/logger"
)

var (
	// ErrTimerExists 定时器ID已存在
	ErrTimerExists = errors.New("timer: id already exists")

	// ErrTimerNotFound 定时器不存在
	ErrTimerNotFound = errors.New("timer: not found")

	// ErrInvalidInterval 间隔必须为正数
	ErrInvalidInterval = errors.New("timer: interval must be positive")
)

// TimerInfo 定时器信息
type TimerInfo struct {
	ID        string
	Interval  time.Duration
	IsOnce    bool
	CreatedAt time.Time
	Fired     uint64
}

type entry struct {
	info  TimerInfo
	fn    func()
	timer *time.Timer
}

// Manager 按ID管理一组定时器。
// 被移除或重置的定时器，其尚未开始执行的回调不会再运行。
type Manager struct {
	mu      sync.Mutex
	timers  map[string]*entry
	onPanic func(id string, r interface{})
}

// Option 管理器选项
type Option func(*Manager)

// WithPanicHandler 设置回调 panic 时的处理函数
func WithPanicHandler(fn func(id string, r interface{})) Option {
	return func(m *Manager) { m.onPanic = fn }
}

// NewManager 创建定时器管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		timers: make(map[string]*entry),
		onPanic: func(id string, r interface{}) {
			logger.Error("timer callback panic", logger.String("id", id), logger.Any("panic", r))
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTimer 创建周期性定时器
func (m *Manager) CreateTimer(id string, interval time.Duration, fn func()) error {
	return m.create(id, interval, false, fn)
}

// CreateOnceTimer 创建一次性定时器，执行后自动移除
func (m *Manager) CreateOnceTimer(id string, delay time.Duration, fn func()) error {
	return m.create(id, delay, true, fn)
}

func (m *Manager) create(id string, interval time.Duration, once bool, fn func()) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[id]; exists {
		return fmt.Errorf("%w: %s", ErrTimerExists, id)
	}

	e := &entry{
		info: TimerInfo{ID: id, Interval: interval, IsOnce: once, CreatedAt: time.Now()},
		fn:   fn,
	}
	m.timers[id] = e
	m.arm(e)
	return nil
}

// arm 调用方需持有锁
func (m *Manager) arm(e *entry) {
	e.timer = time.AfterFunc(e.info.Interval, func() { m.fire(e) })
}

func (m *Manager) fire(e *entry) {
	m.mu.Lock()
	if cur, ok := m.timers[e.info.ID]; !ok || cur != e {
		m.mu.Unlock()
		return
	}
	if e.info.IsOnce {
		delete(m.timers, e.info.ID)
	}
	e.info.Fired++
	m.mu.Unlock()

	m.run(e)

	if e.info.IsOnce {
		return
	}
	m.mu.Lock()
	if cur, ok := m.timers[e.info.ID]; ok && cur == e {
		m.arm(e)
	}
	m.mu.Unlock()
}

func (m *Manager) run(e *entry) {
	defer func() {
		if r := recover(); r != nil && m.onPanic != nil {
			m.onPanic(e.info.ID, r)
		}
	}()
	e.fn()
}

// RemoveTimer 停止并移除定时器
func (m *Manager) RemoveTimer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	e.timer.Stop()
	delete(m.timers, id)
	return nil
}

// ResetTimer 以新的间隔重新计时
func (m *Manager) ResetTimer(id string, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.timers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	old.timer.Stop()

	info := old.info
	info.Interval = interval
	e := &entry{info: info, fn: old.fn}
	m.timers[id] = e
	m.arm(e)
	return nil
}

// GetTimer 获取定时器信息
func (m *Manager) GetTimer(id string) (TimerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[id]
	if !ok {
		return TimerInfo{}, false
	}
	return e.info, true
}

// ListTimers 返回排序后的定时器ID
func (m *Manager) ListTimers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetTimerCount 返回定时器数量
func (m *Manager) GetTimerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// StopAll 停止并移除所有定时器，管理器仍可继续使用
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.timers {
		e.timer.Stop()
		delete(m.timers, id)
	}
}
