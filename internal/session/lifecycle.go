package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/statemachine"
	"github.com/junbin-yang/subgames/pkg/timer"
)

// Hooks 连接资源的获取与释放。
// Acquire 在进入 ActiveSession 时调用，tag 是本次连接的代数；Release 在退出时调用，必须幂等。
type Hooks struct {
	Acquire func(tag uint64)
	Release func()
}

// Lifecycle 会话生命周期的公共部分：状态树、运行标志、重连与握手定时器、连接代数。
// 具体会话在其 Machine 上追加自己的状态。
type Lifecycle struct {
	Name    string
	Machine *statemachine.Machine
	Timers  *timer.Manager
	Policy  RetryPolicy
	Log     logger.Logger

	gen     Generation
	running atomic.Bool
	hooks   Hooks

	mu        sync.RWMutex
	sessionID string
	invalid   []func()

	retryTimerID     string
	handshakeTimerID string
}

// NewLifecycle 创建并配置公共状态树。
// connectTarget 是 SignedOff 收到 ConnectRequested 后进入的状态，通常为 ActiveSession。
func NewLifecycle(name string, policy RetryPolicy, hooks Hooks, connectTarget statemachine.State) *Lifecycle {
	l := &Lifecycle{
		Name:             name,
		Machine:          statemachine.NewMachine(SignedOff),
		Timers:           timer.NewManager(),
		Policy:           policy,
		Log:              logger.With(logger.String("session", name)),
		hooks:            hooks,
		retryTimerID:     name + ":retry",
		handshakeTimerID: name + ":handshake",
	}
	l.configure(connectTarget)

	l.Machine.OnTransitioned(func(t statemachine.Transition) {
		l.Log.Debugf("%s => %s (%s)", t.Source, t.Destination, t.Trigger)
	})
	l.Machine.OnUnhandledTrigger(func(state statemachine.State, trigger statemachine.Trigger, err error) {
		l.Log.Debug("trigger dropped", logger.String("state", string(state)), logger.String("trigger", string(trigger)), logger.Err(err))
	})
	return l
}

func (l *Lifecycle) configure(connectTarget statemachine.State) {
	m := l.Machine

	m.Configure(Conceived).
		Permit(DisconnectRequested, SignedOff)

	m.Configure(SignedOff).
		SubstateOf(Conceived).
		Ignore(Disconnected).
		Ignore(DisconnectRequested).
		OnEntryFrom(AuthInvalid, func(statemachine.Transition) { l.credentialsRejected() }).
		PermitIf(ConnectRequested, connectTarget, l.running.Load)

	m.Configure(RetryConnection).
		SubstateOf(SignedOff).
		Permit(DisconnectRequested, SignedOff).
		OnEntry(func(statemachine.Transition) { l.armRetry() }).
		OnExit(func(statemachine.Transition) { _ = l.Timers.RemoveTimer(l.retryTimerID) })

	m.Configure(ActiveSession).
		SubstateOf(Conceived).
		OnEntry(func(statemachine.Transition) { l.acquire() }).
		OnExit(func(statemachine.Transition) { l.release() }).
		Permit(Connected, Authenticating).
		PermitDynamic(Disconnected, l.DisconnectTarget).
		Permit(AuthInvalid, SignedOff)

	m.Configure(Authenticating).
		SubstateOf(ActiveSession).
		OnEntry(func(statemachine.Transition) { l.armHandshake() }).
		OnExit(func(statemachine.Transition) { _ = l.Timers.RemoveTimer(l.handshakeTimerID) }).
		Ignore(Connected).
		Permit(SignedIn, Ready)

	m.Configure(Ready).
		SubstateOf(ActiveSession).
		Ignore(Connected).
		Ignore(SignedIn)
}

// DisconnectTarget 断线后的去向：允许重连且仍在运行时进入 RetryConnection
func (l *Lifecycle) DisconnectTarget() statemachine.State {
	if l.Policy.Reconnect && l.running.Load() {
		return RetryConnection
	}
	return SignedOff
}

func (l *Lifecycle) acquire() {
	tag := l.gen.Next()
	id := uuid.NewString()
	l.mu.Lock()
	l.sessionID = id
	l.mu.Unlock()

	l.Log.Debug("acquiring connection", logger.String("session_id", id), logger.Uint64("generation", tag))
	if l.hooks.Acquire != nil {
		l.hooks.Acquire(tag)
	}
}

func (l *Lifecycle) release() {
	l.gen.Next()
	l.mu.Lock()
	l.sessionID = ""
	l.mu.Unlock()
	if l.hooks.Release != nil {
		l.hooks.Release()
	}
}

func (l *Lifecycle) armRetry() {
	_ = l.Timers.RemoveTimer(l.retryTimerID)
	err := l.Timers.CreateOnceTimer(l.retryTimerID, l.Policy.Delay, func() {
		if !l.Machine.IsInState(RetryConnection) {
			return
		}
		l.Log.Debug("retrying connection")
		l.Fire(ConnectRequested)
	})
	if err != nil {
		l.Log.Warn("arm retry timer failed", logger.Err(err))
	}
}

func (l *Lifecycle) armHandshake() {
	tag := l.gen.Current()
	_ = l.Timers.RemoveTimer(l.handshakeTimerID)
	err := l.Timers.CreateOnceTimer(l.handshakeTimerID, l.Policy.HandshakeTimeout, func() {
		if !l.gen.IsCurrent(tag) || !l.Machine.IsInState(Authenticating) {
			return
		}
		l.Log.Debug("handshake timed out", logger.Err(ErrHandshakeTimeout))
		l.Fire(Disconnected)
	})
	if err != nil {
		l.Log.Warn("arm handshake timer failed", logger.Err(err))
	}
}

func (l *Lifecycle) credentialsRejected() {
	l.running.Store(false)
	l.Log.Error("credentials rejected, not reconnecting", logger.Err(ErrInvalidCredentials))

	l.mu.RLock()
	observers := append([]func(){}, l.invalid...)
	l.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}

// Fire 触发状态转换，失败只记录日志
func (l *Lifecycle) Fire(trigger statemachine.Trigger) {
	if err := l.Machine.Fire(trigger); err != nil {
		if errors.Is(err, statemachine.ErrTransitionDenied) || errors.Is(err, statemachine.ErrInvalidTransition) {
			l.Log.Debug("trigger refused", logger.String("trigger", string(trigger)), logger.Err(err))
			return
		}
		l.Log.Warn("trigger failed", logger.String("trigger", string(trigger)), logger.Err(err))
	}
}

// FireIfCurrent 仅当 tag 仍是当前连接代数时触发，用于丢弃旧连接迟到的事件
func (l *Lifecycle) FireIfCurrent(tag uint64, trigger statemachine.Trigger) {
	if !l.gen.IsCurrent(tag) {
		return
	}
	l.Fire(trigger)
}

// Start 置运行标志并请求连接，已在运行时无操作
func (l *Lifecycle) Start() {
	if l.running.CompareAndSwap(false, true) {
		l.Fire(ConnectRequested)
	}
}

// Stop 清除运行标志并请求断开，未运行时无操作
func (l *Lifecycle) Stop() {
	if l.running.CompareAndSwap(true, false) {
		l.Fire(DisconnectRequested)
	}
}

// Dispose 停止会话，移除所有定时器并释放连接
func (l *Lifecycle) Dispose() {
	l.Stop()
	l.Timers.StopAll()
	l.release()
}

// Running 返回运行标志
func (l *Lifecycle) Running() bool {
	return l.running.Load()
}

// Generation 返回连接代数
func (l *Lifecycle) Generation() *Generation {
	return &l.gen
}

// SessionID 返回当前连接的会话ID，未连接时为空
func (l *Lifecycle) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// OnInvalidCredentials 注册凭据无效的观察者
func (l *Lifecycle) OnInvalidCredentials(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalid = append(l.invalid, fn)
}

// State 返回当前状态
func (l *Lifecycle) State() statemachine.State {
	return l.Machine.Current()
}

// OnTransitioned 注册转换观察者
func (l *Lifecycle) OnTransitioned(fn statemachine.TransitionHandler) {
	l.Machine.OnTransitioned(fn)
}
