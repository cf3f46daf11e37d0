package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/subgames/pkg/statemachine"
)

type fakeConn struct {
	mu       sync.Mutex
	acquired []uint64
	released int
}

func (f *fakeConn) hooks() Hooks {
	return Hooks{
		Acquire: func(tag uint64) {
			f.mu.Lock()
			f.acquired = append(f.acquired, tag)
			f.mu.Unlock()
		},
		Release: func() {
			f.mu.Lock()
			f.released++
			f.mu.Unlock()
		},
	}
}

func (f *fakeConn) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acquired)
}

func newTestLifecycle(delay time.Duration) (*Lifecycle, *fakeConn) {
	conn := &fakeConn{}
	l := NewLifecycle("test", NewRetryPolicy(delay, 50*time.Millisecond), conn.hooks(), ActiveSession)
	return l, conn
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(3*time.Second, 0)
	assert.True(t, p.Reconnect)
	assert.Equal(t, 3*time.Second, p.Delay)
	assert.Equal(t, DefaultHandshakeTimeout, p.HandshakeTimeout)

	p = NewRetryPolicy(0, time.Second)
	assert.False(t, p.Reconnect, "非正延迟应关闭重连")
	assert.Equal(t, MinRetryDelay, p.Delay)

	p = NewRetryPolicy(-time.Second, time.Second)
	assert.False(t, p.Reconnect)
}

func TestLifecycle_StartAcquires(t *testing.T) {
	l, conn := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	assert.Equal(t, ActiveSession, l.State())
	assert.Equal(t, 1, conn.acquireCount())
	assert.NotEmpty(t, l.SessionID())

	l.Start()
	assert.Equal(t, 1, conn.acquireCount(), "重复 Start 不应再次连接")

	l.Fire(Connected)
	l.Fire(SignedIn)
	assert.Equal(t, Ready, l.State())
	assert.True(t, l.Machine.IsInState(ActiveSession))
}

func TestLifecycle_StopReleases(t *testing.T) {
	l, conn := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	l.Fire(Connected)
	l.Stop()

	assert.Equal(t, SignedOff, l.State())
	assert.Equal(t, 1, conn.released)
	assert.Empty(t, l.SessionID())
	assert.Equal(t, 0, l.Timers.GetTimerCount(), "停止后不应残留定时器")
}

func TestLifecycle_StaleConnectRequestRefused(t *testing.T) {
	l, conn := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	l.Stop()

	err := l.Machine.Fire(ConnectRequested)
	require.Error(t, err)
	assert.True(t, errors.Is(err, statemachine.ErrTransitionDenied))
	assert.False(t, l.Machine.CanFire(ConnectRequested))
	assert.Equal(t, SignedOff, l.State())
	assert.Equal(t, 1, conn.acquireCount())
}

func TestLifecycle_TransientDisconnectRetries(t *testing.T) {
	l, conn := newTestLifecycle(40 * time.Millisecond)
	defer l.Dispose()

	l.Start()
	l.Fire(Connected)
	l.Fire(SignedIn)
	require.Equal(t, Ready, l.State())

	l.Fire(Disconnected)
	assert.Equal(t, RetryConnection, l.State())
	_, armed := l.Timers.GetTimer("test:retry")
	assert.True(t, armed, "进入 RetryConnection 应启动重连定时器")
	assert.Equal(t, 1, conn.released)

	require.Eventually(t, func() bool {
		return l.State() == ActiveSession
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, conn.acquireCount())

	_, armed = l.Timers.GetTimer("test:retry")
	assert.False(t, armed, "离开 RetryConnection 后定时器应被移除")
}

func TestLifecycle_StopDuringRetry(t *testing.T) {
	l, conn := newTestLifecycle(50 * time.Millisecond)
	defer l.Dispose()

	l.Start()
	l.Fire(Disconnected)
	require.Equal(t, RetryConnection, l.State())

	l.Stop()
	assert.Equal(t, SignedOff, l.State())
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, SignedOff, l.State())
	assert.Equal(t, 1, conn.acquireCount(), "停止后不应再重连")
}

func TestLifecycle_NonPositiveDelayDisablesReconnect(t *testing.T) {
	l, _ := newTestLifecycle(0)
	defer l.Dispose()

	l.Start()
	l.Fire(Connected)
	l.Fire(Disconnected)
	assert.Equal(t, SignedOff, l.State())
}

func TestLifecycle_InvalidCredentials(t *testing.T) {
	l, conn := newTestLifecycle(20 * time.Millisecond)
	defer l.Dispose()

	var raised atomic.Int32
	l.OnInvalidCredentials(func() { raised.Add(1) })

	l.Start()
	l.Fire(Connected)
	l.Fire(AuthInvalid)

	assert.Equal(t, SignedOff, l.State())
	assert.Equal(t, int32(1), raised.Load())
	assert.False(t, l.Running())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, SignedOff, l.State())
	assert.Equal(t, 1, conn.acquireCount(), "凭据无效后不应自动重连")
	assert.Equal(t, 0, l.Timers.GetTimerCount())
}

func TestLifecycle_HandshakeTimeout(t *testing.T) {
	l, _ := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	l.Fire(Connected)
	require.Equal(t, Authenticating, l.State())

	require.Eventually(t, func() bool {
		return l.State() == RetryConnection
	}, time.Second, 5*time.Millisecond)
}

func TestLifecycle_SignedInCancelsHandshake(t *testing.T) {
	l, _ := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	l.Fire(Connected)
	l.Fire(SignedIn)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Ready, l.State())
}

func TestLifecycle_FireIfCurrent(t *testing.T) {
	l, conn := newTestLifecycle(time.Second)
	defer l.Dispose()

	l.Start()
	stale := conn.acquired[0]
	l.Fire(Disconnected)
	l.Stop()
	l.Start()

	l.FireIfCurrent(stale, Connected)
	assert.Equal(t, ActiveSession, l.State(), "旧代数的事件应被丢弃")

	l.FireIfCurrent(l.Generation().Current(), Connected)
	assert.Equal(t, Authenticating, l.State())
}
