package session

import (
	"time"

	"github.com/junbin-yang/subgames/pkg/statemachine"
)

// 所有会话共用的状态
const (
	Conceived       statemachine.State = "Conceived"
	SignedOff       statemachine.State = "SignedOff"
	RetryConnection statemachine.State = "RetryConnection"
	ActiveSession   statemachine.State = "ActiveSession"
	Authenticating  statemachine.State = "Authenticating"
	Ready           statemachine.State = "Ready"
)

// 所有会话共用的触发器
const (
	ConnectRequested    statemachine.Trigger = "ConnectRequested"
	DisconnectRequested statemachine.Trigger = "DisconnectRequested"
	Connected           statemachine.Trigger = "Connected"
	Disconnected        statemachine.Trigger = "Disconnected"
	SignedIn            statemachine.Trigger = "SignedIn"
	AuthInvalid         statemachine.Trigger = "AuthInvalid"
)

// 默认参数
const (
	DefaultHandshakeTimeout = 10 * time.Second
	// MinRetryDelay 非正重连延迟被归一化为该值，同时关闭自动重连
	MinRetryDelay = 10 * time.Millisecond
)

// AuthInfo 登录凭据
type AuthInfo struct {
	Username string
	Password string
}

// RetryPolicy 重连策略
type RetryPolicy struct {
	Delay            time.Duration
	HandshakeTimeout time.Duration
	Reconnect        bool
}

// NewRetryPolicy 创建重连策略。
// delay 非正时归一化为 MinRetryDelay 并关闭重连；handshake 非正时使用 DefaultHandshakeTimeout。
func NewRetryPolicy(delay, handshake time.Duration) RetryPolicy {
	p := RetryPolicy{Delay: delay, HandshakeTimeout: handshake, Reconnect: true}
	if p.Delay <= 0 {
		p.Delay = MinRetryDelay
		p.Reconnect = false
	}
	if p.HandshakeTimeout <= 0 {
		p.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return p
}
