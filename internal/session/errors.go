package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientDisconnect 可重试的断线，走重连路径
	ErrTransientDisconnect = errors.New("session: transient disconnect")

	// ErrInvalidCredentials 凭据无效，进入 SignedOff 且不再重连
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrHandshakeTimeout 握手超时，按可重试断线处理
	ErrHandshakeTimeout = fmt.Errorf("%w: handshake timeout", ErrTransientDisconnect)

	// ErrRoomLookup 聊天室成员关系查询失败
	ErrRoomLookup = errors.New("session: room lookup failed")
)
