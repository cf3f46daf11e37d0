package gamesession

import (
	"context"
	"sync"
	"sync/atomic"
)

// OfflineClient 不连接任何平台的客户端，连接后立即登录成功并报告协调服务可用，从不进入大厅。
// 用于未配置游戏账号时让配对与频道流程照常运行。
type OfflineClient struct {
	id      uint64
	events  chan Event
	once    sync.Once
	closed  atomic.Bool
	channel atomic.Uint64
}

// NewOfflineClient 创建离线客户端
func NewOfflineClient(localID uint64) *OfflineClient {
	return &OfflineClient{id: localID, events: make(chan Event, 8)}
}

// OfflineFactory 返回创建离线客户端的工厂
func OfflineFactory(localID uint64) ClientFactory {
	return func() Client { return NewOfflineClient(localID) }
}

func (o *OfflineClient) emit(ev Event) {
	if o.closed.Load() {
		return
	}
	select {
	case o.events <- ev:
	default:
	}
}

func (o *OfflineClient) Connect(ctx context.Context) error {
	o.emit(Event{Kind: EventConnected})
	o.emit(Event{Kind: EventAuthResult, Result: ResultOK})
	return nil
}

func (o *OfflineClient) Disconnect() {
	o.once.Do(func() {
		o.closed.Store(true)
	})
}

func (o *OfflineClient) Events() <-chan Event { return o.events }

func (o *OfflineClient) StartCoordinator() error {
	o.emit(Event{Kind: EventCoordinatorStatus, CoordinatorReady: true})
	return nil
}

func (o *OfflineClient) LocalID() uint64               { return o.id }
func (o *OfflineClient) IsFriend(id uint64) bool       { return false }
func (o *OfflineClient) JoinTeam(Team, int) error      { return nil }
func (o *OfflineClient) LeaveChatChannel(uint64) error { return nil }

func (o *OfflineClient) JoinChatChannel(name string) (uint64, error) {
	return o.channel.Add(1), nil
}

func (o *OfflineClient) SendChannelMessage(uint64, string) error { return nil }
func (o *OfflineClient) SendDirectMessage(uint64, string) error  { return nil }
func (o *OfflineClient) RequestMatchResult(uint64) error         { return nil }
func (o *OfflineClient) RespondInvite(Invite, bool) error        { return nil }
func (o *OfflineClient) LaunchLobby() error                      { return nil }
func (o *OfflineClient) LeaveLobby() error                       { return nil }
