package gamesession

import "context"

// EventKind 游戏客户端事件类型
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventAuthResult
	EventCoordinatorStatus
	EventLobbySnapshot
	EventChatMessage
	EventInviteReceived
	EventMatchResult
)

// Event 游戏客户端事件，按 Kind 读取对应字段
type Event struct {
	Kind EventKind
	Err  error

	Result           ResultCode
	CoordinatorReady bool
	Lobby            *LobbyInfo
	Chat             ChatMessage
	Invite           Invite
	MatchID          uint64
	Match            *MatchResult
}

// Client 游戏平台会话。
// Connect 异步连接并登录，结果通过 Events 送达；Disconnect 必须幂等。
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Events() <-chan Event

	StartCoordinator() error
	LocalID() uint64
	IsFriend(id uint64) bool

	JoinTeam(team Team, slot int) error
	JoinChatChannel(name string) (uint64, error)
	LeaveChatChannel(id uint64) error
	SendChannelMessage(id uint64, text string) error
	SendDirectMessage(to uint64, text string) error

	RequestMatchResult(matchID uint64) error
	RespondInvite(invite Invite, accept bool) error
	LaunchLobby() error
	LeaveLobby() error
}

// ClientFactory 每次进入 ActiveSession 时创建新的客户端
type ClientFactory func() Client
