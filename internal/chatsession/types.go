package chatsession

import (
	"context"
	"errors"

	"github.com/junbin-yang/subgames/internal/chatdepot"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/statemachine"
)

// Kind 聊天身份类型
type Kind string

const (
	// Talk 在频道中发言的身份
	Talk Kind = "talk"
	// Whisper 通过群聊房间发送私信的身份
	Whisper Kind = "whisper"
)

// 私信身份额外的状态与触发器
const (
	ResolvingRoom statemachine.State = "ResolvingRoom"

	RoomResolved     statemachine.Trigger = "RoomResolved"
	RoomLookupFailed statemachine.Trigger = "RoomLookupFailed"
)

var (
	// ErrNotReady 会话尚未就绪
	ErrNotReady = errors.New("chatsession: not ready")
	// ErrNoLookup 私信身份缺少房间查询
	ErrNoLookup = errors.New("chatsession: whisper identity needs a membership lookup")
)

// EventKind 聊天客户端事件类型
type EventKind int

const (
	EventConnected EventKind = iota
	EventRegistered
	EventAuthFailed
	EventDisconnected
	EventMessage
	EventChannelJoined
	EventChannelLeft
)

var eventKindNames = map[EventKind]string{
	EventConnected:     "connected",
	EventRegistered:    "registered",
	EventAuthFailed:    "auth_failed",
	EventDisconnected:  "disconnected",
	EventMessage:       "message",
	EventChannelJoined: "channel_joined",
	EventChannelLeft:   "channel_left",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event 聊天客户端事件。
// Channel 为空的消息是私信。
type Event struct {
	Kind    EventKind
	Channel string
	Sender  string
	Text    string
	Err     error
}

// Message 收到的聊天消息
type Message struct {
	Channel string
	Sender  string
	Text    string
}

// IsWhisper 是否为私信
func (m Message) IsWhisper() bool {
	return m.Channel == ""
}

// Client 聊天连接。
// Connect 异步建立连接，结果通过 Events 送达；Disconnect 必须幂等。
type Client interface {
	Connect(ctx context.Context, server string, auth session.AuthInfo) error
	Disconnect()
	Events() <-chan Event
	SendMessage(target, text string) error
	JoinChannel(name string) error
	SendRaw(line string) error
}

// ClientFactory 每次进入 ActiveSession 时创建新的客户端
type ClientFactory func() Client

// MembershipLookup 查询账号所在的群聊房间，同步调用
type MembershipLookup interface {
	GetRoomFor(ctx context.Context, token string) (*chatdepot.Room, error)
}

// ServerDirectory 按集群列出聊天服务器
type ServerDirectory interface {
	Servers(ctx context.Context, cluster string) ([]string, error)
}
