package gamesession

import (
	"errors"

	"github.com/junbin-yang/subgames/pkg/statemachine"
)

// 游戏会话在 Ready 之下的状态
const (
	Menu  statemachine.State = "Menu"
	Lobby statemachine.State = "Lobby"
	Play  statemachine.State = "Play"
)

// 游戏会话特有的触发器
const (
	CoordinatorConnected    statemachine.Trigger = "CoordinatorConnected"
	CoordinatorDisconnected statemachine.Trigger = "CoordinatorDisconnected"
	EnteredLobbyUI          statemachine.Trigger = "EnteredLobbyUI"
	EnteredLobbyPlay        statemachine.Trigger = "EnteredLobbyPlay"
	NoLobby                 statemachine.Trigger = "NoLobby"
)

var (
	// ErrNotConnected 没有可用的客户端
	ErrNotConnected = errors.New("gamesession: not connected")
	// ErrNoLobbyChannel 尚未加入大厅聊天频道
	ErrNoLobbyChannel = errors.New("gamesession: no lobby chat channel")
	// ErrNotFriend 只能给好友发送私信
	ErrNotFriend = errors.New("gamesession: recipient is not a known contact")
	// ErrMatchPending 该比赛结果已在等待中
	ErrMatchPending = errors.New("gamesession: match result already pending")
)

// ResultCode 登录结果
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultFail
	ResultInvalidPassword
	ResultAccountDisabled
	ResultServiceUnavailable
	ResultServiceReadOnly
	ResultTryAnotherEndpoint
	ResultLoginDeniedThrottle
	ResultAlreadyLoggedInElsewhere
	ResultBadResponse
	ResultBusy
	ResultConnectFailed
)

var resultNames = map[ResultCode]string{
	ResultOK:                       "OK",
	ResultFail:                     "Fail",
	ResultInvalidPassword:          "InvalidPassword",
	ResultAccountDisabled:          "AccountDisabled",
	ResultServiceUnavailable:       "ServiceUnavailable",
	ResultServiceReadOnly:          "ServiceReadOnly",
	ResultTryAnotherEndpoint:       "TryAnotherEndpoint",
	ResultLoginDeniedThrottle:      "LoginDeniedThrottle",
	ResultAlreadyLoggedInElsewhere: "AlreadyLoggedInElsewhere",
	ResultBadResponse:              "BadResponse",
	ResultBusy:                     "Busy",
	ResultConnectFailed:            "ConnectFailed",
}

func (r ResultCode) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "Unknown"
}

// ResultClass 登录结果分类
type ResultClass int

const (
	ClassOK ResultClass = iota
	ClassRetry
	ClassFatal
)

// Classify 将登录结果分为成功、可重试与凭据错误
func Classify(code ResultCode) ResultClass {
	switch code {
	case ResultOK:
		return ClassOK
	case ResultServiceUnavailable,
		ResultServiceReadOnly,
		ResultTryAnotherEndpoint,
		ResultLoginDeniedThrottle,
		ResultAlreadyLoggedInElsewhere,
		ResultBadResponse,
		ResultBusy,
		ResultConnectFailed:
		return ClassRetry
	default:
		return ClassFatal
	}
}

// LobbyState 大厅状态
type LobbyState int

const (
	LobbyUI LobbyState = iota
	LobbyServerSetup
	LobbyRun
	LobbyPostGame
)

// Team 大厅中的队伍
type Team int

const (
	TeamRadiant Team = iota
	TeamDire
	TeamBroadcaster
	TeamSpectator
	TeamPlayerPool
)

// PlayerPoolSlot 加入大厅时使用的球员池位置
const PlayerPoolSlot = 6

// Member 大厅成员
type Member struct {
	ID   uint64
	Name string
	Team Team
}

// LobbyInfo 大厅快照
type LobbyInfo struct {
	ID      uint64
	State   LobbyState
	Connect string
	Leader  uint64
	Members []Member
}

// InUI 大厅尚未开始游戏
func (l *LobbyInfo) InUI() bool {
	return l.State == LobbyUI || l.Connect == ""
}

// Find 在队长和成员中查找 id，找到时返回其名称
func (l *LobbyInfo) Find(id uint64) (Member, bool) {
	for _, m := range l.Members {
		if m.ID == id {
			return m, true
		}
	}
	if l.Leader == id {
		return Member{ID: id}, true
	}
	return Member{}, false
}

// InviteKind 邀请类型
type InviteKind int

const (
	InviteLobby InviteKind = iota
	InviteParty
)

func (k InviteKind) String() string {
	if k == InviteParty {
		return "party"
	}
	return "lobby"
}

// Invite 收到的邀请
type Invite struct {
	Kind     InviteKind
	SenderID uint64
	GroupID  uint64
}

// ChatMessage 游戏内聊天消息
type ChatMessage struct {
	ChannelID uint64
	SenderID  uint64
	Sender    string
	Text      string
}

// MatchResult 比赛结果
type MatchResult struct {
	MatchID     uint64
	RadiantWin  bool
	Duration    uint32
	LobbyID     uint64
	PlayerCount int
}
