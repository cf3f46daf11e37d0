package channel

import (
	"errors"

	"github.com/junbin-yang/subgames/pkg/statemachine"
	"github.com/junbin-yang/subgames/pkg/taskpool"
)

// 频道在 Ready 之下的大厅状态
const (
	DotaLobby             statemachine.State = "DotaLobby"
	AcquireOwnershipLobby statemachine.State = "AcquireOwnershipLobby"
	ManageLobby           statemachine.State = "ManageLobby"
	LobbyPlay             statemachine.State = "LobbyPlay"
)

// 大厅相关触发器
const (
	LobbyRequested   statemachine.Trigger = "LobbyRequested"
	DotaEnteredLobby statemachine.Trigger = "DotaEnteredLobby"
	DotaNoLobby      statemachine.Trigger = "DotaNoLobby"
	DotaEnteredPlay  statemachine.Trigger = "DotaEnteredPlay"
	LobbyBecameOwner statemachine.Trigger = "LobbyBecameOwner"
)

// ErrNotReady 频道尚未就绪
var ErrNotReady = errors.New("channel: not ready")

// ChannelState 频道共享状态，只在进入 ManageLobby 时修改
type ChannelState struct {
	LobbyID uint64 `json:"lobby_id"`
	PartyID uint64 `json:"party_id"`
}

// DefaultHelpMessages 成为房主后在大厅聊天中依次发送
var DefaultHelpMessages = []string{
	"This lobby is now managed by the channel bot.",
	"Type !start in lobby chat to launch the game.",
	"Only the channel owner can invite the bot to lobbies and parties.",
}

// DefaultRequestFormat 请求房主权限的消息，参数为房主名称
const DefaultRequestFormat = "Hi %s, could you please make me the lobby host?"

// Status 频道状态快照
type Status struct {
	Name     string                        `json:"name"`
	States   map[string]statemachine.State `json:"states"`
	Channel  ChannelState                  `json:"channel"`
	Pool     *taskpool.MetricsSnapshot     `json:"pool"`
	ChatPool *taskpool.MetricsSnapshot     `json:"chat_pool"`
	Recent   []statemachine.Record         `json:"recent"`
}
