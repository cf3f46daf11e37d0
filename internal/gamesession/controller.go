package gamesession

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/statemachine"
)

// 默认参数
const (
	DefaultRetryDelay   = 2 * time.Second
	DefaultMatchTimeout = 5 * time.Second
	DefaultStartCommand = "!start"
	lobbyChannelPrefix  = "Lobby_"
)

// Config 游戏会话配置
type Config struct {
	Retry        session.RetryPolicy
	MatchTimeout time.Duration
	// StartCommand 大厅聊天中出现该文本时开始游戏
	StartCommand string
	NewClient    ClientFactory
}

// Controller 游戏平台身份的生命周期控制器。
// 在公共状态树的 Ready 之下追加 Menu、Lobby、Play。
type Controller struct {
	*session.Lifecycle

	cfg Config

	mu           sync.RWMutex
	client       Client
	lobby        *LobbyInfo
	lobbyChannel uint64
	pending      map[uint64]func(*MatchResult)

	lobbyObservers  []func(prev, cur *LobbyInfo)
	joinedObservers []func()
	chatObservers   []func(ChatMessage)
	inviteObservers []func(Invite)
}

// New 创建游戏会话控制器
func New(cfg Config) (*Controller, error) {
	if cfg.NewClient == nil {
		return nil, fmt.Errorf("gamesession: client factory is required")
	}
	if cfg.Retry == (session.RetryPolicy{}) {
		cfg.Retry = session.NewRetryPolicy(DefaultRetryDelay, session.DefaultHandshakeTimeout)
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}
	if cfg.StartCommand == "" {
		cfg.StartCommand = DefaultStartCommand
	}

	c := &Controller{cfg: cfg, pending: make(map[uint64]func(*MatchResult))}
	c.Lifecycle = session.NewLifecycle("game", cfg.Retry, session.Hooks{
		Acquire: c.acquire,
		Release: c.release,
	}, session.ActiveSession)

	m := c.Machine
	m.Configure(session.Ready).
		OnEntryFrom(session.SignedIn, func(statemachine.Transition) { c.startCoordinator() }).
		PermitReentry(CoordinatorDisconnected).
		Permit(CoordinatorConnected, Menu).
		Permit(EnteredLobbyUI, Lobby).
		Permit(EnteredLobbyPlay, Play).
		Ignore(NoLobby)

	m.Configure(Menu).
		SubstateOf(session.Ready).
		Ignore(CoordinatorConnected)

	m.Configure(Lobby).
		SubstateOf(Menu).
		OnEntry(func(statemachine.Transition) { c.enterLobby() }).
		OnExit(func(statemachine.Transition) { c.leaveLobbyChat() }).
		Ignore(EnteredLobbyUI).
		Permit(NoLobby, Menu)

	m.Configure(Play).
		SubstateOf(Menu).
		Ignore(EnteredLobbyPlay).
		Permit(NoLobby, Menu)

	return c, nil
}

// IsReady 已登录游戏平台
func (c *Controller) IsReady() bool {
	return c.Machine.IsInState(session.Ready)
}

// InMenu 游戏协调服务已连接（含大厅与游戏中）
func (c *Controller) InMenu() bool {
	return c.Machine.IsInState(Menu)
}

// Lobby 返回最近一次大厅快照，不在大厅时为 nil
func (c *Controller) Lobby() *LobbyInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lobby
}

// LocalID 返回本地身份，未连接时为 0
func (c *Controller) LocalID() uint64 {
	cl := c.currentClient()
	if cl == nil {
		return 0
	}
	return cl.LocalID()
}

// OnLobbyUpdate 注册大厅快照观察者，参数为旧快照与新快照
func (c *Controller) OnLobbyUpdate(fn func(prev, cur *LobbyInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lobbyObservers = append(c.lobbyObservers, fn)
}

// OnLobbyChatJoined 注册加入大厅聊天频道的观察者
func (c *Controller) OnLobbyChatJoined(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinedObservers = append(c.joinedObservers, fn)
}

// OnLobbyChat 注册大厅聊天消息观察者
func (c *Controller) OnLobbyChat(fn func(ChatMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatObservers = append(c.chatObservers, fn)
}

// OnInvite 注册邀请观察者
func (c *Controller) OnInvite(fn func(Invite)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inviteObservers = append(c.inviteObservers, fn)
}

// LeaveLobby 放弃当前游戏并离开大厅
func (c *Controller) LeaveLobby() error {
	cl := c.currentClient()
	if cl == nil {
		return ErrNotConnected
	}
	return cl.LeaveLobby()
}

// LaunchLobby 开始大厅中的游戏
func (c *Controller) LaunchLobby() error {
	cl := c.currentClient()
	if cl == nil {
		return ErrNotConnected
	}
	return cl.LaunchLobby()
}

// RespondInvite 接受或拒绝邀请
func (c *Controller) RespondInvite(invite Invite, accept bool) error {
	cl := c.currentClient()
	if cl == nil {
		return ErrNotConnected
	}
	return cl.RespondInvite(invite, accept)
}

// SendLobbyMessage 向大厅聊天频道发送消息
func (c *Controller) SendLobbyMessage(text string) error {
	c.mu.RLock()
	cl, ch := c.client, c.lobbyChannel
	c.mu.RUnlock()
	if cl == nil {
		return ErrNotConnected
	}
	if ch == 0 {
		return ErrNoLobbyChannel
	}
	return cl.SendChannelMessage(ch, text)
}

// SendDirectMessage 向好友发送私信
func (c *Controller) SendDirectMessage(to uint64, text string) error {
	cl := c.currentClient()
	if cl == nil {
		return ErrNotConnected
	}
	if !cl.IsFriend(to) {
		return ErrNotFriend
	}
	return cl.SendDirectMessage(to, text)
}

// FetchMatchResult 请求比赛结果。
// cb 恰好被调用一次：收到结果时传入结果，超时后传入 nil，超时后到达的结果被丢弃。
func (c *Controller) FetchMatchResult(matchID uint64, cb func(*MatchResult)) error {
	c.mu.Lock()
	cl := c.client
	if cl == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if _, exists := c.pending[matchID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrMatchPending, matchID)
	}
	c.pending[matchID] = cb
	c.mu.Unlock()

	if err := c.Timers.CreateOnceTimer(matchTimerID(matchID), c.cfg.MatchTimeout, func() {
		c.resolveMatch(matchID, nil)
	}); err != nil {
		c.mu.Lock()
		delete(c.pending, matchID)
		c.mu.Unlock()
		return err
	}

	if err := cl.RequestMatchResult(matchID); err != nil {
		c.Log.Debug("match request failed", logger.Uint64("match_id", matchID), logger.Err(err))
	}
	return nil
}

func matchTimerID(matchID uint64) string {
	return fmt.Sprintf("match:%d", matchID)
}

func (c *Controller) resolveMatch(matchID uint64, res *MatchResult) {
	c.mu.Lock()
	cb, ok := c.pending[matchID]
	delete(c.pending, matchID)
	c.mu.Unlock()
	if !ok {
		return
	}
	if res != nil {
		_ = c.Timers.RemoveTimer(matchTimerID(matchID))
	} else {
		c.Log.Debug("match result timed out", logger.Uint64("match_id", matchID))
	}
	cb(res)
}

func (c *Controller) currentClient() Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Controller) acquire(tag uint64) {
	cl := c.cfg.NewClient()

	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()

	go session.Pump(c.Generation(), tag, cl.Events(), session.PumpPollInterval, func(ev Event) {
		c.handle(tag, ev)
	})

	if err := cl.Connect(context.Background()); err != nil {
		c.Log.Debug("connect failed", logger.Err(err))
		c.FireIfCurrent(tag, session.Disconnected)
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.lobby = nil
	c.lobbyChannel = 0
	c.mu.Unlock()

	if cl != nil {
		cl.Disconnect()
	}
}

func (c *Controller) startCoordinator() {
	cl := c.currentClient()
	if cl == nil {
		return
	}
	if err := cl.StartCoordinator(); err != nil {
		c.Log.Warn("start coordinator failed", logger.Err(err))
	}
}

func (c *Controller) handle(tag uint64, ev Event) {
	switch ev.Kind {
	case EventConnected:
		c.FireIfCurrent(tag, session.Connected)
	case EventDisconnected:
		c.Log.Debug("disconnected", logger.Err(ev.Err))
		c.FireIfCurrent(tag, session.Disconnected)
	case EventAuthResult:
		c.signedOn(tag, ev.Result)
	case EventCoordinatorStatus:
		if ev.CoordinatorReady {
			c.FireIfCurrent(tag, CoordinatorConnected)
		} else {
			c.FireIfCurrent(tag, CoordinatorDisconnected)
		}
	case EventLobbySnapshot:
		if c.Generation().IsCurrent(tag) {
			c.lobbyUpdated(tag, ev.Lobby)
		}
	case EventChatMessage:
		c.chatReceived(ev.Chat)
	case EventInviteReceived:
		c.mu.RLock()
		observers := append([]func(Invite){}, c.inviteObservers...)
		c.mu.RUnlock()
		for _, fn := range observers {
			fn(ev.Invite)
		}
	case EventMatchResult:
		c.resolveMatch(ev.MatchID, ev.Match)
	}
}

func (c *Controller) signedOn(tag uint64, code ResultCode) {
	switch Classify(code) {
	case ClassOK:
		c.FireIfCurrent(tag, session.SignedIn)
	case ClassRetry:
		c.Log.Info("sign on failed, will retry", logger.String("result", code.String()))
		c.FireIfCurrent(tag, session.Disconnected)
	default:
		c.Log.Error("sign on rejected", logger.String("result", code.String()))
		c.FireIfCurrent(tag, session.AuthInvalid)
	}
}

// lobbyUpdated 先保存快照再触发状态转换，最后通知观察者
func (c *Controller) lobbyUpdated(tag uint64, lobby *LobbyInfo) {
	c.mu.Lock()
	prev := c.lobby
	c.lobby = lobby
	c.mu.Unlock()

	switch {
	case lobby == nil:
		c.FireIfCurrent(tag, NoLobby)
	case lobby.InUI():
		c.FireIfCurrent(tag, EnteredLobbyUI)
	default:
		c.FireIfCurrent(tag, EnteredLobbyPlay)
	}

	c.mu.RLock()
	observers := append([]func(prev, cur *LobbyInfo){}, c.lobbyObservers...)
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(prev, lobby)
	}
}

func (c *Controller) enterLobby() {
	cl := c.currentClient()
	lobby := c.Lobby()
	if cl == nil || lobby == nil {
		return
	}

	if err := cl.JoinTeam(TeamPlayerPool, PlayerPoolSlot); err != nil {
		c.Log.Debug("join player pool failed", logger.Err(err))
	}
	id, err := cl.JoinChatChannel(fmt.Sprintf("%s%d", lobbyChannelPrefix, lobby.ID))
	if err != nil {
		c.Log.Warn("join lobby chat failed", logger.Uint64("lobby_id", lobby.ID), logger.Err(err))
		return
	}

	c.mu.Lock()
	c.lobbyChannel = id
	observers := append([]func(){}, c.joinedObservers...)
	c.mu.Unlock()
	c.Log.Debug("joined lobby chat", logger.Uint64("lobby_id", lobby.ID), logger.Uint64("channel_id", id))
	for _, fn := range observers {
		fn()
	}
}

func (c *Controller) leaveLobbyChat() {
	c.mu.Lock()
	cl, ch := c.client, c.lobbyChannel
	c.lobbyChannel = 0
	c.mu.Unlock()
	if cl == nil || ch == 0 {
		return
	}
	if err := cl.LeaveChatChannel(ch); err != nil {
		c.Log.Debug("leave lobby chat failed", logger.Err(err))
	}
}

func (c *Controller) chatReceived(msg ChatMessage) {
	c.mu.RLock()
	cl, ch := c.client, c.lobbyChannel
	observers := append([]func(ChatMessage){}, c.chatObservers...)
	c.mu.RUnlock()
	if ch == 0 || msg.ChannelID != ch {
		return
	}

	if cl != nil && strings.Contains(msg.Text, c.cfg.StartCommand) {
		c.Log.Info("launching lobby", logger.String("sender", msg.Sender))
		if err := cl.LaunchLobby(); err != nil {
			c.Log.Warn("launch lobby failed", logger.Err(err))
		}
	}
	for _, fn := range observers {
		fn(msg)
	}
}
