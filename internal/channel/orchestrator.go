package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/junbin-yang/subgames/internal/gamesession"
	"github.com/junbin-yang/subgames/internal/pairing"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/statemachine"
	"github.com/junbin-yang/subgames/pkg/taskpool"
)

// DefaultHistorySize 保留的最近转换数量
const DefaultHistorySize = 64

// Config 频道配置
type Config struct {
	Name string
	// OwnerID 唯一允许邀请和被请求房主权限的身份
	OwnerID       uint64
	RequestFormat string
	HelpMessages  []string
	HistorySize   int
	Pool          *taskpool.TaskPool
}

// Orchestrator 一个频道的总控：组合游戏会话与聊天配对，并管理大厅房主权限
type Orchestrator struct {
	Machine *statemachine.Machine

	cfg     Config
	game    *gamesession.Controller
	chat    *pairing.Pairing
	pool    *taskpool.TaskPool
	ownPool bool
	group   *statemachine.Group
	history *statemachine.History
	log     logger.Logger
	running atomic.Bool

	// seq 保证聚合值的更新顺序与触发顺序一致
	seq sync.Mutex

	mu        sync.RWMutex
	state     ChannelState
	hostLobby uint64
	requested uint64
	aggregate bool
	fired     map[statemachine.Trigger]uint64
}

// New 创建频道总控
func New(cfg Config, game *gamesession.Controller, chat *pairing.Pairing) (*Orchestrator, error) {
	if game == nil || chat == nil {
		return nil, fmt.Errorf("channel: game and chat controllers are required")
	}
	if cfg.RequestFormat == "" {
		cfg.RequestFormat = DefaultRequestFormat
	}
	if cfg.HelpMessages == nil {
		cfg.HelpMessages = DefaultHelpMessages
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}

	o := &Orchestrator{
		Machine: statemachine.NewMachine(session.SignedOff),
		cfg:     cfg,
		game:    game,
		chat:    chat,
		pool:    cfg.Pool,
		group:   statemachine.NewGroup(),
		history: statemachine.NewHistory(cfg.HistorySize),
		log:     logger.With(logger.String("channel", cfg.Name)),
		fired:   make(map[statemachine.Trigger]uint64),
	}
	if o.pool == nil {
		o.pool = taskpool.New(taskpool.WithWorkers(2), taskpool.WithQueueSize(16),
			taskpool.WithOnTaskComplete(pairing.LogTaskFailure(o.log)))
		o.ownPool = true
	}
	o.configure()

	o.group.Add("channel", o.Machine)
	o.group.Add("game", game.Machine)
	o.group.Add("chat", chat.Machine)
	o.history.Attach("channel", o.Machine)
	o.history.Attach("game", game.Machine)
	o.history.Attach("chat", chat.Machine)

	o.Machine.OnTransitioned(func(t statemachine.Transition) {
		o.log.Debugf("%s => %s (%s)", t.Source, t.Destination, t.Trigger)
	})
	game.OnTransitioned(o.gameTransitioned)
	game.OnLobbyUpdate(o.lobbyUpdated)
	game.OnLobbyChatJoined(func() { o.fire(LobbyRequested) })
	game.OnInvite(o.arbitrateInvite)
	chat.OnTransitioned(func(statemachine.Transition) { o.recompute() })
	return o, nil
}

func (o *Orchestrator) configure() {
	m := o.Machine

	m.Configure(session.Conceived).
		Permit(session.DisconnectRequested, session.SignedOff).
		Ignore(LobbyRequested).
		Ignore(DotaEnteredLobby).
		Ignore(DotaEnteredPlay).
		Ignore(DotaNoLobby).
		Ignore(LobbyBecameOwner)

	m.Configure(session.SignedOff).
		SubstateOf(session.Conceived).
		OnEntry(func(statemachine.Transition) { o.submit("stop", o.game.Stop, o.chat.Stop) }).
		Ignore(session.DisconnectRequested).
		Ignore(pairing.ChatbotsReady).
		Ignore(pairing.ChatbotsUnready).
		PermitIf(session.ConnectRequested, pairing.Connecting, o.running.Load)

	m.Configure(pairing.Connecting).
		SubstateOf(session.Conceived).
		OnEntry(func(statemachine.Transition) { o.connecting() }).
		Ignore(session.ConnectRequested).
		Ignore(pairing.ChatbotsUnready).
		Permit(pairing.ChatbotsReady, session.Ready)

	m.Configure(session.Ready).
		SubstateOf(session.Conceived).
		OnEntry(func(statemachine.Transition) { o.checkLobby() }).
		Ignore(session.ConnectRequested).
		Ignore(pairing.ChatbotsReady).
		Permit(pairing.ChatbotsUnready, pairing.Connecting).
		PermitDynamic(DotaEnteredLobby, o.resolveLobby)

	m.Configure(DotaLobby).
		SubstateOf(session.Ready).
		OnExit(func(t statemachine.Transition) {
			if t.Trigger == DotaNoLobby {
				o.clearHost()
			}
		}).
		Ignore(DotaEnteredLobby).
		Permit(DotaEnteredPlay, LobbyPlay).
		Permit(DotaNoLobby, session.Ready)

	m.Configure(AcquireOwnershipLobby).
		SubstateOf(DotaLobby).
		OnEntry(func(statemachine.Transition) { o.requestOwnership() }).
		PermitReentry(LobbyRequested).
		Permit(LobbyBecameOwner, ManageLobby)

	m.Configure(ManageLobby).
		SubstateOf(DotaLobby).
		OnEntry(func(statemachine.Transition) { o.manageLobby() })

	m.Configure(LobbyPlay).
		SubstateOf(DotaLobby).
		Ignore(DotaEnteredPlay).
		PermitDynamic(DotaEnteredLobby, o.resolveLobby)
}

func (o *Orchestrator) submit(action string, game, chat func()) {
	for name, fn := range map[string]func(){"game": game, "chat": chat} {
		fn := fn
		err := o.pool.SubmitAsync(func(ctx context.Context) error {
			fn()
			return nil
		}, taskpool.WithTaskID(action+":"+name))
		if err != nil {
			o.log.Warn("submit failed", logger.String("task", action+":"+name), logger.Err(err))
		}
	}
}

func (o *Orchestrator) connecting() {
	o.submit("start", o.game.Start, o.chat.Start)

	o.mu.RLock()
	ready := o.aggregate
	o.mu.RUnlock()
	if ready {
		o.fire(pairing.ChatbotsReady)
	}
}

// recompute 聊天配对就绪且游戏至少在菜单时整体就绪，输入未变化时不触发
func (o *Orchestrator) recompute() {
	o.seq.Lock()
	defer o.seq.Unlock()

	ready := o.chat.IsReady() && o.game.InMenu()

	o.mu.Lock()
	if ready == o.aggregate {
		o.mu.Unlock()
		return
	}
	o.aggregate = ready
	o.mu.Unlock()

	if ready {
		o.fire(pairing.ChatbotsReady)
	} else {
		o.fire(pairing.ChatbotsUnready)
	}
}

func (o *Orchestrator) gameTransitioned(t statemachine.Transition) {
	o.recompute()

	switch {
	case t.Destination == gamesession.Lobby:
		o.fire(DotaEnteredLobby)
	case t.Destination == gamesession.Play:
		o.fire(DotaEnteredPlay)
	case t.Trigger == gamesession.NoLobby:
		o.fire(DotaNoLobby)
	}
}

func (o *Orchestrator) fire(trigger statemachine.Trigger) {
	o.mu.Lock()
	o.fired[trigger]++
	o.mu.Unlock()

	if err := o.Machine.Fire(trigger); err != nil {
		if errors.Is(err, statemachine.ErrInvalidTransition) || errors.Is(err, statemachine.ErrTransitionDenied) {
			o.log.Debug("trigger refused", logger.String("trigger", string(trigger)), logger.Err(err))
			return
		}
		o.log.Warn("trigger failed", logger.String("trigger", string(trigger)), logger.Err(err))
	}
}

func (o *Orchestrator) checkLobby() {
	if o.game.Machine.IsInState(gamesession.Lobby) {
		o.fire(DotaEnteredLobby)
	}
}

// resolveLobby 已是当前大厅房主时直接管理，否则先请求房主权限
func (o *Orchestrator) resolveLobby() statemachine.State {
	lobby := o.game.Lobby()
	o.mu.RLock()
	host := o.hostLobby
	o.mu.RUnlock()
	if lobby != nil && host != 0 && host == lobby.ID {
		return ManageLobby
	}
	return AcquireOwnershipLobby
}

func (o *Orchestrator) isLeader(lobby *gamesession.LobbyInfo) bool {
	self := o.game.LocalID()
	return lobby != nil && self != 0 && lobby.Leader == self
}

// checkOwnership 仍在请求房主权限且本地身份已是队长时触发 LobbyBecameOwner
func (o *Orchestrator) checkOwnership() {
	if !o.Machine.IsInState(AcquireOwnershipLobby) {
		return
	}
	if o.isLeader(o.game.Lobby()) {
		o.fire(LobbyBecameOwner)
	}
}

// lobbyUpdated 房主加入尚未请求过的大厅时重新发送房主权限请求
func (o *Orchestrator) lobbyUpdated(_, cur *gamesession.LobbyInfo) {
	o.checkOwnership()
	if cur == nil {
		return
	}

	_, present := cur.Find(o.cfg.OwnerID)
	o.mu.Lock()
	if !present {
		o.requested = 0
	}
	pending := present && o.requested != cur.ID
	o.mu.Unlock()

	if pending && o.Machine.IsInState(AcquireOwnershipLobby) {
		o.fire(LobbyRequested)
	}
}

func (o *Orchestrator) requestOwnership() {
	lobby := o.game.Lobby()
	if lobby == nil {
		return
	}
	if o.isLeader(lobby) {
		o.fire(LobbyBecameOwner)
		return
	}

	owner, ok := lobby.Find(o.cfg.OwnerID)
	if !ok {
		o.log.Debug("owner not in lobby", logger.Uint64("lobby_id", lobby.ID), logger.Uint64("owner_id", o.cfg.OwnerID))
		return
	}
	o.mu.Lock()
	o.requested = lobby.ID
	o.mu.Unlock()

	name := owner.Name
	if name == "" {
		name = strconv.FormatUint(owner.ID, 10)
	}
	text := fmt.Sprintf(o.cfg.RequestFormat, name)

	if err := o.game.SendLobbyMessage(text); err != nil {
		o.log.Debug("lobby request failed", logger.Err(err))
	}
	if err := o.game.SendDirectMessage(owner.ID, text); err != nil && !errors.Is(err, gamesession.ErrNotFriend) {
		o.log.Debug("direct request failed", logger.Err(err))
	}
}

func (o *Orchestrator) manageLobby() {
	lobby := o.game.Lobby()
	if lobby == nil {
		return
	}

	o.mu.Lock()
	o.state.LobbyID = lobby.ID
	o.hostLobby = lobby.ID
	o.mu.Unlock()
	o.log.Info("managing lobby", logger.Uint64("lobby_id", lobby.ID))

	for _, msg := range o.cfg.HelpMessages {
		if err := o.game.SendLobbyMessage(msg); err != nil {
			o.log.Debug("help message failed", logger.Err(err))
			return
		}
	}
}

func (o *Orchestrator) clearHost() {
	o.mu.Lock()
	o.hostLobby = 0
	o.requested = 0
	o.mu.Unlock()
}

// arbitrateInvite 只接受来自频道主的邀请
func (o *Orchestrator) arbitrateInvite(inv gamesession.Invite) {
	accept := inv.SenderID == o.cfg.OwnerID
	o.log.Info("invite received",
		logger.String("kind", inv.Kind.String()),
		logger.Uint64("sender_id", inv.SenderID),
		logger.Bool("accept", accept))
	if err := o.game.RespondInvite(inv, accept); err != nil {
		o.log.Warn("respond invite failed", logger.Err(err))
	}
}

// DeleteLobby 在 Ready 下直接让游戏会话离开大厅，不经过状态转换
func (o *Orchestrator) DeleteLobby() error {
	if !o.Machine.IsInState(session.Ready) {
		return ErrNotReady
	}
	return o.game.LeaveLobby()
}

// Start 启动频道，已在运行时无操作
func (o *Orchestrator) Start() {
	if o.running.CompareAndSwap(false, true) {
		o.fire(session.ConnectRequested)
	}
}

// Stop 停止频道，未运行时无操作
func (o *Orchestrator) Stop() {
	if o.running.CompareAndSwap(true, false) {
		o.fire(session.DisconnectRequested)
	}
}

// Dispose 停止频道并释放所有子控制器
func (o *Orchestrator) Dispose(ctx context.Context) error {
	o.Stop()
	var err error
	if o.ownPool {
		err = o.pool.Shutdown(ctx)
	}
	o.game.Dispose()
	if cerr := o.chat.Dispose(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// IsReady 频道整体就绪
func (o *Orchestrator) IsReady() bool {
	return o.Machine.IsInState(session.Ready)
}

// State 返回当前状态
func (o *Orchestrator) State() statemachine.State {
	return o.Machine.Current()
}

// ChannelState 返回频道共享状态
func (o *Orchestrator) ChannelState() ChannelState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Fired 返回触发器的触发次数
func (o *Orchestrator) Fired(trigger statemachine.Trigger) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fired[trigger]
}

// Status 返回频道状态快照
func (o *Orchestrator) Status() Status {
	return Status{
		Name:     o.cfg.Name,
		States:   o.group.States(),
		Channel:  o.ChannelState(),
		Pool:     o.pool.GetMetrics(),
		ChatPool: o.chat.PoolMetrics(),
		Recent:   o.history.Last(16),
	}
}

// History 返回转换历史
func (o *Orchestrator) History() *statemachine.History {
	return o.history
}
