package channel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/subgames/internal/chatsession"
	"github.com/junbin-yang/subgames/internal/gamesession"
	"github.com/junbin-yang/subgames/internal/pairing"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/statemachine"
)

const (
	selfID  = 42
	ownerID = 500
)

type gameClient struct {
	mu     sync.Mutex
	events chan gamesession.Event
	calls  []string
}

func (g *gameClient) record(format string, args ...interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
	return nil
}

func (g *gameClient) Connect(ctx context.Context) error           { return nil }
func (g *gameClient) Disconnect()                                 {}
func (g *gameClient) Events() <-chan gamesession.Event            { return g.events }
func (g *gameClient) StartCoordinator() error                     { return nil }
func (g *gameClient) LocalID() uint64                             { return selfID }
func (g *gameClient) IsFriend(id uint64) bool                     { return id == ownerID }
func (g *gameClient) JoinTeam(gamesession.Team, int) error        { return nil }
func (g *gameClient) LeaveChatChannel(id uint64) error            { return nil }
func (g *gameClient) RequestMatchResult(matchID uint64) error     { return nil }
func (g *gameClient) LaunchLobby() error                          { return g.record("launch") }
func (g *gameClient) LeaveLobby() error                           { return g.record("leave") }
func (g *gameClient) JoinChatChannel(string) (uint64, error)      { return 9, nil }
func (g *gameClient) SendChannelMessage(_ uint64, t string) error { return g.record("say %s", t) }
func (g *gameClient) SendDirectMessage(to uint64, t string) error { return g.record("dm %d %s", to, t) }

func (g *gameClient) RespondInvite(inv gamesession.Invite, accept bool) error {
	return g.record("invite %s %d %v", inv.Kind, inv.SenderID, accept)
}

func (g *gameClient) emit(ev gamesession.Event) { g.events <- ev }

func (g *gameClient) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

type identity struct {
	mu       sync.Mutex
	ready    bool
	handlers []statemachine.TransitionHandler
}

func (i *identity) Start() {}
func (i *identity) Stop()  {}

func (i *identity) IsReady() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ready
}

func (i *identity) OnTransitioned(fn statemachine.TransitionHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers = append(i.handlers, fn)
}

func (i *identity) OnMessage(func(chatsession.Message)) {}
func (i *identity) Whisper(target, text string) error   { return nil }

func (i *identity) setReady(ready bool) {
	i.mu.Lock()
	i.ready = ready
	handlers := append([]statemachine.TransitionHandler(nil), i.handlers...)
	i.mu.Unlock()
	for _, h := range handlers {
		h(statemachine.Transition{Source: session.Authenticating, Destination: session.Ready})
	}
}

type harness struct {
	o       *Orchestrator
	game    *gamesession.Controller
	talk    *identity
	whisper *identity

	mu      sync.Mutex
	clients []*gameClient
}

func (h *harness) newClient() gamesession.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &gameClient{events: make(chan gamesession.Event, 16)}
	h.clients = append(h.clients, c)
	return c
}

func (h *harness) client(t *testing.T) *gameClient {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.clients) > 0
	}, time.Second, 5*time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[len(h.clients)-1]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{talk: &identity{}, whisper: &identity{}}

	game, err := gamesession.New(gamesession.Config{NewClient: h.newClient})
	require.NoError(t, err)
	chat, err := pairing.New(pairing.Config{Talk: h.talk, Whisper: h.whisper})
	require.NoError(t, err)

	h.game = game
	h.o, err = New(Config{Name: "quantumdota", OwnerID: ownerID}, game, chat)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.o.Dispose(ctx)
	})
	return h
}

func waitState(t *testing.T, m *statemachine.Machine, want statemachine.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Current() == want
	}, time.Second, 5*time.Millisecond, "期望状态 %s，实际 %s", want, m.Current())
}

// ready 启动频道并把游戏推进到菜单、两个聊天身份推进到就绪
func (h *harness) ready(t *testing.T) *gameClient {
	t.Helper()
	h.o.Start()
	cl := h.client(t)
	cl.emit(gamesession.Event{Kind: gamesession.EventConnected})
	cl.emit(gamesession.Event{Kind: gamesession.EventAuthResult, Result: gamesession.ResultOK})
	cl.emit(gamesession.Event{Kind: gamesession.EventCoordinatorStatus, CoordinatorReady: true})
	waitState(t, h.game.Machine, gamesession.Menu)

	h.talk.setReady(true)
	h.whisper.setReady(true)
	waitState(t, h.o.Machine, session.Ready)
	return cl
}

func uiLobby(leader uint64) *gamesession.LobbyInfo {
	return &gamesession.LobbyInfo{
		ID:      77,
		State:   gamesession.LobbyUI,
		Leader:  leader,
		Members: []gamesession.Member{{ID: ownerID, Name: "paralin"}, {ID: selfID, Name: "bot"}},
	}
}

func TestOrchestrator_AggregatesReadiness(t *testing.T) {
	h := newHarness(t)
	h.o.Start()
	assert.Equal(t, pairing.Connecting, h.o.State())

	cl := h.client(t)
	cl.emit(gamesession.Event{Kind: gamesession.EventConnected})
	cl.emit(gamesession.Event{Kind: gamesession.EventAuthResult, Result: gamesession.ResultOK})
	cl.emit(gamesession.Event{Kind: gamesession.EventCoordinatorStatus, CoordinatorReady: true})
	waitState(t, h.game.Machine, gamesession.Menu)
	assert.Equal(t, pairing.Connecting, h.o.State(), "聊天未就绪时不应就绪")

	h.talk.setReady(true)
	assert.Equal(t, pairing.Connecting, h.o.State())
	h.whisper.setReady(true)
	waitState(t, h.o.Machine, session.Ready)
	assert.True(t, h.o.IsReady())

	cl.emit(gamesession.Event{Kind: gamesession.EventCoordinatorStatus, CoordinatorReady: false})
	waitState(t, h.o.Machine, pairing.Connecting)
	assert.Equal(t, uint64(1), h.o.Fired(pairing.ChatbotsUnready))
}

func TestOrchestrator_LeaderSnapshotBecomesManager(t *testing.T) {
	h := newHarness(t)
	cl := h.ready(t)

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot})
	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: uiLobby(selfID)})
	waitState(t, h.o.Machine, ManageLobby)

	assert.Equal(t, uint64(1), h.o.Fired(LobbyBecameOwner))
	assert.Equal(t, uint64(77), h.o.ChannelState().LobbyID)

	var path []statemachine.State
	for _, r := range h.o.History().Records() {
		if r.Machine == "channel" {
			path = append(path, r.Destination)
		}
	}
	assert.Equal(t, []statemachine.State{pairing.Connecting, session.Ready, AcquireOwnershipLobby, ManageLobby}, path)

	require.Eventually(t, func() bool {
		return cl.count("say "+DefaultHelpMessages[len(DefaultHelpMessages)-1]) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_RequestsOwnership(t *testing.T) {
	h := newHarness(t)
	cl := h.ready(t)

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: uiLobby(ownerID)})
	waitState(t, h.o.Machine, AcquireOwnershipLobby)

	request := fmt.Sprintf(DefaultRequestFormat, "paralin")
	require.Eventually(t, func() bool { return cl.count("say "+request) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, cl.count(fmt.Sprintf("dm %d %s", ownerID, request)))

	require.NoError(t, h.o.Machine.Fire(LobbyRequested))
	assert.Equal(t, AcquireOwnershipLobby, h.o.State())
	require.Eventually(t, func() bool { return cl.count("say "+request) == 2 }, time.Second, 5*time.Millisecond)

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: uiLobby(selfID)})
	waitState(t, h.o.Machine, ManageLobby)
	assert.Equal(t, uint64(1), h.o.Fired(LobbyBecameOwner))
}

func TestOrchestrator_PlayAndNoLobby(t *testing.T) {
	h := newHarness(t)
	cl := h.ready(t)

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: uiLobby(selfID)})
	waitState(t, h.o.Machine, ManageLobby)

	playing := uiLobby(selfID)
	playing.State = gamesession.LobbyRun
	playing.Connect = "10.0.0.1:27015"
	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: playing})
	waitState(t, h.o.Machine, LobbyPlay)

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: uiLobby(selfID)})
	waitState(t, h.o.Machine, ManageLobby)
	assert.Equal(t, uint64(1), h.o.Fired(LobbyBecameOwner), "已是房主时应直接进入 ManageLobby")

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot})
	waitState(t, h.o.Machine, session.Ready)
	assert.Equal(t, uint64(77), h.o.ChannelState().LobbyID)
}

func TestOrchestrator_InviteArbitration(t *testing.T) {
	h := newHarness(t)
	cl := h.ready(t)

	cl.emit(gamesession.Event{Kind: gamesession.EventInviteReceived,
		Invite: gamesession.Invite{Kind: gamesession.InviteLobby, SenderID: ownerID, GroupID: 1}})
	cl.emit(gamesession.Event{Kind: gamesession.EventInviteReceived,
		Invite: gamesession.Invite{Kind: gamesession.InviteParty, SenderID: 12345, GroupID: 2}})

	require.Eventually(t, func() bool {
		return cl.count(fmt.Sprintf("invite lobby %d true", ownerID)) == 1 &&
			cl.count("invite party 12345 false") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_DeleteLobby(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.o.DeleteLobby(), ErrNotReady)

	cl := h.ready(t)
	require.NoError(t, h.o.DeleteLobby())
	assert.Equal(t, 1, cl.count("leave"))
	assert.Equal(t, session.Ready, h.o.State())
}

func TestOrchestrator_Status(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	st := h.o.Status()
	assert.Equal(t, "quantumdota", st.Name)
	assert.Equal(t, session.Ready, st.States["channel"])
	assert.Equal(t, gamesession.Menu, st.States["game"])
	assert.Equal(t, session.Ready, st.States["chat"])
	assert.NotEmpty(t, st.Recent)
	assert.GreaterOrEqual(t, st.Pool.TotalSubmitted, int64(2))
}

func TestOrchestrator_StopSignsOff(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.o.Stop()
	waitState(t, h.o.Machine, session.SignedOff)
	waitState(t, h.game.Machine, session.SignedOff)
}

func TestOrchestrator_OwnerJoinsLater(t *testing.T) {
	h := newHarness(t)
	cl := h.ready(t)

	lobby := func(members ...gamesession.Member) *gamesession.LobbyInfo {
		return &gamesession.LobbyInfo{ID: 77, State: gamesession.LobbyUI, Leader: 777, Members: members}
	}
	bot := gamesession.Member{ID: selfID, Name: "bot"}
	owner := gamesession.Member{ID: ownerID, Name: "paralin"}
	request := "say " + fmt.Sprintf(DefaultRequestFormat, "paralin")

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: lobby(bot)})
	waitState(t, h.o.Machine, AcquireOwnershipLobby)
	assert.Equal(t, 0, cl.count(request), "房主不在大厅时不应发送请求")

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: lobby(bot, owner)})
	require.Eventually(t, func() bool { return cl.count(request) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, AcquireOwnershipLobby, h.o.State())

	// 同一大厅的后续快照不重复请求
	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: lobby(bot, owner)})
	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: lobby(bot)})
	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: lobby(bot, owner)})
	require.Eventually(t, func() bool { return cl.count(request) == 2 }, time.Second, 5*time.Millisecond, "房主重新加入应再次请求")

	cl.emit(gamesession.Event{Kind: gamesession.EventLobbySnapshot, Lobby: &gamesession.LobbyInfo{
		ID: 77, State: gamesession.LobbyUI, Leader: selfID, Members: []gamesession.Member{bot, owner}}})
	waitState(t, h.o.Machine, ManageLobby)
	assert.Equal(t, 2, cl.count(request))
	assert.Equal(t, uint64(1), h.o.Fired(LobbyBecameOwner))
}

func TestOrchestrator_ConcurrentReadinessSettles(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.talk.setReady(false)
		}()
		go func() {
			defer wg.Done()
			h.talk.setReady(true)
		}()
	}
	wg.Wait()
	h.talk.setReady(true)

	require.Eventually(t, func() bool {
		return h.o.IsReady() == (h.talk.IsReady() && h.whisper.IsReady())
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Ready, h.o.State())
}
