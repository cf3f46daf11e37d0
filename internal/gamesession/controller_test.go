package gamesession

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/statemachine"
)

const lobbyChatID = 900

type fakeClient struct {
	mu           sync.Mutex
	events       chan Event
	calls        []string
	friends      map[uint64]bool
	launched     int
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan Event, 16), friends: map[uint64]bool{7: true}}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.record("connect")
	return nil
}

func (f *fakeClient) StartCoordinator() error {
	f.record("coordinator")
	return nil
}

func (f *fakeClient) Events() <-chan Event    { return f.events }
func (f *fakeClient) LocalID() uint64         { return 42 }
func (f *fakeClient) IsFriend(id uint64) bool { return f.friends[id] }

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeClient) JoinTeam(team Team, slot int) error {
	if team == TeamPlayerPool && slot == PlayerPoolSlot {
		f.record("pool")
	}
	return nil
}

func (f *fakeClient) JoinChatChannel(name string) (uint64, error) {
	f.record("join " + name)
	return lobbyChatID, nil
}

func (f *fakeClient) LeaveChatChannel(id uint64) error {
	f.record("leave chat")
	return nil
}

func (f *fakeClient) SendChannelMessage(id uint64, text string) error {
	f.record("say " + text)
	return nil
}

func (f *fakeClient) SendDirectMessage(to uint64, text string) error {
	f.record("dm " + text)
	return nil
}

func (f *fakeClient) RequestMatchResult(matchID uint64) error {
	f.record("match")
	return nil
}

func (f *fakeClient) RespondInvite(invite Invite, accept bool) error {
	f.record("invite " + invite.Kind.String())
	return nil
}

func (f *fakeClient) LaunchLobby() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched++
	return nil
}

func (f *fakeClient) LeaveLobby() error {
	f.record("leave lobby")
	return nil
}

func (f *fakeClient) emit(ev Event) { f.events <- ev }

func (f *fakeClient) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeClient) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launched
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
}

func (ff *fakeFactory) New() Client {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := newFakeClient()
	ff.clients = append(ff.clients, c)
	return c
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[len(ff.clients)-1]
}

func waitState(t *testing.T, c *Controller, want statemachine.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == want
	}, time.Second, 5*time.Millisecond, "期望状态 %s，实际 %s", want, c.State())
}

func newController(t *testing.T, cfg Config) (*Controller, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{}
	cfg.NewClient = ff.New
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Dispose)
	return c, ff
}

func driveToMenu(t *testing.T, c *Controller, ff *fakeFactory) *fakeClient {
	t.Helper()
	c.Start()
	cl := ff.last()
	cl.emit(Event{Kind: EventConnected})
	waitState(t, c, session.Authenticating)
	cl.emit(Event{Kind: EventAuthResult, Result: ResultOK})
	waitState(t, c, session.Ready)
	cl.emit(Event{Kind: EventCoordinatorStatus, CoordinatorReady: true})
	waitState(t, c, Menu)
	return cl
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassOK, Classify(ResultOK))
	for _, code := range []ResultCode{
		ResultServiceUnavailable, ResultServiceReadOnly, ResultTryAnotherEndpoint,
		ResultLoginDeniedThrottle, ResultAlreadyLoggedInElsewhere, ResultBadResponse,
		ResultBusy, ResultConnectFailed,
	} {
		assert.Equal(t, ClassRetry, Classify(code), code.String())
	}
	assert.Equal(t, ClassFatal, Classify(ResultInvalidPassword))
	assert.Equal(t, ClassFatal, Classify(ResultFail))
}

func TestController_SignOnStartsCoordinator(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	assert.True(t, cl.called("connect"))
	assert.True(t, cl.called("coordinator"))
	assert.True(t, c.IsReady())
	assert.True(t, c.InMenu())
	assert.Equal(t, uint64(42), c.LocalID())
	assert.NotEmpty(t, c.SessionID())
}

func TestController_RetryableSignOnFailure(t *testing.T) {
	c, ff := newController(t, Config{Retry: session.NewRetryPolicy(time.Hour, time.Hour)})
	c.Start()
	cl := ff.last()
	cl.emit(Event{Kind: EventConnected})
	waitState(t, c, session.Authenticating)

	cl.emit(Event{Kind: EventAuthResult, Result: ResultBusy})
	waitState(t, c, session.RetryConnection)
	assert.True(t, c.Running())
	_, armed := c.Timers.GetTimer("game:retry")
	assert.True(t, armed)
}

func TestController_FatalSignOnFailure(t *testing.T) {
	c, ff := newController(t, Config{})
	var rejected atomic.Int32
	c.OnInvalidCredentials(func() { rejected.Add(1) })

	c.Start()
	cl := ff.last()
	cl.emit(Event{Kind: EventConnected})
	waitState(t, c, session.Authenticating)

	cl.emit(Event{Kind: EventAuthResult, Result: ResultInvalidPassword})
	waitState(t, c, session.SignedOff)
	assert.False(t, c.Running())
	assert.Equal(t, int32(1), rejected.Load())
}

func TestController_LobbyFlow(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	type update struct{ prev, cur *LobbyInfo }
	updates := make(chan update, 4)
	c.OnLobbyUpdate(func(prev, cur *LobbyInfo) { updates <- update{prev, cur} })
	var joined atomic.Int32
	c.OnLobbyChatJoined(func() { joined.Add(1) })

	lobby := &LobbyInfo{ID: 77, State: LobbyUI, Leader: 42}
	cl.emit(Event{Kind: EventLobbySnapshot, Lobby: lobby})
	waitState(t, c, Lobby)

	u := <-updates
	assert.Nil(t, u.prev)
	assert.Equal(t, lobby, u.cur)
	assert.True(t, cl.called("pool"))
	assert.True(t, cl.called("join Lobby_77"))
	assert.Equal(t, int32(1), joined.Load())
	require.NoError(t, c.SendLobbyMessage("hi"))
	assert.True(t, cl.called("say hi"))

	playing := &LobbyInfo{ID: 77, State: LobbyRun, Connect: "10.0.0.1:27015"}
	cl.emit(Event{Kind: EventLobbySnapshot, Lobby: playing})
	waitState(t, c, Play)
	u = <-updates
	assert.Equal(t, lobby, u.prev)
	assert.True(t, cl.called("leave chat"))
	assert.ErrorIs(t, c.SendLobbyMessage("hi"), ErrNoLobbyChannel)

	cl.emit(Event{Kind: EventLobbySnapshot})
	waitState(t, c, Menu)
	<-updates
	assert.Nil(t, c.Lobby())
}

func TestController_StartCommandLaunches(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	chats := make(chan ChatMessage, 2)
	c.OnLobbyChat(func(m ChatMessage) { chats <- m })

	cl.emit(Event{Kind: EventLobbySnapshot, Lobby: &LobbyInfo{ID: 5, State: LobbyUI}})
	waitState(t, c, Lobby)

	cl.emit(Event{Kind: EventChatMessage, Chat: ChatMessage{ChannelID: 1, Text: "!start"}})
	cl.emit(Event{Kind: EventChatMessage, Chat: ChatMessage{ChannelID: lobbyChatID, Sender: "host", Text: "ok !start now"}})

	msg := <-chats
	assert.Equal(t, "host", msg.Sender)
	assert.Equal(t, 1, cl.launches())
}

func TestController_CoordinatorLossReentersReady(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	cl.emit(Event{Kind: EventLobbySnapshot, Lobby: &LobbyInfo{ID: 5, State: LobbyUI}})
	waitState(t, c, Lobby)

	cl.emit(Event{Kind: EventCoordinatorStatus, CoordinatorReady: false})
	waitState(t, c, session.Ready)
	assert.True(t, cl.called("leave chat"))

	cl.emit(Event{Kind: EventCoordinatorStatus, CoordinatorReady: true})
	waitState(t, c, Menu)
}

func TestController_MatchResultTimeout(t *testing.T) {
	c, ff := newController(t, Config{MatchTimeout: 30 * time.Millisecond})
	cl := driveToMenu(t, c, ff)

	var calls atomic.Int32
	var got atomic.Pointer[MatchResult]
	require.NoError(t, c.FetchMatchResult(42, func(r *MatchResult) {
		calls.Add(1)
		got.Store(r)
	}))
	assert.True(t, cl.called("match"))
	assert.ErrorIs(t, c.FetchMatchResult(42, func(*MatchResult) {}), ErrMatchPending)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, got.Load())

	cl.emit(Event{Kind: EventMatchResult, MatchID: 42, Match: &MatchResult{MatchID: 42}})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestController_MatchResultDelivered(t *testing.T) {
	c, ff := newController(t, Config{MatchTimeout: time.Hour})
	cl := driveToMenu(t, c, ff)

	results := make(chan *MatchResult, 2)
	require.NoError(t, c.FetchMatchResult(9, func(r *MatchResult) { results <- r }))
	cl.emit(Event{Kind: EventMatchResult, MatchID: 9, Match: &MatchResult{MatchID: 9, RadiantWin: true}})

	r := <-results
	require.NotNil(t, r)
	assert.True(t, r.RadiantWin)
	_, armed := c.Timers.GetTimer(matchTimerID(9))
	assert.False(t, armed)
}

func TestController_DirectMessageRequiresFriend(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	assert.ErrorIs(t, c.SendDirectMessage(8, "hey"), ErrNotFriend)
	require.NoError(t, c.SendDirectMessage(7, "hey"))
	assert.True(t, cl.called("dm hey"))
}

func TestController_NotConnected(t *testing.T) {
	c, _ := newController(t, Config{})
	assert.ErrorIs(t, c.LeaveLobby(), ErrNotConnected)
	assert.ErrorIs(t, c.FetchMatchResult(1, func(*MatchResult) {}), ErrNotConnected)
	assert.Equal(t, uint64(0), c.LocalID())
}

func TestController_StopReleasesClient(t *testing.T) {
	c, ff := newController(t, Config{})
	cl := driveToMenu(t, c, ff)

	c.Stop()
	waitState(t, c, session.SignedOff)
	require.Eventually(t, func() bool {
		cl.mu.Lock()
		defer cl.mu.Unlock()
		return cl.disconnected
	}, time.Second, 5*time.Millisecond)
	assert.False(t, c.Running())
}

func TestOfflineClient_ReachesMenu(t *testing.T) {
	c, err := New(Config{NewClient: OfflineFactory(1001)})
	require.NoError(t, err)
	defer c.Dispose()

	c.Start()
	waitState(t, c, Menu)
	assert.Equal(t, uint64(1001), c.LocalID())
	assert.Nil(t, c.Lobby())
}
