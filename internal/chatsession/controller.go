package chatsession

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/junbin-yang/subgames/internal/chatdepot"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/statemachine"
)

// 默认参数
const (
	DefaultServer        = "irc.chat.twitch.tv:6667"
	DefaultRetryDelay    = 3 * time.Second
	DefaultLookupTimeout = 10 * time.Second
	ircPort              = "6667"
)

var privateNet = &net.IPNet{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)}

// Config 聊天会话配置
type Config struct {
	Kind          Kind
	Auth          session.AuthInfo
	DefaultServer string
	// HomeChannel 普通身份就绪后加入的频道
	HomeChannel string
	// Greeting 非空时加入频道后发送
	Greeting      string
	Retry         session.RetryPolicy
	LookupTimeout time.Duration

	NewClient ClientFactory
	Lookup    MembershipLookup
	Directory ServerDirectory
}

// Controller 一个聊天身份的生命周期控制器
type Controller struct {
	*session.Lifecycle

	cfg Config

	mu        sync.RWMutex
	client    Client
	room      *chatdepot.Room
	joined    map[string]struct{}
	observers []func(Message)
}

// New 创建聊天会话控制器
func New(cfg Config) (*Controller, error) {
	if cfg.NewClient == nil {
		return nil, fmt.Errorf("chatsession: client factory is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = Talk
	}
	if cfg.Kind == Whisper && cfg.Lookup == nil {
		return nil, ErrNoLookup
	}
	if cfg.DefaultServer == "" {
		cfg.DefaultServer = DefaultServer
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Retry == (session.RetryPolicy{}) {
		cfg.Retry = session.NewRetryPolicy(DefaultRetryDelay, session.DefaultHandshakeTimeout)
	}

	c := &Controller{cfg: cfg, joined: make(map[string]struct{})}

	connectTarget := session.ActiveSession
	if cfg.Kind == Whisper {
		connectTarget = ResolvingRoom
	}
	c.Lifecycle = session.NewLifecycle(string(cfg.Kind), cfg.Retry, session.Hooks{
		Acquire: c.acquire,
		Release: c.release,
	}, connectTarget)

	m := c.Machine
	if cfg.Kind == Whisper {
		m.Configure(ResolvingRoom).
			SubstateOf(session.Conceived).
			OnEntry(func(statemachine.Transition) { c.resolveRoom() }).
			Ignore(session.Disconnected).
			Permit(RoomResolved, session.ActiveSession).
			PermitDynamic(RoomLookupFailed, c.DisconnectTarget)
	}
	m.Configure(session.Ready).
		OnEntry(func(statemachine.Transition) { c.joinHome() })

	return c, nil
}

// Kind 返回身份类型
func (c *Controller) Kind() Kind {
	return c.cfg.Kind
}

// IsReady 是否处于 Ready
func (c *Controller) IsReady() bool {
	return c.Machine.IsInState(session.Ready)
}

// Room 返回解析到的群聊房间，普通身份为 nil
func (c *Controller) Room() *chatdepot.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// JoinedChannels 返回已加入的频道
func (c *Controller) JoinedChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.joined))
	for ch := range c.joined {
		out = append(out, ch)
	}
	return out
}

// OnMessage 注册消息观察者
func (c *Controller) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Say 向频道发送消息
func (c *Controller) Say(channel, text string) error {
	cl := c.readyClient()
	if cl == nil {
		return ErrNotReady
	}
	return cl.SendMessage(channel, text)
}

// Whisper 通过房间频道向 target 发送私信
func (c *Controller) Whisper(target, text string) error {
	cl := c.readyClient()
	if cl == nil {
		return ErrNotReady
	}
	return cl.SendMessage(c.homeChannel(), fmt.Sprintf(".w %s %s", target, text))
}

func (c *Controller) readyClient() Client {
	if !c.IsReady() {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// homeChannel 就绪后所在的频道：私信身份为群聊房间频道
func (c *Controller) homeChannel() string {
	if c.cfg.Kind == Whisper {
		if room := c.Room(); room != nil {
			return "#" + room.IRCChannel
		}
	}
	return c.cfg.HomeChannel
}

func (c *Controller) resolveRoom() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	room, err := c.cfg.Lookup.GetRoomFor(ctx, c.cfg.Auth.Password)
	if err != nil {
		c.Log.Warn("room lookup failed", logger.Err(fmt.Errorf("%w: %v", session.ErrRoomLookup, err)))
		c.Fire(RoomLookupFailed)
		return
	}

	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	c.Log.Debug("room resolved", logger.String("channel", room.IRCChannel), logger.String("cluster", room.Cluster))
	c.Fire(RoomResolved)
}

// chooseServer 优先使用房间中 6667 端口的公网服务器，其次是房间集群中的随机服务器，最后是默认服务器
func (c *Controller) chooseServer() string {
	room := c.Room()
	if room == nil {
		return c.cfg.DefaultServer
	}
	for _, s := range room.Servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil || port != ircPort {
			continue
		}
		if ip := net.ParseIP(host); ip != nil && privateNet.Contains(ip) {
			continue
		}
		return s
	}
	if room.Cluster != "" && c.cfg.Directory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
		defer cancel()
		servers, err := c.cfg.Directory.Servers(ctx, room.Cluster)
		if err != nil {
			c.Log.Debug("server directory unavailable", logger.String("cluster", room.Cluster), logger.Err(err))
		} else if len(servers) > 0 {
			pick := servers[rand.Intn(len(servers))]
			if host, _, err := net.SplitHostPort(pick); err == nil {
				pick = host
			}
			return net.JoinHostPort(pick, ircPort)
		}
	}
	return c.cfg.DefaultServer
}

func (c *Controller) acquire(tag uint64) {
	server := c.chooseServer()
	cl := c.cfg.NewClient()

	c.mu.Lock()
	c.client = cl
	c.joined = make(map[string]struct{})
	c.mu.Unlock()

	go session.Pump(c.Generation(), tag, cl.Events(), session.PumpPollInterval, func(ev Event) {
		c.handle(tag, ev)
	})

	c.Log.Debug("connecting", logger.String("server", server))
	if err := cl.Connect(context.Background(), server, c.cfg.Auth); err != nil {
		c.Log.Debug("connect failed", logger.Err(err))
		c.FireIfCurrent(tag, session.Disconnected)
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.joined = make(map[string]struct{})
	c.mu.Unlock()

	if cl != nil {
		cl.Disconnect()
	}
}

func (c *Controller) handle(tag uint64, ev Event) {
	switch ev.Kind {
	case EventConnected:
		c.FireIfCurrent(tag, session.Connected)
	case EventRegistered:
		c.FireIfCurrent(tag, session.SignedIn)
	case EventAuthFailed:
		c.FireIfCurrent(tag, session.AuthInvalid)
	case EventDisconnected:
		c.Log.Debug("disconnected", logger.Err(ev.Err))
		c.FireIfCurrent(tag, session.Disconnected)
	case EventChannelJoined:
		c.channelJoined(ev.Channel)
	case EventChannelLeft:
		c.mu.Lock()
		delete(c.joined, ev.Channel)
		c.mu.Unlock()
	case EventMessage:
		c.publish(Message{Channel: ev.Channel, Sender: ev.Sender, Text: ev.Text})
	}
}

func (c *Controller) channelJoined(channel string) {
	c.mu.Lock()
	c.joined[channel] = struct{}{}
	cl := c.client
	c.mu.Unlock()

	c.Log.Debug("joined channel", logger.String("channel", channel))
	if c.cfg.Greeting != "" && cl != nil && strings.EqualFold(channel, c.homeChannel()) {
		if err := cl.SendMessage(channel, c.cfg.Greeting); err != nil {
			c.Log.Debug("greeting failed", logger.Err(err))
		}
	}
}

func (c *Controller) publish(msg Message) {
	c.mu.RLock()
	observers := append([]func(Message){}, c.observers...)
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(msg)
	}
}

func (c *Controller) joinHome() {
	c.mu.RLock()
	cl := c.client
	c.mu.RUnlock()
	if cl == nil {
		return
	}

	for _, capability := range []string{"twitch.tv/membership", "twitch.tv/commands"} {
		if err := cl.SendRaw("CAP REQ :" + capability); err != nil {
			c.Log.Debug("capability request failed", logger.String("cap", capability), logger.Err(err))
		}
	}
	if channel := c.homeChannel(); channel != "" {
		if err := cl.JoinChannel(channel); err != nil {
			c.Log.Debug("join failed", logger.String("channel", channel), logger.Err(err))
		}
	}
}
