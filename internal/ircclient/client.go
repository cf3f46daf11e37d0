package ircclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junbin-yang/subgames/internal/chatsession"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/netconn"
)

var (
	// ErrClosed 客户端已断开
	ErrClosed = errors.New("ircclient: closed")
	// ErrQueueFull 发送队列已满
	ErrQueueFull = errors.New("ircclient: send queue full")
)

// 登录失败时服务器 NOTICE 中的文本
var authFailureNotices = []string{
	"Login authentication failed",
	"Login unsuccessful",
	"Improperly formatted auth",
}

const defaultPort = 6667

// Options 客户端选项
type Options struct {
	Timeout     time.Duration
	TLS         *tls.Config
	FloodBurst  int
	FloodPeriod time.Duration
	QueueSize   int
}

// DefaultOptions 默认选项：突发 4 条，之后每 2 秒 1 条
func DefaultOptions() Options {
	return Options{
		Timeout:     netconn.DefaultConnectTimeout,
		FloodBurst:  4,
		FloodPeriod: 2 * time.Second,
		QueueSize:   64,
	}
}

// Client 最小 IRC 客户端，实现 chatsession.Client
type Client struct {
	opts    Options
	limiter *floodLimiter
	log     logger.Logger

	mu   sync.Mutex
	conn *netconn.Client
	nick string

	events     chan chatsession.Event
	outbox     chan string
	done       chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	registered atomic.Bool
}

// New 创建客户端，每个客户端只能连接一次
func New(opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Client{
		opts:    opts,
		limiter: newFloodLimiter(opts.FloodBurst, opts.FloodPeriod),
		log:     logger.With(logger.String("component", "ircclient")),
		events:  make(chan chatsession.Event, 64),
		outbox:  make(chan string, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// NewFactory 返回按 opts 创建客户端的工厂
func NewFactory(opts Options) chatsession.ClientFactory {
	return func() chatsession.Client { return New(opts) }
}

// Connect 异步连接并注册，结果通过 Events 送达
func (c *Client) Connect(ctx context.Context, server string, auth session.AuthInfo) error {
	host, port, err := splitServer(server)
	if err != nil {
		return err
	}
	nick := strings.ToLower(auth.Username)

	conn := netconn.NewClient(&netconn.ListenerCallback{
		OnConnected: func(local, remote net.Addr) {
			c.emit(chatsession.Event{Kind: chatsession.EventConnected})
		},
		OnDataReceived: c.onData,
		OnDisconnected: c.onDisconnected,
	})

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return netconn.ErrAlreadyConnected
	}
	c.conn = conn
	c.nick = nick
	c.log = c.log.With(logger.String("nick", nick))
	c.mu.Unlock()

	go func() {
		err := conn.Connect(ctx, &netconn.ClientOption{
			RemoteHost:      host,
			RemotePort:      port,
			Timeout:         c.opts.Timeout,
			TLS:             c.opts.TLS,
			KeepAlive:       true,
			KeepAlivePeriod: 30 * time.Second,
		})
		if err != nil {
			c.log.Debug("connect failed", logger.String("server", server), logger.Err(err))
			c.emit(chatsession.Event{Kind: chatsession.EventDisconnected, Err: err})
			c.closeEvents()
			return
		}

		select {
		case <-c.done:
			conn.Close()
			return
		default:
		}

		if auth.Password != "" {
			_ = c.writeLine("PASS " + auth.Password)
		}
		_ = c.writeLine("NICK " + nick)
		_ = c.writeLine("USER " + nick + " 8 * :" + nick)
		go c.writeLoop()
	}()
	return nil
}

// Disconnect 发送 QUIT 并关闭连接，可重复调用
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		if conn.IsConnected() {
			_ = conn.SendBytes([]byte("QUIT\r\n"))
		}
		conn.Close()
	})
}

// Events 返回事件通道，连接结束后关闭
func (c *Client) Events() <-chan chatsession.Event {
	return c.events
}

// SendMessage 向频道或用户发送 PRIVMSG
func (c *Client) SendMessage(target, text string) error {
	return c.enqueue("PRIVMSG " + target + " :" + text)
}

// JoinChannel 加入频道
func (c *Client) JoinChannel(name string) error {
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}
	return c.enqueue("JOIN " + name)
}

// SendRaw 发送原始命令
func (c *Client) SendRaw(line string) error {
	return c.enqueue(line)
}

// Registered 是否已完成注册
func (c *Client) Registered() bool {
	return c.registered.Load()
}

func (c *Client) enqueue(line string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbox <- line:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.outbox:
			for {
				wait := c.limiter.reserve(time.Now())
				if wait <= 0 {
					break
				}
				select {
				case <-time.After(wait):
				case <-c.done:
					return
				}
			}
			if err := c.writeLine(line); err != nil {
				c.log.Debug("write failed", logger.Err(err))
			}
		}
	}
}

func (c *Client) writeLine(line string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return netconn.ErrNotConnected
	}
	return conn.SendBytes([]byte(line + "\r\n"))
}

func (c *Client) emit(ev chatsession.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *Client) onDisconnected(err error) {
	c.emit(chatsession.Event{Kind: chatsession.EventDisconnected, Err: err})
	c.closeEvents()
}

// onData 按行切分，返回已处理的字节数
func (c *Client) onData(buf []byte, used int) int {
	consumed := 0
	for {
		idx := bytes.IndexByte(buf[consumed:used], '\n')
		if idx < 0 {
			return consumed
		}
		line := strings.TrimRight(string(buf[consumed:consumed+idx]), "\r")
		consumed += idx + 1
		if line != "" {
			c.handleLine(ParseLine(line))
		}
	}
}

func (c *Client) handleLine(l Line) {
	c.mu.Lock()
	nick := c.nick
	c.mu.Unlock()

	switch l.Command {
	case "PING":
		_ = c.writeLine("PONG :" + l.Trailing())
	case "001":
		c.registered.Store(true)
		c.emit(chatsession.Event{Kind: chatsession.EventRegistered})
	case "NOTICE":
		text := l.Trailing()
		if !c.registered.Load() && isAuthFailure(text) {
			c.log.Debug("login rejected", logger.String("notice", text))
			c.emit(chatsession.Event{Kind: chatsession.EventAuthFailed, Text: text})
			return
		}
		c.log.Debug("notice", logger.String("text", text))
	case "PRIVMSG":
		channel := l.Param(0)
		if !strings.HasPrefix(channel, "#") {
			channel = ""
		}
		c.emit(chatsession.Event{Kind: chatsession.EventMessage, Channel: channel, Sender: l.Nick(), Text: l.Trailing()})
	case "WHISPER":
		c.emit(chatsession.Event{Kind: chatsession.EventMessage, Sender: l.Nick(), Text: l.Trailing()})
	case "JOIN":
		if strings.EqualFold(l.Nick(), nick) {
			c.emit(chatsession.Event{Kind: chatsession.EventChannelJoined, Channel: l.Param(0)})
		}
	case "PART":
		if strings.EqualFold(l.Nick(), nick) {
			c.emit(chatsession.Event{Kind: chatsession.EventChannelLeft, Channel: l.Param(0)})
		}
	}
}

func isAuthFailure(text string) bool {
	for _, s := range authFailureNotices {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// splitServer 解析 host[:port]，缺省端口为 6667
func splitServer(server string) (string, int, error) {
	if !strings.Contains(server, ":") {
		return server, defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
