package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
)

// Client TCP客户端，按流式读取并通过回调分发数据
type Client struct {
	callback *ListenerCallback

	mu      sync.RWMutex
	conn    net.Conn
	running bool
	closing bool
	done    chan struct{}

	writeMu sync.Mutex
}

// NewClient 创建客户端实例
func NewClient(callback *ListenerCallback) *Client {
	if callback == nil {
		callback = &ListenerCallback{}
	}
	return &Client{callback: callback}
}

// Connect 使用配置选项连接服务器，连接成功后启动接收循环
func (c *Client) Connect(ctx context.Context, opt *ClientOption) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	conn, err := dial(ctx, opt)
	if err != nil {
		return err
	}

	bufSize := opt.BufSize
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn
	c.running = true
	c.closing = false
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	if c.callback.OnConnected != nil {
		c.callback.OnConnected(conn.LocalAddr(), conn.RemoteAddr())
	}

	go c.receiveLoop(conn, bufSize, done)
	return nil
}

func dial(ctx context.Context, opt *ClientOption) (net.Conn, error) {
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: -1}
	if opt.KeepAlive {
		dialer.KeepAlive = opt.KeepAlivePeriod
	}

	conn, err := dialer.DialContext(ctx, "tcp", opt.Address())
	if err != nil {
		return nil, err
	}
	if opt.TLS == nil {
		return conn, nil
	}

	cfg := opt.TLS.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = opt.RemoteHost
	}
	tlsConn := tls.Client(conn, cfg)
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// receiveLoop 接收数据循环
func (c *Client) receiveLoop(conn net.Conn, bufSize int, done chan struct{}) {
	var loopErr error
	defer func() {
		c.mu.Lock()
		localClose := c.closing
		c.running = false
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		close(done)

		if localClose {
			loopErr = nil
		}
		if c.callback.OnDisconnected != nil {
			c.callback.OnDisconnected(loopErr)
		}
	}()

	buf := make([]byte, bufSize)
	offset := 0

	for {
		if offset == len(buf) {
			loopErr = ErrBufferFull
			return
		}
		n, err := conn.Read(buf[offset:])
		if n > 0 {
			offset += n
			if c.callback.OnDataReceived != nil {
				processed := c.callback.OnDataReceived(buf, offset)
				if processed < 0 {
					return
				}
				if processed > 0 {
					copy(buf, buf[processed:offset])
					offset -= processed
				}
			} else {
				offset = 0
			}
		}
		if err != nil {
			loopErr = err
			return
		}
	}
}

// SendBytes 发送数据
func (c *Client) SendBytes(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	running := c.running
	c.mu.RUnlock()

	if !running || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := conn.Write(data)
	return err
}

// Close 关闭连接并等待接收循环退出，不可在 OnDataReceived 回调中调用
func (c *Client) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	_ = conn.Close()
	<-done
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// RemoteAddr 获取远端地址，未连接时返回nil
func (c *Client) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}
