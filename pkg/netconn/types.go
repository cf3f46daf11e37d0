package netconn

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"
)

var (
	// ErrAlreadyConnected 客户端已连接
	ErrAlreadyConnected = errors.New("netconn: already connected")
	// ErrNotConnected 客户端未连接
	ErrNotConnected = errors.New("netconn: not connected")
	// ErrBufferFull 接收缓冲区已满且回调未消费任何数据
	ErrBufferFull = errors.New("netconn: receive buffer full")
)

// ClientOption 客户端选项
type ClientOption struct {
	RemoteHost      string
	RemotePort      int
	Timeout         time.Duration
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	// TLS 非空时在TCP之上建立TLS连接
	TLS *tls.Config
	// BufSize 接收缓冲区大小，0表示DefaultBufSize
	BufSize int
}

// Address 返回 host:port 形式的远端地址
func (o *ClientOption) Address() string {
	return net.JoinHostPort(o.RemoteHost, strconv.Itoa(o.RemotePort))
}

// ListenerCallback 客户端回调
//
// OnDataReceived 返回已消费的字节数，未消费的部分保留到下一次读取；返回负数时断开连接。
type ListenerCallback struct {
	OnConnected    func(local, remote net.Addr)
	OnDisconnected func(err error)
	OnDataReceived func(buf []byte, used int) int
}

// 常量定义
const (
	DefaultBufSize        = 4096
	DefaultConnectTimeout = 5 * time.Second
)
