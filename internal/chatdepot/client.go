package chatdepot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// 默认地址
const (
	DefaultDepotURL   = "http://chatdepot.twitch.tv"
	DefaultServersURL = "http://tmi.twitch.tv"
	DefaultTimeout    = 10 * time.Second
)

var (
	// ErrNoMembership 账号不属于任何群聊房间
	ErrNoMembership = errors.New("chatdepot: no room membership")
	// ErrUnexpectedStatus 服务端返回非 200 状态码
	ErrUnexpectedStatus = errors.New("chatdepot: unexpected status")
)

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout 设置请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// Client 群聊房间 REST 客户端
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient 创建客户端，baseURL 为空时使用 DefaultDepotURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultDepotURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RoomMemberships 查询 token 所属的全部房间，token 可带 "oauth:" 前缀
func (c *Client) RoomMemberships(ctx context.Context, token string) (*RoomMemberships, error) {
	q := url.Values{}
	q.Set("oauth_token", strings.TrimPrefix(token, "oauth:"))

	var out RoomMemberships
	if err := getJSON(ctx, c.http, c.baseURL+"/room_memberships?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRoomFor 返回 token 所属的第一个房间
func (c *Client) GetRoomFor(ctx context.Context, token string) (*Room, error) {
	m, err := c.RoomMemberships(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(m.Memberships) == 0 {
		return nil, ErrNoMembership
	}
	room := m.Memberships[0].Room
	return &room, nil
}

func getJSON(ctx context.Context, hc *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
