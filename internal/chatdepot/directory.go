package chatdepot

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/timer"
)

// Directory 按集群缓存聊天服务器列表，首次使用或显式刷新时请求远端
type Directory struct {
	baseURL    string
	http       *http.Client
	attempts   int
	retryDelay time.Duration

	mu       sync.RWMutex
	clusters map[string]*ServerList
}

// DirectoryOption 目录选项
type DirectoryOption func(*Directory)

// WithDirectoryHTTPClient 使用自定义 http.Client
func WithDirectoryHTTPClient(hc *http.Client) DirectoryOption {
	return func(d *Directory) { d.http = hc }
}

// WithRetry 设置刷新失败时的重试次数与间隔
func WithRetry(attempts int, delay time.Duration) DirectoryOption {
	return func(d *Directory) {
		if attempts > 0 {
			d.attempts = attempts
		}
		d.retryDelay = delay
	}
}

// NewDirectory 创建服务器目录，baseURL 为空时使用 DefaultServersURL
func NewDirectory(baseURL string, opts ...DirectoryOption) *Directory {
	if baseURL == "" {
		baseURL = DefaultServersURL
	}
	d := &Directory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: DefaultTimeout},
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
		clusters:   make(map[string]*ServerList),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Servers 返回集群的服务器列表，未缓存时先刷新
func (d *Directory) Servers(ctx context.Context, cluster string) ([]string, error) {
	if list, ok := d.Cached(cluster); ok {
		return list.Servers, nil
	}
	list, err := d.Refresh(ctx, cluster)
	if err != nil {
		return nil, err
	}
	return list.Servers, nil
}

// Cached 返回缓存的服务器列表
func (d *Directory) Cached(cluster string) (*ServerList, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list, ok := d.clusters[cluster]
	return list, ok
}

// Refresh 重新拉取集群的服务器列表并更新缓存
func (d *Directory) Refresh(ctx context.Context, cluster string) (*ServerList, error) {
	q := url.Values{}
	q.Set("cluster", cluster)
	target := d.baseURL + "/servers?" + q.Encode()

	var list *ServerList
	err := timer.Retry(d.attempts, d.retryDelay, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var fetched ServerList
		if err := getJSON(ctx, d.http, target, &fetched); err != nil {
			return err
		}
		list = &fetched
		return nil
	})
	if err != nil {
		logger.Warn("refresh server cluster failed", logger.String("cluster", cluster), logger.Err(err))
		return nil, err
	}

	d.mu.Lock()
	d.clusters[cluster] = list
	d.mu.Unlock()
	logger.Debug("server cluster refreshed", logger.String("cluster", cluster), logger.Int("servers", len(list.Servers)))
	return list, nil
}
