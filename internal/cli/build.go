package cli

import (
	"crypto/tls"
	"fmt"

	"github.com/junbin-yang/subgames/internal/channel"
	"github.com/junbin-yang/subgames/internal/chatdepot"
	"github.com/junbin-yang/subgames/internal/chatsession"
	"github.com/junbin-yang/subgames/internal/config"
	"github.com/junbin-yang/subgames/internal/gamesession"
	"github.com/junbin-yang/subgames/internal/ircclient"
	"github.com/junbin-yang/subgames/internal/pairing"
	"github.com/junbin-yang/subgames/internal/session"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/taskpool"
)

// buildChannel 按配置组装一个频道：两个聊天身份、配对控制器、游戏会话与总控。
// 返回的任务池由调用方在频道释放后关闭。
func buildChannel(cfg *config.Config, newGameClient gamesession.ClientFactory) (*channel.Orchestrator, *taskpool.TaskPool, error) {
	poolLog := logger.With(logger.String("component", "pool"))
	pool := taskpool.New(
		taskpool.WithWorkers(cfg.Pool.Workers),
		taskpool.WithQueueSize(cfg.Pool.QueueSize),
		taskpool.WithDefaultTimeout(cfg.Pool.TaskTimeout),
		taskpool.WithOnTaskComplete(pairing.LogTaskFailure(poolLog)),
		taskpool.WithOnShutdown(func(m *taskpool.MetricsSnapshot) {
			poolLog.Info("pool stopped",
				logger.Int64("submitted", m.TotalSubmitted),
				logger.Int64("failed", m.TotalFailed),
				logger.Int64("panics", m.TotalPanic))
		}),
	)

	ircOpts := ircclient.DefaultOptions()
	if cfg.Chat.FloodBurst > 0 {
		ircOpts.FloodBurst = cfg.Chat.FloodBurst
		ircOpts.FloodPeriod = cfg.Chat.FloodPeriod
	}
	if cfg.Chat.TLS {
		ircOpts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	depot := chatdepot.NewClient(cfg.Chat.DepotURL, chatdepot.WithTimeout(cfg.Chat.LookupTimeout))
	directory := chatdepot.NewDirectory(cfg.Chat.ServersURL)

	base := chatsession.Config{
		Auth:          session.AuthInfo{Username: cfg.Chat.Username, Password: cfg.Chat.Token},
		DefaultServer: cfg.Chat.DefaultServer,
		Retry:         session.NewRetryPolicy(cfg.Chat.RetryDelay, cfg.Chat.HandshakeTimeout),
		LookupTimeout: cfg.Chat.LookupTimeout,
		NewClient:     ircclient.NewFactory(ircOpts),
	}

	talkCfg := base
	talkCfg.Kind = chatsession.Talk
	talkCfg.HomeChannel = cfg.Chat.HomeChannel
	talkCfg.Greeting = cfg.Chat.Greeting
	talk, err := chatsession.New(talkCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build talk identity: %w", err)
	}

	whisperCfg := base
	whisperCfg.Kind = chatsession.Whisper
	whisperCfg.Lookup = depot
	whisperCfg.Directory = directory
	whisper, err := chatsession.New(whisperCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build whisper identity: %w", err)
	}

	chat, err := pairing.New(pairing.Config{
		Talk:        talk,
		Whisper:     whisper,
		RelayTarget: cfg.Channel.RelayTarget,
		Pool:        pool,
	})
	if err != nil {
		return nil, nil, err
	}

	if newGameClient == nil {
		newGameClient = gamesession.OfflineFactory(cfg.Game.LocalID)
	}
	game, err := gamesession.New(gamesession.Config{
		Retry:        session.NewRetryPolicy(cfg.Game.RetryDelay, cfg.Game.HandshakeTimeout),
		MatchTimeout: cfg.Game.MatchTimeout,
		NewClient:    newGameClient,
	})
	if err != nil {
		return nil, nil, err
	}

	orch, err := channel.New(channel.Config{
		Name:    cfg.Channel.Name,
		OwnerID: cfg.Channel.OwnerID,
		Pool:    pool,
	}, game, chat)
	if err != nil {
		return nil, nil, err
	}
	return orch, pool, nil
}
