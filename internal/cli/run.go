package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/subgames/internal/channel"
	"github.com/junbin-yang/subgames/internal/config"
	kitconfig "github.com/junbin-yang/subgames/pkg/config"
	"github.com/junbin-yang/subgames/pkg/lifecycle"
	"github.com/junbin-yang/subgames/pkg/logger"
	"github.com/junbin-yang/subgames/pkg/timer"
)

const (
	appName       = "subgames"
	envPrefix     = "SUBGAMES_"
	watchDebounce = 500 * time.Millisecond
	statusTimerID = "status"
)

// RunOptions run 命令参数
type RunOptions struct {
	*RootOptions
	// StatusInterval 命令行指定时覆盖配置中的 status_interval
	StatusInterval time.Duration
	statusFlagSet  bool
}

// NewRunCommand 创建 run 命令
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动频道并运行到收到退出信号",
		Long: `按配置启动一个频道：连接两个聊天身份和游戏平台身份，
两边都就绪后接管游戏大厅。收到 SIGINT/SIGTERM 时按序停止。

Example:
  subgames run -c ./subgames.yaml
  SUBGAMES_CHAT_TOKEN=oauth:xxx subgames run -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.statusFlagSet = cmd.Flags().Changed("status-interval")
			return runChannel(opts)
		},
	}

	cmd.Flags().DurationVar(&opts.StatusInterval, "status-interval", time.Minute, "状态日志间隔，0 表示关闭（默认取配置）")

	return cmd
}

// loadConfig 加载配置，watch 为真时监听文件变更
func loadConfig(opts *RootOptions, watch bool) (*config.Config, *kitconfig.ConfigManager, error) {
	cfg := &config.Config{}
	mgr := kitconfig.NewConfigManager(cfg,
		kitconfig.WithAppName(appName),
		kitconfig.WithEnvPrefix(envPrefix),
		kitconfig.WithConfigWatch(watch, watchDebounce),
	)
	if err := mgr.LoadConfig(opts.ConfigPath); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, mgr, nil
}

func runChannel(opts *RunOptions) error {
	cfg, mgr, err := loadConfig(opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer mgr.Close()

	log, err := cfg.Logger.Build(opts.Verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger.ReplaceDefault(log)

	orch, pool, err := buildChannel(cfg, nil)
	if err != nil {
		return err
	}

	timers := timer.NewManager()
	reportStatus := func() { logStatus(orch.Status()) }
	statusInterval := cfg.StatusInterval
	if opts.statusFlagSet {
		statusInterval = opts.StatusInterval
	}

	mgr.OnChange(func(_, next interface{}) {
		reloaded, ok := next.(*config.Config)
		if !ok {
			return
		}
		if !opts.statusFlagSet {
			if err := applyStatusInterval(timers, reloaded.StatusInterval, reportStatus); err != nil {
				logger.Warn("status interval reload failed", logger.Err(err))
			}
		}
		if opts.Verbose {
			return
		}
		level, err := logger.ParseLevel(reloaded.Logger.Level)
		if err != nil {
			return
		}
		logger.SetLevel(level)
		logger.Info("log level reloaded", logger.String("level", level.String()))
	})

	lm := lifecycle.NewManager(
		lifecycle.WithShutdownTimeout(cfg.ShutdownTimeout),
		lifecycle.WithLogger(log.With(logger.String("component", "lifecycle"))),
	)

	lm.OnStartup(func(ctx context.Context) error {
		logger.Info("starting channel",
			logger.String("channel", cfg.Channel.Name),
			logger.String("config", mgr.ConfigPath()))
		return applyStatusInterval(timers, statusInterval, reportStatus)
	})

	err = lm.AddWorker("channel", func(ctx context.Context) error {
		orch.Start()
		<-ctx.Done()
		return nil
	}, lifecycle.WithStopFunc(func(ctx context.Context) error {
		err := orch.Dispose(ctx)
		if perr := pool.Shutdown(ctx); perr != nil && err == nil {
			err = perr
		}
		return err
	}))
	if err != nil {
		return err
	}

	lm.OnShutdown(func(ctx context.Context) error {
		timers.StopAll()
		logStatus(orch.Status())
		_ = logger.Sync()
		return nil
	})

	return lm.Run()
}

// applyStatusInterval 按间隔创建、重置或移除状态定时器
func applyStatusInterval(timers *timer.Manager, interval time.Duration, fn func()) error {
	info, exists := timers.GetTimer(statusTimerID)
	switch {
	case interval <= 0:
		if !exists {
			return nil
		}
		return timers.RemoveTimer(statusTimerID)
	case !exists:
		return timers.CreateTimer(statusTimerID, interval, fn)
	case info.Interval != interval:
		return timers.ResetTimer(statusTimerID, interval)
	}
	return nil
}

func logStatus(st channel.Status) {
	logger.Info("channel status",
		logger.String("channel", st.Name),
		logger.Any("states", st.States),
		logger.Uint64("lobby", st.Channel.LobbyID),
		logger.Int64("tasks", st.Pool.TotalSubmitted),
		logger.Int64("failed", st.Pool.TotalFailed))
}
