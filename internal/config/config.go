package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/junbin-yang/subgames/pkg/logger"
)

// 游戏驱动
const (
	GameDriverOffline = "offline"
)

// 日志轮转方式
const (
	RotateNone = ""
	RotateSize = "size"
	RotateTime = "time"
)

// Config 应用配置
type Config struct {
	Channel         ChannelConfig `yaml:"channel" json:"channel" ini:"channel"`
	Game            GameConfig    `yaml:"game" json:"game" ini:"game"`
	Chat            ChatConfig    `yaml:"chat" json:"chat" ini:"chat"`
	Logger          LoggerConfig  `yaml:"logger" json:"logger" ini:"logger"`
	Pool            PoolConfig    `yaml:"pool" json:"pool" ini:"pool"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" ini:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// StatusInterval 状态日志间隔，0 表示关闭，重载后立即生效
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval" ini:"status_interval" env:"STATUS_INTERVAL"`
}

// ChannelConfig 频道配置
type ChannelConfig struct {
	Name        string `yaml:"name" json:"name" ini:"name" env:"CHANNEL_NAME"`
	OwnerID     uint64 `yaml:"owner_id" json:"owner_id" ini:"owner_id" env:"CHANNEL_OWNER_ID"`
	RelayTarget string `yaml:"relay_target" json:"relay_target" ini:"relay_target" env:"CHANNEL_RELAY_TARGET"`
}

// GameConfig 游戏平台会话配置
type GameConfig struct {
	Driver           string        `yaml:"driver" json:"driver" ini:"driver" env:"GAME_DRIVER"`
	LocalID          uint64        `yaml:"local_id" json:"local_id" ini:"local_id" env:"GAME_LOCAL_ID"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay" ini:"retry_delay" env:"GAME_RETRY_DELAY"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout" ini:"handshake_timeout"`
	MatchTimeout     time.Duration `yaml:"match_timeout" json:"match_timeout" ini:"match_timeout"`
}

// ChatConfig 聊天身份配置，两个身份共用同一凭据
type ChatConfig struct {
	Username         string        `yaml:"username" json:"username" ini:"username" env:"CHAT_USERNAME"`
	Token            string        `yaml:"token" json:"token" ini:"token" env:"CHAT_TOKEN"`
	HomeChannel      string        `yaml:"home_channel" json:"home_channel" ini:"home_channel" env:"CHAT_HOME_CHANNEL"`
	Greeting         string        `yaml:"greeting" json:"greeting" ini:"greeting"`
	DefaultServer    string        `yaml:"default_server" json:"default_server" ini:"default_server" env:"CHAT_SERVER"`
	DepotURL         string        `yaml:"depot_url" json:"depot_url" ini:"depot_url" env:"CHAT_DEPOT_URL"`
	ServersURL       string        `yaml:"servers_url" json:"servers_url" ini:"servers_url" env:"CHAT_SERVERS_URL"`
	TLS              bool          `yaml:"tls" json:"tls" ini:"tls" env:"CHAT_TLS"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay" ini:"retry_delay" env:"CHAT_RETRY_DELAY"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout" ini:"handshake_timeout"`
	LookupTimeout    time.Duration `yaml:"lookup_timeout" json:"lookup_timeout" ini:"lookup_timeout"`
	FloodBurst       int           `yaml:"flood_burst" json:"flood_burst" ini:"flood_burst"`
	FloodPeriod      time.Duration `yaml:"flood_period" json:"flood_period" ini:"flood_period"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string        `yaml:"level" json:"level" ini:"level" env:"LOG_LEVEL"`
	Encoding     string        `yaml:"encoding" json:"encoding" ini:"encoding" env:"LOG_ENCODING"`
	Output       string        `yaml:"output" json:"output" ini:"output" env:"LOG_OUTPUT"`
	Rotate       string        `yaml:"rotate" json:"rotate" ini:"rotate"`
	MaxSize      int           `yaml:"max_size" json:"max_size" ini:"max_size"`
	MaxBackups   int           `yaml:"max_backups" json:"max_backups" ini:"max_backups"`
	MaxAge       int           `yaml:"max_age" json:"max_age" ini:"max_age"`
	Compress     bool          `yaml:"compress" json:"compress" ini:"compress"`
	RotationTime time.Duration `yaml:"rotation_time" json:"rotation_time" ini:"rotation_time"`
}

// PoolConfig 启停任务池配置
type PoolConfig struct {
	Workers     int           `yaml:"workers" json:"workers" ini:"workers"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size" ini:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout" json:"task_timeout" ini:"task_timeout"`
}

// Default 返回填充默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults 填充默认值
func (c *Config) SetDefaults() {
	c.ShutdownTimeout = 10 * time.Second
	c.StatusInterval = time.Minute

	c.Game.Driver = GameDriverOffline
	c.Game.RetryDelay = 2 * time.Second
	c.Game.HandshakeTimeout = 10 * time.Second
	c.Game.MatchTimeout = 5 * time.Second

	c.Chat.DefaultServer = "irc.chat.twitch.tv:6667"
	c.Chat.DepotURL = "http://chatdepot.twitch.tv"
	c.Chat.ServersURL = "http://tmi.twitch.tv"
	c.Chat.RetryDelay = 3 * time.Second
	c.Chat.HandshakeTimeout = 10 * time.Second
	c.Chat.LookupTimeout = 10 * time.Second
	c.Chat.FloodBurst = 4
	c.Chat.FloodPeriod = 2 * time.Second

	c.Logger.Level = "info"
	c.Logger.Encoding = string(logger.ConsoleEncoding)
	c.Logger.Output = "stdout"
	c.Logger.MaxSize = 100
	c.Logger.MaxBackups = 10
	c.Logger.MaxAge = 30
	c.Logger.RotationTime = 24 * time.Hour

	c.Pool.Workers = 4
	c.Pool.QueueSize = 32
	c.Pool.TaskTimeout = 5 * time.Second
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Channel.Name == "" {
		errs = append(errs, errors.New("channel.name is required"))
	}
	if c.Chat.Username == "" || c.Chat.Token == "" {
		errs = append(errs, errors.New("chat.username and chat.token are required"))
	}
	if c.Game.Driver != GameDriverOffline {
		errs = append(errs, fmt.Errorf("game.driver %q is not supported", c.Game.Driver))
	}
	if _, err := logger.ParseLevel(c.Logger.Level); err != nil {
		errs = append(errs, fmt.Errorf("logger.level: %w", err))
	}
	if _, err := logger.ParseEncoding(c.Logger.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("logger.encoding: %w", err))
	}
	switch c.Logger.Rotate {
	case RotateNone, RotateSize, RotateTime:
	default:
		errs = append(errs, fmt.Errorf("logger.rotate %q must be size or time", c.Logger.Rotate))
	}
	if c.Logger.Rotate != RotateNone && (c.Logger.Output == "stdout" || c.Logger.Output == "stderr") {
		errs = append(errs, errors.New("logger.rotate requires a file output"))
	}
	if c.Pool.Workers <= 0 {
		errs = append(errs, errors.New("pool.workers must be positive"))
	}
	return errors.Join(errs...)
}
