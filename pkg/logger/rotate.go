package logger

import (
	"io"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateConfig 日志轮转配置
type RotateConfig struct {
	Filename     string        // 日志文件路径
	MaxSize      int           // 按大小轮转时单个文件上限，单位 MB
	MaxBackups   int           // 保留的旧文件数量
	MaxAge       int           // 保留天数
	Compress     bool          // 是否压缩旧文件
	RotationTime time.Duration // 按时间轮转的周期
	LocalTime    bool          // 文件名使用本地时间
}

// NewProductionRotateBySize 生产环境默认的按大小轮转输出
func NewProductionRotateBySize(filename string) io.Writer {
	return NewRotateBySize(&RotateConfig{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		LocalTime:  true,
	})
}

// NewRotateBySize 按大小轮转
func NewRotateBySize(cfg *RotateConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}
}

// NewRotateByTime 按时间轮转，失败时退回按大小轮转
func NewRotateByTime(cfg *RotateConfig) io.Writer {
	rotation := cfg.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7
	}

	opts := []rotatelogs.Option{
		rotatelogs.WithLinkName(cfg.Filename),
		rotatelogs.WithMaxAge(time.Duration(maxAge) * 24 * time.Hour),
		rotatelogs.WithRotationTime(rotation),
	}
	if !cfg.LocalTime {
		opts = append(opts, rotatelogs.WithClock(rotatelogs.UTC))
	}

	ext := filepath.Ext(cfg.Filename)
	pattern := cfg.Filename[:len(cfg.Filename)-len(ext)] + ".%Y%m%d%H%M" + ext
	w, err := rotatelogs.New(pattern, opts...)
	if err != nil {
		Warn("logger: rotate by time unavailable, falling back to size", Err(err))
		return NewRotateBySize(cfg)
	}
	return w
}
