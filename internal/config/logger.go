package config

import (
	"fmt"
	"io"
	"os"

	"github.com/junbin-yang/subgames/pkg/logger"
)

// Writer 按 output 与 rotate 配置返回日志输出
func (l LoggerConfig) Writer() (io.Writer, error) {
	switch l.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	rc := &logger.RotateConfig{
		Filename:     l.Output,
		MaxSize:      l.MaxSize,
		MaxBackups:   l.MaxBackups,
		MaxAge:       l.MaxAge,
		Compress:     l.Compress,
		RotationTime: l.RotationTime,
		LocalTime:    true,
	}
	switch l.Rotate {
	case RotateSize:
		return logger.NewRotateBySize(rc), nil
	case RotateTime:
		return logger.NewRotateByTime(rc), nil
	}

	f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Build 创建日志实例，verbose 时强制 debug 级别
func (l LoggerConfig) Build(verbose bool) (*logger.ZapLogger, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	enc, err := logger.ParseEncoding(l.Encoding)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logger.DebugLevel
	}
	w, err := l.Writer()
	if err != nil {
		return nil, err
	}
	return logger.New(w, level, logger.WithEncoding(enc), logger.AddCaller()), nil
}
