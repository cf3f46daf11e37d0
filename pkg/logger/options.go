package logger

import (
	"go.uber.org/zap"
)

type settings struct {
	encoding Encoding
	zap      []zap.Option
}

// Option 日志构建选项
type Option func(*settings)

// WithEncoding 指定输出编码，默认 console
func WithEncoding(enc Encoding) Option {
	return func(s *settings) { s.encoding = enc }
}

func AddCaller() Option { return zapOption(zap.AddCaller()) }

func AddCallerSkip(skip int) Option { return zapOption(zap.AddCallerSkip(skip)) }

// AddStacktrace 在指定级别及以上附加堆栈
func AddStacktrace(level Level) Option { return zapOption(zap.AddStacktrace(toZapLevel(level))) }

// Fields 为所有日志附加固定字段
func Fields(fields ...Field) Option { return zapOption(zap.Fields(fields...)) }

func zapOption(o zap.Option) Option {
	return func(s *settings) { s.zap = append(s.zap, o) }
}
