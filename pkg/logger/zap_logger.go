package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encoding 日志编码
type Encoding string

const (
	// ConsoleEncoding 带方括号的单行文本，适合终端
	ConsoleEncoding Encoding = "console"
	// JSONEncoding 每行一个 JSON 对象，适合采集
	JSONEncoding Encoding = "json"
)

// ParseEncoding 解析编码名称，空串视为 console
func ParseEncoding(s string) (Encoding, error) {
	switch enc := Encoding(strings.ToLower(strings.TrimSpace(s))); enc {
	case "", ConsoleEncoding:
		return ConsoleEncoding, nil
	case JSONEncoding:
		return JSONEncoding, nil
	}
	return ConsoleEncoding, fmt.Errorf("logger: unknown encoding %q", s)
}

const consoleTimeFormat = "2006-01-02 15:04:05"

// zap 的 DPanic 不对外暴露
var zapLevels = map[Level]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
	PanicLevel: zapcore.PanicLevel,
	FatalLevel: zapcore.FatalLevel,
}

func toZapLevel(level Level) zapcore.Level {
	if zl, ok := zapLevels[level]; ok {
		return zl
	}
	return zapcore.InfoLevel
}

// ZapLogger 基于 zap 的 Logger 实现，格式化方法走 SugaredLogger
type ZapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var _ Logger = (*ZapLogger)(nil)

// New 创建日志，out 为空时输出到 stderr
func New(out io.Writer, level Level, opts ...Option) *ZapLogger {
	s := settings{encoding: ConsoleEncoding}
	for _, opt := range opts {
		opt(&s)
	}
	if out == nil {
		out = os.Stderr
	}

	al := zap.NewAtomicLevelAt(toZapLevel(level))
	core := zapcore.NewCore(NewEncoder(s.encoding), zapcore.AddSync(out), al)
	return wrap(zap.New(core, s.zap...), al)
}

func wrap(base *zap.Logger, al zap.AtomicLevel) *ZapLogger {
	return &ZapLogger{base: base, sugar: base.Sugar(), level: al}
}

// NewEncoder 按编码创建 Encoder
func NewEncoder(enc Encoding) zapcore.Encoder {
	if enc == JSONEncoding {
		return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		})
	}

	bracket := func(s string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString("[" + s + "]") }
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller_line",
		FunctionKey:   zapcore.OmitKey,
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			bracket(l.CapitalString(), enc)
		},
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			bracket(t.Format(consoleTimeFormat), enc)
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller: func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			bracket(c.TrimmedPath(), enc)
		},
	})
}

func (l *ZapLogger) SetLevel(level Level) { l.level.SetLevel(toZapLevel(level)) }

// Enabled 当前级别下是否会输出
func (l *ZapLogger) Enabled(level Level) bool { return l.level.Enabled(toZapLevel(level)) }

// With 子日志共享父日志的级别
func (l *ZapLogger) With(fields ...Field) Logger { return wrap(l.base.With(fields...), l.level) }

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.base.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.base.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.base.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.base.Error(msg, fields...) }
func (l *ZapLogger) Panic(msg string, fields ...Field) { l.base.Panic(msg, fields...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.base.Fatal(msg, fields...) }

func (l *ZapLogger) Debugf(format string, v ...interface{}) { l.sugar.Debugf(format, v...) }
func (l *ZapLogger) Infof(format string, v ...interface{})  { l.sugar.Infof(format, v...) }
func (l *ZapLogger) Warnf(format string, v ...interface{})  { l.sugar.Warnf(format, v...) }
func (l *ZapLogger) Errorf(format string, v ...interface{}) { l.sugar.Errorf(format, v...) }
func (l *ZapLogger) Panicf(format string, v ...interface{}) { l.sugar.Panicf(format, v...) }
func (l *ZapLogger) Fatalf(format string, v ...interface{}) { l.sugar.Fatalf(format, v...) }

func (l *ZapLogger) Sync() error { return l.base.Sync() }
