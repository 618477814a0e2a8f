package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level    string `yaml:"level"`    // debug / info / warn / error
	Encoding string `yaml:"encoding"` // console / json
}

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(New(Config{Level: "debug", Encoding: "console"}))
}

// New 构建一个 zap logger，console 模式下彩色等级
func New(c Config) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if strings.EqualFold(c.Encoding, "json") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), parseLevel(c.Level))
	return zap.New(core, zap.AddCaller())
}

// Init 替换全局 logger（main 启动时调用一次）
func Init(c Config) *zap.Logger {
	l := New(c)
	current.Store(l)
	return l
}

// L 当前全局 logger
func L() *zap.Logger { return current.Load() }

func Sync() { _ = L().Sync() }

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
