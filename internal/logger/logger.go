package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogDirName    = "logs"
	defaultLogFilename   = "payhub.log"
	defaultLogMaxSizeMB  = 100
	defaultLogMaxBackups = 7
	defaultLogMaxAgeDays = 30
)

// Options 日志输出配置
type Options struct {
	Dir        string
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// L 全局结构化日志实例
var L *zap.Logger

var (
	fallbackOnce sync.Once
	fallbackLog  *zap.Logger
)

// Init 初始化全局日志
func Init(mode string, options Options) *zap.Logger {
	L = New(mode, options)
	if L == nil {
		L = fallbackLogger()
	}
	zap.ReplaceGlobals(L)
	return L
}

// New 创建日志实例
func New(mode string, options Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	debug := strings.EqualFold(strings.TrimSpace(mode), "debug")
	if debug {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if debug {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		)
		return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	writeSyncer, err := newFileWriteSyncer(options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed, fallback to stdout: %v\n", err)
		writeSyncer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		writeSyncer,
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// StdLogger 返回兼容标准库 log 的 logger
func StdLogger() *log.Logger {
	return zap.NewStdLog(Z())
}

// Z 返回可用的结构化日志实例
func Z() *zap.Logger {
	if L != nil {
		return L
	}
	return fallbackLogger()
}

// S 返回可用的 SugaredLogger
func S() *zap.SugaredLogger {
	return Z().Sugar()
}

// SW 返回带上下文字段的 SugaredLogger
func SW(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return S()
	}
	return S().With(kv...)
}

// Debugw 输出 debug 级别日志
func Debugw(message string, kv ...interface{}) {
	S().Debugw(message, kv...)
}

// Infow 输出 info 级别日志
func Infow(message string, kv ...interface{}) {
	S().Infow(message, kv...)
}

// Warnw 输出 warn 级别日志
func Warnw(message string, kv ...interface{}) {
	S().Warnw(message, kv...)
}

// Errorw 输出 error 级别日志
func Errorw(message string, kv ...interface{}) {
	S().Errorw(message, kv...)
}

func fallbackLogger() *zap.Logger {
	fallbackOnce.Do(func() {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.MessageKey = "message"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(zap.InfoLevel),
		)
		fallbackLog = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	})
	return fallbackLog
}

func newFileWriteSyncer(options Options) (zapcore.WriteSyncer, error) {
	dir := strings.TrimSpace(options.Dir)
	if dir == "" {
		workDir, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workdir failed: %w", err)
		}
		dir = filepath.Join(workDir, defaultLogDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir failed: %w", err)
	}

	filename := strings.TrimSpace(options.Filename)
	if filename == "" {
		filename = defaultLogFilename
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    normalizePositiveInt(options.MaxSizeMB, defaultLogMaxSizeMB),
		MaxBackups: normalizePositiveInt(options.MaxBackups, defaultLogMaxBackups),
		MaxAge:     normalizePositiveInt(options.MaxAgeDays, defaultLogMaxAgeDays),
		Compress:   options.Compress,
	}
	return zapcore.AddSync(writer), nil
}

func normalizePositiveInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
