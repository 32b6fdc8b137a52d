package common

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger implements the ILogger interface on top of a named zap logger.
// The level is kept per logger, the zap core logs everything it is given.
type zapLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *zapLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	l.sugar.Panicf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	baseOnce sync.Once
	base     *zap.Logger
)

// baseLogger returns the zap logger every named logger is derived from.
// Lines look like "2025-01-02 15:04:05 | INFO  | store           | message".
func baseLogger() *zap.Logger {
	baseOnce.Do(func() {
		encoderConfig := zapcore.EncoderConfig{
			TimeKey:          "time",
			LevelKey:         "level",
			NameKey:          "logger",
			MessageKey:       "msg",
			EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
			EncodeLevel:      func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(fmt.Sprintf("%-5s", l.CapitalString())) },
			EncodeName:       func(n string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(fmt.Sprintf("%-15s", n)) },
			ConsoleSeparator: " | ",
		}
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			zapcore.DebugLevel,
		)
		base = zap.New(core)
	})
	return base
}

// CreateLogger creates the logger for a package. It is installed as the
// dragonboat logger factory by InitLoggers.
func CreateLogger(pkgName string) logger.ILogger {
	return &zapLogger{
		level: logger.INFO,
		sugar: baseLogger().Named(pkgName).Sugar(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatLoggers are the loggers of the raft library. They stay one level
// quieter than ours, except in debug mode.
var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "logdb", "config"}

// evkvLoggers are the loggers of this module
var evkvLoggers = []string{
	"store", "eventstore", "lifetime", "rpc", "transport/rpc", "cli",
	"engine/leveldb", "engine/pebble", "engine/badger", "engine/bolt", "engine/maple",
	"engine/redis", "engine/sql", "engine/raft",
}

// InitLoggers installs the zap logger factory and sets the level of all loggers
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	libLevel := lvl
	if lvl > logger.WARNING && lvl != logger.DEBUG {
		libLevel = logger.WARNING
	}
	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(libLevel)
	}
	for _, name := range evkvLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
