// Package logger provides logging utilities for the application.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// logger is the global logger instance, lazily initialized with a default Info-level logger.
var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// initDefaultLogger initializes a default Info-level logger if none has been set.
func initDefaultLogger() {
	loggerOnce.Do(func() {
		if logger == nil {
			cfg := zap.NewProductionConfig()
			cfg.Level.SetLevel(zapcore.InfoLevel)
			var err error
			logger, err = cfg.Build()
			if err != nil {
				// Fallback to nop logger if we can't create default
				logger = zap.NewNop()
			}
		}
	})
}

// Get returns the logger instance. If InitLogger hasn't been called, returns a default Info-level logger.
func Get() *zap.Logger {
	initDefaultLogger()
	return logger
}

// Named returns a named logger with level filtering based on hierarchical configuration.
// If Init hasn't been called, returns a named default logger.
func Named(name string) *zap.Logger {
	baseLogger := Get()
	namedLogger := baseLogger.Named(name)

	level := GetLevelForName(name)

	return namedLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &levelFilterCore{
			Core:  core,
			level: level,
		}
	}))
}

// Environment represents the application environment type.
type Environment string

const (
	// EnvironmentDevelopment represents the development environment.
	EnvironmentDevelopment Environment = "development"
	// EnvironmentProduction represents the production environment.
	EnvironmentProduction Environment = "production"
)

// LogLevel represents the logging level type.
type LogLevel string

const (
	// LogLevelDebug represents the debug logging level.
	LogLevelDebug LogLevel = "debug"
	// Info represents the info logging level.
	Info LogLevel = "info"
	// Warn represents the warn logging level.
	Warn LogLevel = "warn"
	// Error represents the error logging level.
	Error LogLevel = "error"
)

// FileConfig controls optional rotation of the log file sink via lumberjack.
// When Path is empty, file rotation is disabled and only the console sink
// is used.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// InitLogger initializes the global logger with the specified environment, log level, and hierarchical level configuration.
// The levels parameter is a map of logger names to their log levels (e.g., "core.db" -> "debug").
// When file.Path is non-empty, log records are also written to a rotating
// file sink managed by lumberjack alongside the console sink; rotated
// backups use lumberjack's own naming (app-<timestamp>.log, gzip-compressed
// when file.Compress is set).
func InitLogger(environment Environment, logLevel LogLevel, levels map[string]string, file FileConfig) {
	var encoderCfg zapcore.EncoderConfig
	var consoleEncoder zapcore.Encoder

	if environment == EnvironmentDevelopment {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		consoleEncoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	zapLevel := getZapLevel(string(logLevel))
	levelEnabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapLevel })

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), levelEnabler),
	}

	if file.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    orDefault(file.MaxSizeMB, 100),
			MaxBackups: orDefault(file.MaxBackups, 5),
			MaxAge:     orDefault(file.MaxAgeDays, 28),
			Compress:   file.Compress,
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), levelEnabler))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	InitLevelConfig(levels, zapLevel)

	zap.RedirectStdLog(logger)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func getZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
