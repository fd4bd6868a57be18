package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// Valid levels: debug, info, warn, error. Default: info, json, stderr only.
func NewLogger() (*zap.Logger, error) {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}

	var level zapcore.Level
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Encoding = format
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logFile := os.Getenv("LOG_FILE")
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
