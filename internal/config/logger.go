package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Both modes write to stderr because
// stdout carries the MCP protocol.
func NewLogger(mode string) (*zap.Logger, error) {
	var logConfig zap.Config
	if mode == "prod" {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logConfig.OutputPaths = []string{"stderr"}
	logConfig.ErrorOutputPaths = []string{"stderr"}

	return logConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
