// Package logging builds the zap loggers used across txtvec.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"txtvec/internal/domain"
)

// NewLogger returns a zap logger writing to stderr. The "console" format
// uses the development encoder (human-readable), "json" the production one.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, &domain.ConfigError{Field: "logging.level", Reason: err.Error()}
	}

	var cfg zap.Config
	switch format {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, &domain.ConfigError{Field: "logging.format", Reason: "unknown format " + format}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}
