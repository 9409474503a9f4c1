// Package logging builds the zap logger shared by skua and carries it
// through contexts.
package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
)

// DebugEnv switches NewLogger to zap's development config when "true".
const DebugEnv = "SKUA_DEBUG"

var (
	fallbackOnce sync.Once
	fallback     *zap.SugaredLogger
)

// NewLogger builds a logger writing to stderr.
func NewLogger() *zap.SugaredLogger {
	config := zap.NewProductionConfig()
	if os.Getenv(DebugEnv) == "true" {
		config = zap.NewDevelopmentConfig()
	}
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("skua").Sugar()
}

// Default returns a process-wide logger, built on first use.
func Default() *zap.SugaredLogger {
	fallbackOnce.Do(func() { fallback = NewLogger() })
	return fallback
}

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or Default.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return logger
		}
	}
	return Default()
}
