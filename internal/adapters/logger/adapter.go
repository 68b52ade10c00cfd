// Package logger provides adapters for the logging interface.
package logger

import (
	"context"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"
)

// ZapAdapter adapts a goLibMyCarrier logger to the narrow logging interfaces
// declared by cmd, usecases and the git adapter.
type ZapAdapter struct {
	log logger.Logger
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log logger.Logger) *ZapAdapter {
	return &ZapAdapter{log: log}
}

// ForComponent returns an adapter whose entries carry component=name.
func (a *ZapAdapter) ForComponent(name string) *ZapAdapter {
	return NewZapAdapter(a.log.WithFields(map[string]interface{}{"component": name}))
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Info(ctx, msg, fields)
}

// Debug logs a debug message.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Debug(ctx, msg, fields)
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	a.log.Warn(ctx, msg, fields)
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	a.log.Error(ctx, msg, err, fields)
}
