// SPDX-License-Identifier: Apache-2.0

// Package logging provides postgate's structured logger, a thin wrapper
// over pterm's logger so every component logs key-value pairs the same
// way without depending on pterm directly.
package logging

import "github.com/pterm/pterm"

// Logger is the structured logging interface every postgate component
// depends on instead of pterm.Logger directly, so it can be faked in
// unit tests.
type Logger interface {
	Debug(msg string, args []any)
	Info(msg string, args []any)
	Warn(msg string, args []any)
	Error(msg string, args []any)
}

type ptermLogger struct {
	logger pterm.Logger
}

// New returns the default pterm-backed logger, writing structured lines
// to stderr at the given level ("debug", "info", "warn", or "error").
func New(level string) Logger {
	return &ptermLogger{logger: pterm.DefaultLogger.WithLevel(parseLevel(level))}
}

func parseLevel(level string) pterm.LogLevel {
	switch level {
	case "debug":
		return pterm.LogLevelDebug
	case "warn":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}

func (l *ptermLogger) Debug(msg string, args []any) { l.logger.Debug(msg, l.logger.Args(args)) }
func (l *ptermLogger) Info(msg string, args []any)  { l.logger.Info(msg, l.logger.Args(args)) }
func (l *ptermLogger) Warn(msg string, args []any)  { l.logger.Warn(msg, l.logger.Args(args)) }
func (l *ptermLogger) Error(msg string, args []any) { l.logger.Error(msg, l.logger.Args(args)) }

// Noop discards everything, for tests that don't want to assert on log output.
type Noop struct{}

func (Noop) Debug(string, []any) {}
func (Noop) Info(string, []any)  {}
func (Noop) Warn(string, []any)  {}
func (Noop) Error(string, []any) {}
