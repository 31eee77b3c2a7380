// Package log provides a structured logging interface for the stacking pipeline.
//
// The interface is slog-compatible so the backend can be swapped, while the
// default provider is backed by zerolog. Training, persistence and inference
// all log through GetLoggerWithName so every record carries its component.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("stacking.trainer").With(
//	    log.TargetKey, "N_Status",
//	    log.FamilyKey, "xgboost",
//	)
//	logger.Info("Fold trained",
//	    log.FoldKey, 2,
//	    log.SamplesKey, 800,
//	)
package log

import (
	"context"
	"fmt"
	"strings"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. When the first field passed to
// Error is an error value, implementations attach its message and, where
// available, its stack trace.
type Logger interface {
	// Debug logs detailed diagnostic information, usually disabled in production.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	//
	//   logger.Info("Meta-learner trained",
	//       log.TargetKey, "K_Status",
	//       log.AccuracyKey, 0.93,
	//   )
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the pipeline, such as a
	// fold coverage gap.
	Warn(msg string, fields ...any)

	// Error logs an error condition.
	//
	//   logger.Error("Training failed", err,
	//       log.OperationKey, log.OperationFit,
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a textual level ("debug", "info", "warn", "error") to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q", level)
	}
}

// ToLogLevel is ParseLevel for trusted input; it panics on an invalid level.
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

// LoggerProvider creates and configures loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
