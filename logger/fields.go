package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldApp         = "app"
	FieldJobID       = "job_id"
	FieldExecutionID = "execution_id"
	FieldRunID       = "run_id"

	// Components
	FieldComponent = "component"
	FieldService   = "service"

	// Scheduling
	FieldLastExecution = "last_execution"
	FieldNextExecution = "next_execution"
	FieldDelay         = "delay"
	FieldAction        = "action"
	FieldNotification  = "notification_id"

	// Commands
	FieldCommand  = "command"
	FieldExitCode = "exit_code"
	FieldSeverity = "severity"

	// Errors
	FieldError = "error"

	// Files and paths
	FieldFile = "file"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Runner struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewRunner() *Runner {
//	    return &Runner{
//	        logger: logger.ComponentLogger("pulse.exec"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	jobLogger := logger.ChildLogger(baseLogger, logger.FieldJobID, job.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
