package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger until Initialize() is called
	Logger = zap.NewNop().Sugar()
}

// Options controls how Initialize builds the global logger
type Options struct {
	JSON      bool      // JSON structured output instead of console lines
	Compact   bool      // short terminal lines, see compactEncoder; ignored with JSON
	Color     bool      // ANSI colors for Compact
	Verbosity int       // -v count, see VerbosityToLevel
	Output    io.Writer // defaults to os.Stderr
}

// Initialize sets up the global logger.
//
// Console output keeps the daemon's historic line shape:
//
//	2024-05-01 08:00:00: INFO: pulse.schedule: Next execution is scheduled ...
func Initialize(opts Options) error {
	JSONOutput = opts.JSON

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zap.NewAtomicLevelAt(VerbosityToLevel(opts.Verbosity))

	var encoder zapcore.Encoder
	switch {
	case opts.JSON:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case opts.Compact:
		encoder = newCompactEncoder(opts.Color)
	default:
		encoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}

	zapLogger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level))
	Logger = zapLogger.Sugar()
	return nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.ConsoleSeparator = ": "
	return cfg
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
