// Package obslog configures the runtime's structured logging, matching
// the teacher's convention of calling the package-level slog.Info/Warn/
// Error functions directly with key/value pairs rather than threading a
// logger instance through every call.
package obslog

import (
	"log/slog"
	"os"
)

// Configure installs a JSON handler at the given level as the default
// slog logger. level accepts the usual slog names ("debug", "info",
// "warn", "error"); an unrecognised name falls back to info.
func Configure(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// EngineEvent logs a status-channel notification at debug level, keyed
// the way the rest of the runtime's log lines are: a short message plus
// structured fields.
func EngineEvent(protocol, token string, args []string) {
	slog.Debug("engine status", "protocol", protocol, "token", token, "args", args)
}

// OperationStarted logs the start of an operation.
func OperationStarted(kind, protocol string) {
	slog.Info("operation started", "kind", kind, "protocol", protocol)
}

// OperationDone logs the completion of an operation, including its error
// if any.
func OperationDone(kind, protocol string, err error) {
	if err != nil {
		slog.Warn("operation failed", "kind", kind, "protocol", protocol, "error", err)
		return
	}
	slog.Info("operation completed", "kind", kind, "protocol", protocol)
}
