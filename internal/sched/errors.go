package sched

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
)

var (
	ErrUnknownTask     = errors.New("unknown task id")
	ErrTaskCompleted   = errors.New("task already completed")
	ErrAlreadyAttached = errors.New("named task already has a body")
	ErrPendingTasks    = errors.New("tasks still pending")
	ErrNotSubmitted    = errors.New("task not submitted")
	ErrNilTask         = errors.New("nil task")
	ErrNoDispatcher    = errors.New("no cpu dispatcher")
)

// ErrorCode classifies a diagnostic sent to an ErrorCallback.
type ErrorCode int

const (
	ErrorDebugInfo ErrorCode = iota
	ErrorDebugWarning
	ErrorInvalidParameter
	ErrorInvalidOperation
	ErrorInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorDebugInfo:
		return "debug_info"
	case ErrorDebugWarning:
		return "debug_warning"
	case ErrorInvalidParameter:
		return "invalid_parameter"
	case ErrorInvalidOperation:
		return "invalid_operation"
	case ErrorInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// ErrorCallback receives non-fatal diagnostics. Implementations must not call
// back into the TaskManager.
type ErrorCallback interface {
	ReportError(code ErrorCode, message, file string, line int)
}

// ErrorCallbackFunc adapts a function to ErrorCallback.
type ErrorCallbackFunc func(code ErrorCode, message, file string, line int)

func (f ErrorCallbackFunc) ReportError(code ErrorCode, message, file string, line int) {
	f(code, message, file, line)
}

// LogErrorCallback writes diagnostics to a slog.Logger.
type LogErrorCallback struct {
	Logger *slog.Logger
}

func (l LogErrorCallback) ReportError(code ErrorCode, message, file string, line int) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	switch code {
	case ErrorDebugInfo:
		level = slog.LevelDebug
	case ErrorInternal:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, message, "code", code.String(), "file", file, "line", line)
}

// caller returns the file and line of the function calling into report.
func caller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "???", 0
	}
	return file, line
}
