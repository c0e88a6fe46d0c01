// Package logging provides structured logging for the graph runtime,
// wrapping log/slog with module-scoped levels and domain-specific helpers.
package logging

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance, safe for
// concurrent use. It honours SPEECHFLOW_LOG_LEVEL at process start.
var DefaultLogger *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("SPEECHFLOW_LOG_LEVEL"); envLevel != "" {
		level = parseLevel(envLevel, level)
	}
	DefaultLogger = slog.New(NewModuleHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// SetLevel replaces the default logger's minimum level.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(NewModuleHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func Info(msg string, args ...any)                            { DefaultLogger.Info(msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any) { DefaultLogger.InfoContext(ctx, msg, args...) }
func Debug(msg string, args ...any)                            { DefaultLogger.Debug(msg, args...) }
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}
func Warn(msg string, args ...any)                            { DefaultLogger.Warn(msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any) { DefaultLogger.WarnContext(ctx, msg, args...) }
func Error(msg string, args ...any)                            { DefaultLogger.Error(msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// NodeOpened logs a successful node open.
func NodeOpened(nodeID string, inputKind, outputKind string, attrs ...any) {
	all := append([]any{"node_id", nodeID, "input", inputKind, "output", outputKind}, attrs...)
	Info("node opened", all...)
}

// NodeClosed logs a node close, successful or not.
func NodeClosed(nodeID string, err error) {
	if err != nil {
		Error("node close failed", "node_id", nodeID, "error", err)
		return
	}
	Info("node closed", "node_id", nodeID)
}

// ChunkDropped logs the filler or a stage dropping a chunk, with a reason.
func ChunkDropped(component, reason string, attrs ...any) {
	all := append([]any{"component", component, "reason", reason}, attrs...)
	Debug("chunk dropped", all...)
}

// WorkerSpawned logs an auxiliary worker process start.
func WorkerSpawned(workerID string, pid int) {
	Info("worker spawned", "worker_id", workerID, "pid", pid)
}

// WorkerLog relays a worker's self-reported log line at the given level.
func WorkerLog(workerID, level, message string) {
	attrs := []any{"worker_id", workerID}
	switch strings.ToLower(level) {
	case "debug":
		Debug(message, attrs...)
	case "warning", "warn":
		Warn(message, attrs...)
	case "error":
		Error(message, attrs...)
	default:
		Info(message, attrs...)
	}
}

// GraphFailed logs the cause the runtime treats as the primary failure.
func GraphFailed(cause error, attrs ...any) {
	all := append([]any{"error", cause}, attrs...)
	Error("graph failed", all...)
}

var (
	// Workers commonly echo their configuration at startup; any env-style
	// credential assignment (API_KEY=..., token: ..., "secret": "...") gets
	// its value blanked while the key survives for debugging.
	keyValueCredPattern = regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?key|secret|token|password)(["']?\s*[=:]\s*["']?)[^\s"']+`)
	// Speech/translation provider SDKs log outgoing Authorization headers.
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/-]+=*`)
	// Connection strings with embedded credentials, e.g. redis://user:pw@host.
	urlCredPattern = regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`)
)

// Redact blanks credential-shaped substrings from a line before it is
// logged, e.g. a worker's stderr echoing its environment or a provider
// request.
func Redact(input string) string {
	out := keyValueCredPattern.ReplaceAllString(input, `$1$2[REDACTED]`)
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = urlCredPattern.ReplaceAllString(out, "://[REDACTED]@")
	return out
}
