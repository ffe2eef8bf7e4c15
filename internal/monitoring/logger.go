package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Logger provides structured logging with domain helpers
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// NewLogger creates a JSON logger on stdout at info level
func NewLogger() *Logger {
	return NewJSONLogger(os.Stdout, slog.LevelInfo)
}

// NewJSONLogger creates a JSON logger writing to w
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lv,
		AddSource:   true,
		ReplaceAttr: rfc3339Timestamp,
	})
	return &Logger{Logger: slog.New(handler), level: lv}
}

// NewTextLogger creates a human readable logger, used by the CLI
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return &Logger{Logger: slog.New(handler), level: lv}
}

func rfc3339Timestamp(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{
			Key:   "timestamp",
			Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
		}
	}
	return a
}

// SetLevel changes the minimum level without rebuilding the handler
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent, requestID string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"request_id", requestID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// DatasetLogger logs a completed aggregation run. Only sizes are logged,
// never identities or row content.
func (l *Logger) DatasetLogger(source string, rows, contributors, categories int, duration time.Duration) {
	l.Info("Dataset Processed",
		"source", source,
		"rows", rows,
		"contributors", contributors,
		"categories", categories,
		"duration_ms", duration.Milliseconds(),
	)
}

// ValidationLogger logs the outcome of structural validation
func (l *Logger) ValidationLogger(rows, errorCount, warningCount int) {
	level := slog.LevelInfo
	if errorCount > 0 {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "Dataset Validated",
		"rows", rows,
		"errors", errorCount,
		"warnings", warningCount,
	)
}

// ShareLogger logs a share token operation. The token itself is never
// logged; reason is empty on success.
func (l *Logger) ShareLogger(operation string, tokenLength int, reason string, duration time.Duration) {
	attrs := []any{
		"operation", operation,
		"token_length", tokenLength,
		"duration_ms", duration.Milliseconds(),
	}
	if reason != "" {
		l.Info("Share Token Rejected", append(attrs, "reason", reason)...)
		return
	}
	l.Info("Share Token", attrs...)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_prefix", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()
