// Package logger is the slog setup shared by the API and the worker, plus
// the few event-shaped log lines other packages emit.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey carries the X-Request-ID of the current request.
	RequestIDKey contextKey = "request_id"
	// ApplicationIDKey carries the application a job or request works on.
	ApplicationIDKey contextKey = "application_id"
)

// Logger is a slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

// New logs text at debug level in development and test, JSON at info level
// everywhere else.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) *Logger {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "test":
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	default:
		return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
	}
}

// With returns a Logger carrying args on every line.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request and application ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id, ok := ctx.Value(ApplicationIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("application_id", id))
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// HTTPEntry describes one served request.
type HTTPEntry struct {
	Method   string
	Route    string
	Path     string
	Status   int
	Latency  time.Duration
	ClientIP string
	Err      error
}

// HTTPRequest logs 5xx answers and handler errors at error level, 4xx at
// warn and the rest at info.
func (l *Logger) HTTPRequest(e HTTPEntry) {
	level := slog.LevelInfo
	switch {
	case e.Err != nil || e.Status >= 500:
		level = slog.LevelError
	case e.Status >= 400:
		level = slog.LevelWarn
	}
	attrs := []any{
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.Int("status", e.Status),
		slog.Float64("latency_ms", float64(e.Latency.Microseconds())/1000),
		slog.String("client_ip", e.ClientIP),
	}
	if e.Route != "" {
		attrs = append(attrs, slog.String("route", e.Route))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	l.Log(context.Background(), level, "http_request", attrs...)
}

// NotificationOutcome logs the recorded outcome of one dispatch decision.
func (l *Logger) NotificationOutcome(applicationID, name, status, reason string) {
	attrs := []any{
		slog.String("application_id", applicationID),
		slog.String("notification", name),
		slog.String("status", status),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	l.Info("notification_outcome", attrs...)
}

// CRMError logs a failed CRM call. Suppressed codes are logged at warn level.
func (l *Logger) CRMError(operation, code string, suppressed bool, err error) {
	level := slog.LevelError
	if suppressed {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "crm_error",
		slog.String("operation", operation),
		slog.String("code", code),
		slog.Bool("suppressed", suppressed),
		slog.String("error", err.Error()),
	)
}

// AuditFlag logs an accepted-but-suspicious write such as a skipped stage.
func (l *Logger) AuditFlag(kind, entityID, message string) {
	l.Warn("audit_flag",
		slog.String("kind", kind),
		slog.String("entity_id", entityID),
		slog.String("message", message),
	)
}

func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error", slog.String("operation", operation), slog.String("error", err.Error()))
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}
