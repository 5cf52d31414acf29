// Package logging wraps logrus with the service's field conventions and
// request trace IDs.
package logging

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// TraceHeader is the HTTP header carrying a request trace ID.
const TraceHeader = "X-Trace-ID"

// Logger is a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for service. Unknown levels fall back to info and any
// format other than "text" logs JSON.
func New(service, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l, service: "test"}
}

// Service returns the bound service name.
func (l *Logger) Service() string {
	return l.service
}

// WithComponent returns an entry tagged with the service and component.
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"service":   l.service,
		"component": component,
	})
}

// WithContext returns an entry carrying the service and, when present, the
// trace ID stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.WithField("service", l.service)
	if id := TraceID(ctx); id != "" {
		entry = entry.WithField("trace_id", id)
	}
	return entry.WithContext(ctx)
}

// LogRequest writes one line per completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, r *http.Request, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
		"remote_addr": r.RemoteAddr,
	})

	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request failed")
	case status >= http.StatusBadRequest:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// NewTraceID generates a new random trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
