package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context carried alongside a
// dispatched Hyperspace request, from decode through reply.
type LogContext struct {
	TraceID     string    // OpenTelemetry trace ID
	SpanID      string    // OpenTelemetry span ID
	Command     string    // Dispatched command name: open, lock, mkdir, etc.
	NodePath    string    // Namespace path the request concerns, if any
	ClientIP    string    // Client address (without port)
	SessionID   uint64    // Owning session id
	ThreadGroup uint32    // Thread group serializing this session's requests
	StartTime   time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:     lc.TraceID,
		SpanID:      lc.SpanID,
		Command:     lc.Command,
		NodePath:    lc.NodePath,
		ClientIP:    lc.ClientIP,
		SessionID:   lc.SessionID,
		ThreadGroup: lc.ThreadGroup,
		StartTime:   lc.StartTime,
	}
}

// WithCommand returns a copy with the dispatched command name set
func (lc *LogContext) WithCommand(command string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Command = command
	}
	return clone
}

// WithNode returns a copy with the namespace path set
func (lc *LogContext) WithNode(path string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.NodePath = path
	}
	return clone
}

// WithSession returns a copy with the owning session and thread group set
func (lc *LogContext) WithSession(sessionID uint64, threadGroup uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
		clone.ThreadGroup = threadGroup
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
